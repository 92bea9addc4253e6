package geolocation

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-drift/geolocation/pkg/errors"
)

// --- Test helpers ---

// queueDispatcher holds callbacks until drain, so tests control when an
// in-flight callback reaches the orchestrator.
type queueDispatcher struct {
	queue []func()
}

func (d *queueDispatcher) Dispatch(fn func()) { d.queue = append(d.queue, fn) }

func (d *queueDispatcher) drain() {
	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue = d.queue[1:]
		fn()
	}
}

type permissionRequest struct {
	perms []Permission
	id    RequestID
	done  func(PermissionResult)
}

type fakePermissions struct {
	held     bool
	hasCalls int
	requests []permissionRequest
}

func (p *fakePermissions) HasPermission([]Permission) bool {
	p.hasCalls++
	return p.held
}

func (p *fakePermissions) RequestPermissions(perms []Permission, id RequestID, done func(PermissionResult)) {
	p.requests = append(p.requests, permissionRequest{perms: perms, id: id, done: done})
}

func granted(perms ...Permission) PermissionResult {
	var res PermissionResult
	for _, p := range LocationPermissions {
		g := Grant{Permission: p}
		for _, q := range perms {
			if p == q {
				g.Granted = true
			}
		}
		res.Grants = append(res.Grants, g)
	}
	return res
}

type fakeSubscription struct {
	req    ProviderRequest
	cb     func(ProviderUpdate)
	active bool
}

type fakeClient struct {
	settings        SettingsResult
	holdChecks      bool
	pendingChecks   []func(SettingsResult)
	checked         []ProviderRequest
	subscribeErr    error
	emitOnSubscribe *ProviderUpdate

	next         int
	subs         map[SubscriptionID]*fakeSubscription
	subscribed   []ProviderRequest
	unsubscribed []SubscriptionID
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[SubscriptionID]*fakeSubscription)}
}

func (c *fakeClient) CheckSettings(req ProviderRequest, done func(SettingsResult)) {
	c.checked = append(c.checked, req)
	if c.holdChecks {
		c.pendingChecks = append(c.pendingChecks, done)
		return
	}
	done(c.settings)
}

func (c *fakeClient) Subscribe(req ProviderRequest, cb func(ProviderUpdate)) (SubscriptionID, error) {
	if c.subscribeErr != nil {
		return "", c.subscribeErr
	}
	c.next++
	id := SubscriptionID(fmt.Sprintf("sub-%d", c.next))
	c.subs[id] = &fakeSubscription{req: req, cb: cb, active: true}
	c.subscribed = append(c.subscribed, req)
	if c.emitOnSubscribe != nil {
		cb(*c.emitOnSubscribe)
	}
	return id, nil
}

func (c *fakeClient) Unsubscribe(id SubscriptionID) error {
	c.unsubscribed = append(c.unsubscribed, id)
	if s, ok := c.subs[id]; ok {
		s.active = false
	}
	return nil
}

// emit calls the provider callback for id even if it was unsubscribed, the
// way a late platform callback would.
func (c *fakeClient) emit(id SubscriptionID, u ProviderUpdate) {
	c.subs[id].cb(u)
}

func (c *fakeClient) activeCount() int {
	n := 0
	for _, s := range c.subs {
		if s.active {
			n++
		}
	}
	return n
}

type presentCall struct {
	handle ResolutionHandle
	token  int
}

type fakePresenter struct {
	err   error
	calls []presentCall
}

func (p *fakePresenter) Present(h ResolutionHandle, token int) error {
	p.calls = append(p.calls, presentCall{handle: h, token: token})
	return p.err
}

type fakeServices struct {
	availability Availability
	dialogs      int
}

func (s *fakeServices) Availability() Availability { return s.availability }
func (s *fakeServices) ShowErrorDialog()           { s.dialogs++ }

type recorder struct {
	results []Result
}

func (r *recorder) Send(res Result) { r.results = append(r.results, res) }

type reportRecorder struct {
	errs []*errors.PluginError
}

func (r *reportRecorder) HandleError(err *errors.PluginError) { r.errs = append(r.errs, err) }
func (r *reportRecorder) HandlePanic(*errors.PanicError)      {}

func captureReports(t *testing.T) *reportRecorder {
	t.Helper()
	r := &reportRecorder{}
	errors.SetHandler(r)
	t.Cleanup(func() { errors.SetHandler(nil) })
	return r
}

type harness struct {
	perms     *fakePermissions
	client    *fakeClient
	presenter *fakePresenter
	services  *fakeServices
	dispatch  *queueDispatcher
	orch      *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		perms:     &fakePermissions{held: true},
		client:    newFakeClient(),
		presenter: &fakePresenter{},
		services:  &fakeServices{availability: Available},
		dispatch:  &queueDispatcher{},
	}
	orch, err := New(Config{
		Permissions: h.perms,
		Client:      h.client,
		Presenter:   h.presenter,
		Services:    h.services,
		Dispatcher:  h.dispatch,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) drain() { h.dispatch.drain() }

func testLocation(lat, lon float64) Location {
	return Location{
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  5,
		Time:      time.UnixMilli(1700000000000),
	}
}
