package simulator

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-drift/geolocation/pkg/geolocation"
)

// ErrLaunchFailed is returned by Present when the scenario scripts a
// resolution prompt that cannot be shown.
var ErrLaunchFailed = errors.New("simulator: resolution prompt failed to launch")

// Device is an in-memory stand-in for every native collaborator of an
// Orchestrator. Native callbacks are queued and only run from Settle, the way
// a platform delivers them on a later turn of its main loop.
//
// Device is not safe for concurrent use; drive it from one goroutine.
type Device struct {
	sc           *Scenario
	availability geolocation.Availability

	now   time.Duration
	queue []func()

	held          bool
	settingsFixed bool
	complete      func(token int, outcome geolocation.ResolutionOutcome)

	nextSub int
	subs    map[geolocation.SubscriptionID]*subscription

	prompts      int
	dialogs      int
	checks       int
	presented    []int
	subscribed   int
	unsubscribed int
	expired      int
}

type subscription struct {
	id        geolocation.SubscriptionID
	seq       int
	req       geolocation.ProviderRequest
	cb        func(geolocation.ProviderUpdate)
	started   time.Duration
	last      time.Duration
	fired     bool
	delivered int
}

// NewDevice creates a device in the state sc describes. sc must have been
// produced by Load or Parse.
func NewDevice(sc *Scenario) (*Device, error) {
	availability, err := sc.availability()
	if err != nil {
		return nil, err
	}
	return &Device{
		sc:           sc,
		availability: availability,
		held:         sc.Permissions.Held,
		subs:         make(map[geolocation.SubscriptionID]*subscription),
	}, nil
}

// Bind routes resolution outcomes to complete, normally
// Orchestrator.CompleteResolution.
func (d *Device) Bind(complete func(token int, outcome geolocation.ResolutionOutcome)) {
	d.complete = complete
}

// Now returns the virtual time.
func (d *Device) Now() time.Duration { return d.now }

// Settle runs queued native callbacks, including any they queue, until none remain.
func (d *Device) Settle() {
	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue = d.queue[1:]
		fn()
	}
}

func (d *Device) post(fn func()) {
	d.queue = append(d.queue, fn)
}

// Availability implements geolocation.ServiceAvailability.
func (d *Device) Availability() geolocation.Availability {
	return d.availability
}

// ShowErrorDialog implements geolocation.ErrorDialogPresenter.
func (d *Device) ShowErrorDialog() {
	d.dialogs++
}

// HasPermission implements geolocation.PermissionSubsystem.
func (d *Device) HasPermission([]geolocation.Permission) bool {
	return d.held
}

// RequestPermissions implements geolocation.PermissionSubsystem. The scripted
// answer arrives on the next Settle.
func (d *Device) RequestPermissions(perms []geolocation.Permission, _ geolocation.RequestID, done func(geolocation.PermissionResult)) {
	d.prompts++
	answer := d.sc.Permissions.Prompt
	d.post(func() {
		if answer == "dismiss" {
			done(geolocation.PermissionResult{})
			return
		}
		var res geolocation.PermissionResult
		for _, p := range perms {
			granted := answer == "grant_all" ||
				(answer == "grant_coarse" && p == geolocation.PermissionCoarseLocation) ||
				(answer == "grant_fine" && p == geolocation.PermissionFineLocation)
			res.Grants = append(res.Grants, geolocation.Grant{Permission: p, Granted: granted})
		}
		if res.AnyGranted() {
			d.held = true
		}
		done(res)
	})
}

// CheckSettings implements geolocation.LocationClient.
func (d *Device) CheckSettings(req geolocation.ProviderRequest, done func(geolocation.SettingsResult)) {
	d.checks++
	status := d.sc.Settings.Status
	if d.settingsFixed {
		status = "satisfied"
	}
	d.post(func() {
		switch status {
		case "satisfied":
			done(geolocation.SettingsResult{Status: geolocation.SettingsSatisfied})
		case "resolution_required":
			done(geolocation.SettingsResult{
				Status:     geolocation.SettingsNeedsResolution,
				Resolution: geolocation.ResolutionHandle(fmt.Sprintf("enable-location-%s", req.Priority)),
			})
		default:
			done(geolocation.SettingsResult{
				Status: geolocation.SettingsUnresolvable,
				Err:    errors.New("location disabled in device settings"),
			})
		}
	})
}

// Present implements geolocation.ResolutionPresenter.
func (d *Device) Present(_ geolocation.ResolutionHandle, token int) error {
	d.presented = append(d.presented, token)
	switch d.sc.Settings.Resolution {
	case "fail_launch":
		return ErrLaunchFailed
	case "grant":
		d.post(func() {
			d.settingsFixed = true
			d.resolve(token, geolocation.ResolutionGranted)
		})
	default:
		d.post(func() { d.resolve(token, geolocation.ResolutionRefused) })
	}
	return nil
}

func (d *Device) resolve(token int, outcome geolocation.ResolutionOutcome) {
	if d.complete != nil {
		d.complete(token, outcome)
	}
}

// Subscribe implements geolocation.LocationClient.
func (d *Device) Subscribe(req geolocation.ProviderRequest, cb func(geolocation.ProviderUpdate)) (geolocation.SubscriptionID, error) {
	d.nextSub++
	id := geolocation.SubscriptionID(fmt.Sprintf("sim-%d", d.nextSub))
	d.subs[id] = &subscription{id: id, seq: d.nextSub, req: req, cb: cb, started: d.now}
	d.subscribed++
	return id, nil
}

// Unsubscribe implements geolocation.LocationClient.
func (d *Device) Unsubscribe(id geolocation.SubscriptionID) error {
	if _, ok := d.subs[id]; ok {
		delete(d.subs, id)
		d.unsubscribed++
	}
	return nil
}

// AdvanceTo moves the clock to t and queues provider updates for every
// subscription that is due. A subscription fires on its first tick and then
// whenever its interval has elapsed; it ends after NumUpdates deliveries or
// once its expiration is reached. Silent track points deliver nothing and
// leave the subscription due on the next tick.
func (d *Device) AdvanceTo(t time.Duration) {
	if t > d.now {
		d.now = t
	}
	for _, sub := range d.ordered() {
		if sub.req.Expiration > 0 && d.now-sub.started >= sub.req.Expiration {
			delete(d.subs, sub.id)
			d.expired++
			continue
		}
		if sub.fired && d.now-sub.last < sub.req.Interval {
			continue
		}
		if sub.fired && sub.req.Interval == 0 && d.now == sub.last {
			continue
		}
		update, ok := d.updateAt(d.now)
		if !ok {
			continue
		}
		sub.fired = true
		sub.last = d.now
		sub.delivered++
		cb := sub.cb
		d.post(func() { cb(update) })
		if sub.req.NumUpdates > 0 && sub.delivered >= sub.req.NumUpdates {
			delete(d.subs, sub.id)
		}
	}
}

func (d *Device) ordered() []*subscription {
	subs := make([]*subscription, 0, len(d.subs))
	for _, s := range d.subs {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })
	return subs
}

// updateAt returns what the provider reports at t, or false when it stays
// silent.
func (d *Device) updateAt(t time.Duration) (geolocation.ProviderUpdate, bool) {
	if len(d.sc.Track) == 0 {
		return geolocation.ProviderUpdate{Err: geolocation.ServiceUnavailable(false)}, true
	}
	idx := int(t / d.sc.Tick)
	if idx >= len(d.sc.Track) {
		idx = len(d.sc.Track) - 1
	}
	p := d.sc.Track[idx]
	if p.Silent {
		return geolocation.ProviderUpdate{}, false
	}
	if p.Error != 0 {
		return geolocation.ProviderUpdate{Err: geolocation.ErrorFromCode(p.Error, "")}, true
	}
	loc := geolocation.Location{
		Latitude:  p.Lat,
		Longitude: p.Lon,
		Accuracy:  p.Accuracy,
		Time:      d.sc.Start.Add(t),
	}
	if p.Altitude != nil {
		loc.Altitude, loc.HasAltitude = *p.Altitude, true
	}
	if p.Heading != nil {
		loc.Heading, loc.HasHeading = *p.Heading, true
	}
	if p.Speed != nil {
		loc.Speed, loc.HasSpeed = *p.Speed, true
	}
	return geolocation.ProviderUpdate{Locations: []geolocation.Location{loc}}, true
}

// Stats is a snapshot of device-side counters.
type Stats struct {
	Prompts         int   `json:"permission_prompts"`
	ErrorDialogs    int   `json:"error_dialogs"`
	SettingsChecks  int   `json:"settings_checks"`
	Resolutions     []int `json:"resolution_tokens,omitempty"`
	Subscribed      int   `json:"subscribed"`
	Unsubscribed    int   `json:"unsubscribed"`
	Expired         int   `json:"expired"`
	ActiveProviders int   `json:"active_subscriptions"`
}

// Stats returns the device counters.
func (d *Device) Stats() Stats {
	return Stats{
		Prompts:         d.prompts,
		ErrorDialogs:    d.dialogs,
		SettingsChecks:  d.checks,
		Resolutions:     append([]int(nil), d.presented...),
		Subscribed:      d.subscribed,
		Unsubscribed:    d.unsubscribed,
		Expired:         d.expired,
		ActiveProviders: len(d.subs),
	}
}
