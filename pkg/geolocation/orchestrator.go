// Package geolocation bridges a device location provider to a caller through
// an asynchronous request/response protocol.
//
// An Orchestrator owns every logical request from the moment it is issued to
// its last delivery. It gates requests on service availability, runtime
// permission and device settings (including the OS settings-resolution
// prompt) before subscribing to the provider, and guarantees that a cleared
// or replaced request never receives another result.
//
// Threading: GetLocation, AddWatch and ClearWatch must be called on the
// owner thread, the same one the configured Dispatcher runs callbacks on.
// Collaborators may call back from any goroutine; those callbacks are
// funnelled through the Dispatcher before they touch request state.
package geolocation

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-drift/geolocation/pkg/errors"
)

// Config wires an Orchestrator to its collaborators.
type Config struct {
	Permissions PermissionSubsystem
	Client      LocationClient
	Presenter   ResolutionPresenter
	Services    ServiceAvailability

	// Dispatcher is the owner thread. Nil means Inline.
	Dispatcher Dispatcher
	// Logger receives debug traces of request transitions. Nil means slog.Default().
	Logger *slog.Logger
	// WatchInterval is used for watches without a maximum age. Zero means DefaultWatchInterval.
	WatchInterval time.Duration
	// FirstResolutionToken seeds the resolution token counter. Zero means DefaultFirstResolutionToken.
	FirstResolutionToken int
}

// ErrMissingCollaborator is returned by New when a required collaborator is nil.
var ErrMissingCollaborator = stderrors.New("geolocation: missing collaborator")

// Orchestrator is the request lifecycle state machine.
type Orchestrator struct {
	permissions PermissionSubsystem
	client      LocationClient
	services    ServiceAvailability
	dispatch    Dispatcher
	logger      *slog.Logger

	watchInterval time.Duration

	registry    *Registry
	resolutions *Resolutions
	settings    *SettingsCoordinator
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Permissions == nil:
		return nil, fmt.Errorf("%w: Permissions", ErrMissingCollaborator)
	case cfg.Client == nil:
		return nil, fmt.Errorf("%w: Client", ErrMissingCollaborator)
	case cfg.Presenter == nil:
		return nil, fmt.Errorf("%w: Presenter", ErrMissingCollaborator)
	case cfg.Services == nil:
		return nil, fmt.Errorf("%w: Services", ErrMissingCollaborator)
	}
	dispatch := cfg.Dispatcher
	if dispatch == nil {
		dispatch = Inline
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.WatchInterval
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	first := cfg.FirstResolutionToken
	if first == 0 {
		first = DefaultFirstResolutionToken
	}

	resolutions := NewResolutions(first)
	return &Orchestrator{
		permissions:   cfg.Permissions,
		client:        cfg.Client,
		services:      cfg.Services,
		dispatch:      dispatch,
		logger:        logger,
		watchInterval: interval,
		registry:      NewRegistry(),
		resolutions:   resolutions,
		settings:      NewSettingsCoordinator(cfg.Client, cfg.Presenter, resolutions, dispatch, logger),
	}, nil
}

// GetLocation requests a single fix. sink receives exactly one terminal
// result unless the permission prompt is dismissed or the resolution prompt
// cannot be shown, in which case it receives nothing.
func (o *Orchestrator) GetLocation(token string, opts Options, sink Sink) {
	o.submit(SingleFix, token, opts, sink)
}

// AddWatch starts a standing subscription under token. A watch already
// registered under the same token is released and replaced.
func (o *Orchestrator) AddWatch(token string, opts Options, sink Sink) {
	o.submit(Watch, token, opts, sink)
}

// ClearWatch removes the request registered under token and releases its
// provider subscription. No result reaches the request's sink once ClearWatch
// returns. It returns a WatchNotFound error, changing nothing, if no request
// is registered.
func (o *Orchestrator) ClearWatch(token string) error {
	if lerr := o.checkServices(); lerr != nil {
		return lerr
	}
	rc := o.registry.Remove(NewRequestID(token))
	if rc == nil {
		return WatchNotFound()
	}
	o.logger.Debug("watch cleared", "token", token, "kind", rc.Kind.String())
	o.release(rc)
	return nil
}

// Reset releases every registered request without delivering anything to
// their sinks. Hosts call it when the caller that issued the requests is gone.
// It returns the number of requests released.
func (o *Orchestrator) Reset() int {
	released := o.registry.Drain()
	for _, rc := range released {
		o.release(rc)
	}
	if len(released) > 0 {
		o.logger.Debug("requests reset", "count", len(released))
	}
	return len(released)
}

// CompleteResolution reports the outcome of the resolution prompt shown for
// token. Unknown or already completed tokens are ignored.
func (o *Orchestrator) CompleteResolution(token int, outcome ResolutionOutcome) {
	o.dispatch.Dispatch(func() {
		if !o.resolutions.Complete(token, outcome) {
			o.logger.Debug("resolution outcome for unknown token", "resolution_token", token)
		}
	})
}

// Active returns the number of registered requests.
func (o *Orchestrator) Active() int {
	return o.registry.Len()
}

// PendingResolutions returns the number of resolution prompts awaiting an outcome.
func (o *Orchestrator) PendingResolutions() int {
	return o.resolutions.Len()
}

// Lookup returns the context registered under token.
func (o *Orchestrator) Lookup(token string) (*RequestContext, bool) {
	return o.registry.Get(NewRequestID(token))
}

func (o *Orchestrator) submit(kind Kind, token string, opts Options, sink Sink) {
	if lerr := o.checkServices(); lerr != nil {
		sink.Send(errorResult(lerr))
		return
	}

	rc := newRequestContext(kind, token, opts, o.buildRequest(kind, opts), sink)
	if prev := o.registry.Put(rc); prev != nil {
		o.logger.Debug("replacing request", "token", token, "request_id", rc.ID.String(), "previous_kind", prev.Kind.String())
		o.release(prev)
	}

	if o.permissions.HasPermission(LocationPermissions) {
		o.start(rc)
		return
	}
	o.logger.Debug("requesting permission", "token", token, "request_id", rc.ID.String())
	o.permissions.RequestPermissions(LocationPermissions, rc.ID, func(res PermissionResult) {
		o.dispatch.Dispatch(func() { o.onPermissionResult(rc, res) })
	})
}

func (o *Orchestrator) buildRequest(kind Kind, opts Options) ProviderRequest {
	if kind == Watch {
		return watchRequest(opts, o.watchInterval)
	}
	return singleFixRequest(opts)
}

func (o *Orchestrator) checkServices() *LocationError {
	switch o.services.Availability() {
	case Available:
		return nil
	case UnavailableResolvable:
		if p, ok := o.services.(ErrorDialogPresenter); ok {
			p.ShowErrorDialog()
		}
		return ServiceUnavailable(true)
	default:
		return ServiceUnavailable(false)
	}
}

func (o *Orchestrator) onPermissionResult(rc *RequestContext, res PermissionResult) {
	if res.Cancelled() {
		// A dismissed prompt leaves the request pending.
		o.logger.Debug("permission prompt cancelled", "token", rc.Token)
		return
	}
	if !o.registry.Contains(rc) {
		o.logger.Debug("permission result for stale request", "token", rc.Token)
		return
	}
	if res.AnyGranted() {
		o.start(rc)
		return
	}
	o.terminate(rc, PermissionDenied())
}

func (o *Orchestrator) start(rc *RequestContext) {
	abandon := o.settings.Ensure(rc.Token, rc.Request, func(lerr *LocationError) {
		if !o.registry.Contains(rc) {
			o.logger.Debug("settings outcome for stale request", "token", rc.Token)
			return
		}
		if lerr != nil {
			o.terminate(rc, lerr)
			return
		}
		o.subscribe(rc)
	})
	if !rc.trackSettings(abandon) {
		abandon()
	}
}

func (o *Orchestrator) subscribe(rc *RequestContext) {
	id, err := o.client.Subscribe(rc.Request, func(u ProviderUpdate) {
		o.dispatch.Dispatch(func() { o.onProviderUpdate(rc, u) })
	})
	if err != nil {
		errors.Report(&errors.PluginError{
			Op:    "orchestrator.subscribe",
			Kind:  errors.KindProvider,
			Token: rc.Token,
			Err:   err,
		})
		o.terminate(rc, ServiceUnavailable(false))
		return
	}
	if !rc.attach(id) {
		// Released while Subscribe was running.
		o.unsubscribe(rc, id)
		return
	}
	o.logger.Debug("subscribed", "token", rc.Token, "kind", rc.Kind.String(), "subscription", string(id))
}

func (o *Orchestrator) onProviderUpdate(rc *RequestContext, u ProviderUpdate) {
	if !o.registry.Contains(rc) {
		o.dropStale(rc)
		return
	}
	for _, loc := range u.Locations {
		if !o.registry.Contains(rc) {
			return
		}
		o.deliverSuccess(rc, loc)
	}
	if u.Err != nil && o.registry.Contains(rc) {
		o.deliverError(rc, u.Err)
	}
}

// dropStale handles a provider callback for a request that is no longer
// registered. A watch may have been cleared between subscribe and the
// provider's acknowledgement, so its subscription is released again.
func (o *Orchestrator) dropStale(rc *RequestContext) {
	o.logger.Debug("dropping stale callback", "token", rc.Token, "kind", rc.Kind.String())
	if rc.Kind != Watch {
		return
	}
	rc.detach()
	if id := rc.lastSubscription(); id != "" {
		o.unsubscribe(rc, id)
	}
}

// finish removes rc from the registry and releases its subscription.
func (o *Orchestrator) finish(rc *RequestContext) {
	o.registry.RemoveIf(rc)
	o.release(rc)
}

// release closes rc, abandoning an unfinished settings check and
// releasing its subscription.
func (o *Orchestrator) release(rc *RequestContext) {
	id := rc.detach()
	if abandon := rc.untrackSettings(); abandon != nil {
		abandon()
	}
	if id != "" {
		o.unsubscribe(rc, id)
	}
}

func (o *Orchestrator) unsubscribe(rc *RequestContext, id SubscriptionID) {
	if err := o.client.Unsubscribe(id); err != nil {
		errors.Report(&errors.PluginError{
			Op:    "orchestrator.unsubscribe",
			Kind:  errors.KindProvider,
			Token: rc.Token,
			Err:   err,
		})
	}
}
