package geolocation

import (
	"log/slog"
)

// SettingsState is a step in one settings check.
type SettingsState int

const (
	StateChecking SettingsState = iota
	StateSatisfied
	StateNeedsResolution
	StateResolving
	StateResolutionGranted
	StateResolutionDenied
	StateDone
)

func (s SettingsState) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateSatisfied:
		return "satisfied"
	case StateNeedsResolution:
		return "needs_resolution"
	case StateResolving:
		return "resolving"
	case StateResolutionGranted:
		return "resolution_granted"
	case StateResolutionDenied:
		return "resolution_denied"
	default:
		return "done"
	}
}

// settingsCheck tracks one pass through the coordinator. done fires once, on
// the dispatcher, with nil on success.
type settingsCheck struct {
	token   string
	state   SettingsState
	done    func(*LocationError)
	pending *PendingResolution
}

// SettingsCoordinator runs check settings -> optional resolution prompt ->
// await outcome, and reports back through a single callback.
type SettingsCoordinator struct {
	client      LocationClient
	presenter   ResolutionPresenter
	resolutions *Resolutions
	dispatch    Dispatcher
	logger      *slog.Logger

	inflight int
}

// NewSettingsCoordinator wires a coordinator. All callbacks from client are
// funnelled through dispatch before the coordinator acts on them.
func NewSettingsCoordinator(client LocationClient, presenter ResolutionPresenter, resolutions *Resolutions, dispatch Dispatcher, logger *slog.Logger) *SettingsCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsCoordinator{
		client:      client,
		presenter:   presenter,
		resolutions: resolutions,
		dispatch:    dispatch,
		logger:      logger,
	}
}

// InFlight returns the number of checks that have not reached Done.
// Checks parked on a presenter that failed to launch stay counted until
// they are abandoned.
func (c *SettingsCoordinator) InFlight() int {
	return c.inflight
}

// Ensure checks req against the device settings. done receives nil when the
// caller may subscribe, or the error to deliver. When the resolution prompt
// fails to launch, done is never called.
//
// The returned function abandons the check: its resolution token, if any, is
// dropped and done is never called. It must run on the dispatcher and is a
// no-op once the check is done.
func (c *SettingsCoordinator) Ensure(token string, req ProviderRequest, done func(*LocationError)) (abandon func()) {
	check := &settingsCheck{token: token, state: StateChecking, done: done}
	c.inflight++
	c.client.CheckSettings(req, func(res SettingsResult) {
		c.dispatch.Dispatch(func() { c.onChecked(check, res) })
	})
	return func() { c.abandon(check) }
}

func (c *SettingsCoordinator) onChecked(check *settingsCheck, res SettingsResult) {
	if check.state == StateDone {
		return
	}
	switch res.Status {
	case SettingsSatisfied:
		c.transition(check, StateSatisfied)
		c.finish(check, nil)
	case SettingsNeedsResolution:
		c.transition(check, StateNeedsResolution)
		pending := c.resolutions.Register(func(outcome ResolutionOutcome) {
			c.onResolved(check, outcome)
		})
		check.pending = pending
		c.transition(check, StateResolving)
		if err := c.presenter.Present(res.Resolution, pending.Token); err != nil {
			// Nothing more can happen for this check and nothing is held.
			c.resolutions.Cancel(pending.Token)
			c.logger.Warn("settings resolution failed to launch",
				"token", check.token, "resolution_token", pending.Token, "error", err)
		}
	default:
		c.logger.Debug("settings unsatisfiable", "token", check.token, "error", res.Err)
		c.finish(check, SettingsUnsatisfiable(false))
	}
}

func (c *SettingsCoordinator) onResolved(check *settingsCheck, outcome ResolutionOutcome) {
	if outcome == ResolutionGranted {
		c.transition(check, StateResolutionGranted)
		c.finish(check, nil)
		return
	}
	c.transition(check, StateResolutionDenied)
	c.finish(check, ResolutionDenied())
}

func (c *SettingsCoordinator) abandon(check *settingsCheck) {
	if check.state == StateDone {
		return
	}
	if check.pending != nil {
		c.resolutions.Cancel(check.pending.Token)
	}
	c.logger.Debug("settings check abandoned", "token", check.token, "state", check.state.String())
	check.state = StateDone
	c.inflight--
}

func (c *SettingsCoordinator) transition(check *settingsCheck, next SettingsState) {
	c.logger.Debug("settings transition", "token", check.token, "from", check.state.String(), "to", next.String())
	check.state = next
}

func (c *SettingsCoordinator) finish(check *settingsCheck, lerr *LocationError) {
	if check.state == StateDone {
		return
	}
	check.state = StateDone
	c.inflight--
	check.done(lerr)
}
