package geolocation

import (
	stderrors "errors"
	"fmt"

	"github.com/agnivade/levenshtein"
)

// Protocol actions.
const (
	ActionGetLocation = "getLocation"
	ActionAddWatch    = "addWatch"
	ActionClearWatch  = "clearWatch"
)

var actions = []string{ActionGetLocation, ActionAddWatch, ActionClearWatch}

var (
	// ErrUnknownAction is returned by Execute for an action it does not implement.
	ErrUnknownAction = stderrors.New("geolocation: unknown action")
	// ErrInvalidArguments is returned by Execute when the correlation token is missing.
	ErrInvalidArguments = stderrors.New("geolocation: invalid arguments")
)

// Plugin decodes protocol calls into Orchestrator operations.
//
// Argument layouts:
//
//	getLocation: [highAccuracy, maximumAge, timeoutMs, token]
//	addWatch:    [token, highAccuracy, maximumAgeMs]
//	clearWatch:  [token]
type Plugin struct {
	orch *Orchestrator
}

// NewPlugin wraps an Orchestrator.
func NewPlugin(orch *Orchestrator) *Plugin {
	return &Plugin{orch: orch}
}

// Orchestrator returns the wrapped orchestrator.
func (p *Plugin) Orchestrator() *Orchestrator {
	return p.orch
}

// Execute runs one protocol call. Results, including clearWatch's ack or
// WatchNotFound, go to sink. A returned error means the call was rejected
// before reaching the orchestrator and nothing was sent to sink.
func (p *Plugin) Execute(action string, args []any, sink Sink) error {
	switch action {
	case ActionGetLocation:
		token, ok := argString(args, 3)
		if !ok {
			return fmt.Errorf("%w: %s requires a correlation token at index 3", ErrInvalidArguments, action)
		}
		p.orch.GetLocation(token, Options{
			HighAccuracy: argBool(args, 0),
			MaxAge:       argMillis(args, 1),
			Timeout:      argMillis(args, 2),
		}, sink)

	case ActionAddWatch:
		token, ok := argString(args, 0)
		if !ok {
			return fmt.Errorf("%w: %s requires a correlation token at index 0", ErrInvalidArguments, action)
		}
		p.orch.AddWatch(token, Options{
			HighAccuracy: argBool(args, 1),
			MaxAge:       argMillis(args, 2),
		}, sink)

	case ActionClearWatch:
		token, ok := argString(args, 0)
		if !ok {
			return fmt.Errorf("%w: %s requires a correlation token at index 0", ErrInvalidArguments, action)
		}
		if err := p.orch.ClearWatch(token); err != nil {
			var lerr *LocationError
			if stderrors.As(err, &lerr) {
				sink.Send(errorResult(lerr))
				return nil
			}
			return err
		}
		sink.Send(ackResult())

	default:
		return unknownAction(action)
	}
	return nil
}

func unknownAction(action string) error {
	best, bestDist := "", -1
	for _, a := range actions {
		d := levenshtein.ComputeDistance(action, a)
		if bestDist < 0 || d < bestDist {
			best, bestDist = a, d
		}
	}
	if bestDist >= 0 && bestDist <= 3 {
		return fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownAction, action, best)
	}
	return fmt.Errorf("%w %q", ErrUnknownAction, action)
}
