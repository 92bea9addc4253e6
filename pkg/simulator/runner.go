package simulator

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-drift/geolocation/pkg/geolocation"
)

// Event is one result delivered to a simulated caller.
type Event struct {
	At       time.Duration   `json:"-"`
	AtMillis int64           `json:"at_ms"`
	Callback string          `json:"callback"`
	Action   string          `json:"action"`
	Status   string          `json:"status"`
	KeepOpen bool            `json:"keep_callback"`
	Message  json.RawMessage `json:"message,omitempty"`
}

// Options tunes a run.
type Options struct {
	Logger               *slog.Logger
	WatchInterval        time.Duration
	FirstResolutionToken int
	// OnEvent, if set, receives each event as it is delivered.
	OnEvent func(Event)
}

// Report summarizes a finished run.
type Report struct {
	Scenario           string  `json:"scenario"`
	Events             []Event `json:"-"`
	Delivered          int     `json:"delivered"`
	ActiveRequests     int     `json:"active_requests"`
	PendingResolutions int     `json:"pending_resolutions"`
	Device             Stats   `json:"device"`
}

// Run plays sc against a fresh Device and Orchestrator. Steps run at their
// scheduled virtual time; between steps the provider clock advances one tick
// at a time. Run stops early with ctx's error if ctx is cancelled.
func Run(ctx context.Context, sc *Scenario, opts Options) (*Report, error) {
	dev, err := NewDevice(sc)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	orch, err := geolocation.New(geolocation.Config{
		Permissions:          dev,
		Client:               dev,
		Presenter:            dev,
		Services:             dev,
		Dispatcher:           geolocation.Inline,
		Logger:               logger,
		WatchInterval:        opts.WatchInterval,
		FirstResolutionToken: opts.FirstResolutionToken,
	})
	if err != nil {
		return nil, err
	}
	dev.Bind(orch.CompleteResolution)
	plugin := geolocation.NewPlugin(orch)

	report := &Report{Scenario: sc.Name}
	record := func(step Step) geolocation.Sink {
		return geolocation.SinkFunc(func(res geolocation.Result) {
			ev := Event{
				At:       dev.Now(),
				AtMillis: dev.Now().Milliseconds(),
				Callback: step.Callback,
				Action:   step.Action,
				Status:   res.Status.String(),
				KeepOpen: res.KeepOpen,
				Message:  res.Payload,
			}
			report.Events = append(report.Events, ev)
			if opts.OnEvent != nil {
				opts.OnEvent(ev)
			}
		})
	}

	next := 0
	for t := time.Duration(0); t <= sc.Duration; t += sc.Tick {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		dev.AdvanceTo(t)
		for next < len(sc.Steps) && sc.Steps[next].At <= t {
			step := sc.Steps[next]
			next++
			sink := record(step)
			if err := plugin.Execute(step.Action, step.Args, sink); err != nil {
				logger.Warn("step rejected", "callback", step.Callback, "action", step.Action, "error", err)
				msg, _ := json.Marshal(err.Error())
				sink.Send(geolocation.Result{Status: geolocation.StatusError, Payload: msg})
			}
			dev.Settle()
		}
		// Updates for subscriptions made during this tick.
		dev.AdvanceTo(t)
		dev.Settle()
	}

	report.Delivered = len(report.Events)
	report.ActiveRequests = orch.Active()
	report.PendingResolutions = orch.PendingResolutions()
	report.Device = dev.Stats()
	return report, nil
}
