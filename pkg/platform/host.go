package platform

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-drift/geolocation/pkg/errors"
	"github.com/go-drift/geolocation/pkg/geolocation"
)

const pluginChannel = "geolocation"

// HostConfig configures a Host.
type HostConfig struct {
	// Dispatcher is the owner thread for the orchestrator. Nil means MainThread.
	Dispatcher geolocation.Dispatcher
	// Logger is passed to the orchestrator. Nil means slog.Default().
	Logger *slog.Logger

	WatchInterval        time.Duration
	FirstResolutionToken int
}

// Host wires an Orchestrator to the native side. Native calls
//
//	execute {"action": "...", "callbackId": "...", "args": [...]}
//
// on the "geolocation" channel; results go back through
//
//	sendPluginResult {"callbackId": "...", "status": "OK", "message": ..., "keepCallback": bool}
//
// on the same channel.
type Host struct {
	channel     *MethodChannel
	permissions *PermissionBridge
	location    *LocationBridge
	resolution  *ResolutionBridge
	services    *ServicesBridge
	lifecycle   *Lifecycle

	dispatch geolocation.Dispatcher
	logger   *slog.Logger
	plugin   *geolocation.Plugin
}

// NewHost creates the channel adapters and the orchestrator behind them.
func NewHost(cfg HostConfig) (*Host, error) {
	dispatch := cfg.Dispatcher
	if dispatch == nil {
		dispatch = MainThread
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Host{
		channel:     NewMethodChannel(pluginChannel),
		permissions: NewPermissionBridge(),
		location:    NewLocationBridge(),
		resolution:  NewResolutionBridge(),
		services:    NewServicesBridge(),
		lifecycle:   NewLifecycle(),
		dispatch:    dispatch,
		logger:      logger,
	}
	orch, err := geolocation.New(geolocation.Config{
		Permissions:          h.permissions,
		Client:               h.location,
		Presenter:            h.resolution,
		Services:             h.services,
		Dispatcher:           dispatch,
		Logger:               logger,
		WatchInterval:        cfg.WatchInterval,
		FirstResolutionToken: cfg.FirstResolutionToken,
	})
	if err != nil {
		h.Close()
		return nil, err
	}
	h.plugin = geolocation.NewPlugin(orch)
	h.resolution.Bind(orch.CompleteResolution)
	h.lifecycle.AddHandler(func(state LifecycleState) {
		if state == LifecycleStateDetached {
			h.dispatch.Dispatch(func() { orch.Reset() })
		}
	})
	h.channel.SetHandler(h.handle)
	return h, nil
}

// Orchestrator returns the orchestrator behind the host.
func (h *Host) Orchestrator() *geolocation.Orchestrator {
	return h.plugin.Orchestrator()
}

// Lifecycle returns the host lifecycle tracker. Every LifecycleStateDetached
// event resets the orchestrator.
func (h *Host) Lifecycle() *Lifecycle {
	return h.lifecycle
}

// Close detaches the inbound handler and stops every event listener.
func (h *Host) Close() {
	h.channel.SetHandler(nil)
	h.permissions.Close()
	h.location.Close()
	h.resolution.Close()
	h.lifecycle.Close()
}

func (h *Host) handle(method string, args any) (any, error) {
	if method != "execute" {
		return nil, ErrMethodNotFound
	}
	m, ok := parseMap(args)
	if !ok {
		return nil, fmt.Errorf("%w: expected map, got %T", ErrInvalidArguments, args)
	}
	callbackID := parseString(m["callbackId"])
	if callbackID == "" {
		return nil, fmt.Errorf("%w: missing callbackId", ErrInvalidArguments)
	}
	action := parseString(m["action"])
	callArgs := parseList(m["args"])
	sink := h.sinkFor(callbackID)

	h.dispatch.Dispatch(func() {
		if err := h.plugin.Execute(action, callArgs, sink); err != nil {
			h.logger.Warn("plugin call rejected", "action", action, "callback_id", callbackID, "error", err)
			payload, _ := json.Marshal(err.Error())
			sink.Send(geolocation.Result{Status: geolocation.StatusError, Payload: payload})
		}
	})
	return nil, nil
}

func (h *Host) sinkFor(callbackID string) geolocation.Sink {
	return geolocation.SinkFunc(func(res geolocation.Result) {
		_, err := h.channel.Invoke("sendPluginResult", map[string]any{
			"callbackId":   callbackID,
			"status":       res.Status.String(),
			"message":      res.Payload,
			"keepCallback": res.KeepOpen,
		})
		if err != nil {
			errors.Report(&errors.PluginError{
				Op:      "host.sendPluginResult",
				Kind:    errors.KindPlatform,
				Channel: pluginChannel,
				Err:     err,
			})
		}
	})
}
