package platform

import (
	"sync"

	"github.com/go-drift/geolocation/pkg/errors"
)

const lifecycleChannel = "geolocation/lifecycle/events"

// LifecycleState is the state of the page or activity hosting the caller.
type LifecycleState string

const (
	// LifecycleStateResumed indicates the host is in the foreground.
	LifecycleStateResumed LifecycleState = "resumed"

	// LifecycleStatePaused indicates the host is in the background but alive.
	LifecycleStatePaused LifecycleState = "paused"

	// LifecycleStateDetached indicates the caller's page was torn down or
	// reloaded. Requests it issued can no longer be answered.
	LifecycleStateDetached LifecycleState = "detached"
)

// LifecycleHandler is called when the lifecycle state changes, and on every
// detached event.
type LifecycleHandler func(state LifecycleState)

// Lifecycle tracks host lifecycle events from the native side.
type Lifecycle struct {
	stop func()

	mu       sync.RWMutex
	state    LifecycleState
	handlers map[int]LifecycleHandler
	next     int
}

// NewLifecycle starts listening for lifecycle events.
func NewLifecycle() *Lifecycle {
	l := &Lifecycle{
		state:    LifecycleStateResumed,
		handlers: make(map[int]LifecycleHandler),
	}
	sub := NewEventChannel(lifecycleChannel).Listen(EventHandler{
		OnEvent: l.onEvent,
		OnError: func(err error) {
			errors.Report(&errors.PluginError{
				Op:      "lifecycle.streamError",
				Kind:    errors.KindPlatform,
				Channel: lifecycleChannel,
				Err:     err,
			})
		},
	})
	l.stop = sub.Cancel
	return l
}

// Close stops listening.
func (l *Lifecycle) Close() {
	l.stop()
}

// State returns the last reported state.
func (l *Lifecycle) State() LifecycleState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// AddHandler registers handler and returns a function removing it.
func (l *Lifecycle) AddHandler(handler LifecycleHandler) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.handlers[id] = handler
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

func (l *Lifecycle) onEvent(data any) {
	m, _ := parseMap(data)
	state := parseString(m["state"])
	if state == "" {
		errors.Report(&errors.PluginError{
			Op:      "lifecycle.parseEvent",
			Kind:    errors.KindParsing,
			Channel: lifecycleChannel,
			Err: &errors.ParseError{
				Channel:  lifecycleChannel,
				DataType: "LifecycleState",
				Got:      data,
			},
		})
		return
	}
	l.update(LifecycleState(state))
}

// update records next and notifies handlers. Repeated states are ignored,
// except detached: every teardown of a page is reported.
func (l *Lifecycle) update(next LifecycleState) {
	l.mu.Lock()
	if l.state == next && next != LifecycleStateDetached {
		l.mu.Unlock()
		return
	}
	l.state = next
	handlers := make([]LifecycleHandler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(next)
	}
}
