package geolocation

import (
	"sync"

	"github.com/go-drift/geolocation/pkg/errors"
)

// Dispatcher schedules work on the orchestrator's owner thread. Every
// asynchronous collaborator callback passes through it before touching state.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatchFunc) Dispatch(fn func()) { f(fn) }

// Inline runs callbacks on whatever goroutine delivers them. It is only
// correct when every collaborator already calls back on the owner thread.
var Inline Dispatcher = DispatchFunc(func(fn func()) { fn() })

// Loop is a serial owner thread for hosts without a UI thread of their own.
// Tasks run one at a time in submission order. Panics in a task are reported
// through errors.Recover and do not stop the loop.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewLoop starts a loop goroutine.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// Dispatch queues fn. Calls after Close are dropped.
func (l *Loop) Dispatch(fn func()) {
	l.enqueue(fn)
}

// Do runs fn on the loop and waits for it. It returns false if the loop is
// closed. Do must not be called from a task running on the same loop.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.enqueue(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	<-finished
	return true
}

func (l *Loop) enqueue(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Close stops accepting tasks, drains the queue and waits for the loop to exit.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		tasks := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		if len(tasks) == 0 {
			if closed {
				return
			}
			<-l.wake
			continue
		}
		for _, task := range tasks {
			l.exec(task)
		}
	}
}

func (l *Loop) exec(task func()) {
	defer errors.Recover("geolocation.loop")
	task()
}
