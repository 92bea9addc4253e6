package platform

import (
	"sync"

	"github.com/go-drift/geolocation/pkg/geolocation"
)

var (
	dispatchMu   sync.RWMutex
	dispatchFunc func(callback func())
)

// RegisterDispatch sets the function used to schedule callbacks on the host's
// main thread. The host calls it once during initialization.
func RegisterDispatch(fn func(callback func())) {
	dispatchMu.Lock()
	dispatchFunc = fn
	dispatchMu.Unlock()
}

// Dispatch schedules a callback on the main thread. It returns false if no
// dispatch function is registered or the callback is nil.
func Dispatch(callback func()) bool {
	dispatchMu.RLock()
	fn := dispatchFunc
	dispatchMu.RUnlock()
	if fn == nil || callback == nil {
		return false
	}
	fn(callback)
	return true
}

type mainThread struct{}

func (mainThread) Dispatch(fn func()) {
	if !Dispatch(fn) && fn != nil {
		fn()
	}
}

// MainThread is a geolocation.Dispatcher backed by RegisterDispatch. Before a
// dispatch function is registered, callbacks run inline.
var MainThread geolocation.Dispatcher = mainThread{}
