package platform

import (
	"fmt"
	"sync"

	"github.com/go-drift/geolocation/pkg/geolocation"
)

const (
	resolutionChannel        = "geolocation/resolution"
	resolutionResultsChannel = "geolocation/resolution/results"
)

// ResolutionBridge implements geolocation.ResolutionPresenter. The native side
// launches the settings prompt with the given request code and later reports
// the outcome on an event channel; outcomes go to the function set by Bind.
type ResolutionBridge struct {
	channel *MethodChannel
	stop    func()

	mu       sync.RWMutex
	complete func(token int, outcome geolocation.ResolutionOutcome)
}

type resolutionResponse struct {
	token   int
	granted bool
}

// NewResolutionBridge creates the adapter and starts listening for outcomes.
func NewResolutionBridge() *ResolutionBridge {
	b := &ResolutionBridge{channel: NewMethodChannel(resolutionChannel)}
	results := NewStream(NewEventChannel(resolutionResultsChannel), parseResolutionResponse)
	b.stop = results.Listen(b.onResult)
	return b
}

// Bind routes outcomes to complete, normally Orchestrator.CompleteResolution.
func (b *ResolutionBridge) Bind(complete func(token int, outcome geolocation.ResolutionOutcome)) {
	b.mu.Lock()
	b.complete = complete
	b.mu.Unlock()
}

// Close stops listening for outcomes.
func (b *ResolutionBridge) Close() {
	b.stop()
}

// Present launches the resolution prompt identified by handle.
func (b *ResolutionBridge) Present(handle geolocation.ResolutionHandle, token int) error {
	_, err := b.channel.Invoke("present", map[string]any{
		"resolution":  string(handle),
		"requestCode": token,
	})
	return err
}

func (b *ResolutionBridge) onResult(resp resolutionResponse) {
	b.mu.RLock()
	complete := b.complete
	b.mu.RUnlock()
	if complete == nil {
		return
	}
	outcome := geolocation.ResolutionRefused
	if resp.granted {
		outcome = geolocation.ResolutionGranted
	}
	complete(resp.token, outcome)
}

// parseResolutionResponse reads {"requestCode": 100, "granted": true}.
func parseResolutionResponse(data any) (resolutionResponse, error) {
	m, ok := parseMap(data)
	if !ok {
		return resolutionResponse{}, fmt.Errorf("resolution result: expected map, got %T", data)
	}
	code, ok := toInt64(m["requestCode"])
	if !ok {
		return resolutionResponse{}, fmt.Errorf("resolution result: missing requestCode")
	}
	return resolutionResponse{token: int(code), granted: parseBool(m["granted"])}, nil
}
