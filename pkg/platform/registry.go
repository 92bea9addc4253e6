package platform

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/mod/semver"

	"github.com/go-drift/geolocation/pkg/errors"
)

// ProtocolVersion is the channel protocol spoken by this package. Bridges
// reporting a different major version, or a version older than
// minProtocolVersion, are rejected.
const ProtocolVersion = "v1.1.0"

const minProtocolVersion = "v1.0.0"

// channelRegistry holds every channel that can receive native traffic.
type channelRegistry struct {
	mu             sync.RWMutex
	methodChannels map[string]*MethodChannel
	eventChannels  map[string]*EventChannel
}

var registry = &channelRegistry{
	methodChannels: make(map[string]*MethodChannel),
	eventChannels:  make(map[string]*EventChannel),
}

func (r *channelRegistry) registerMethod(name string, ch *MethodChannel) {
	r.mu.Lock()
	r.methodChannels[name] = ch
	r.mu.Unlock()
}

func (r *channelRegistry) registerEvent(name string, ch *EventChannel) {
	r.mu.Lock()
	r.eventChannels[name] = ch
	r.mu.Unlock()
}

func (r *channelRegistry) getMethodChannel(name string) *MethodChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.methodChannels[name]
}

func (r *channelRegistry) getEventChannel(name string) *EventChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eventChannels[name]
}

func (r *channelRegistry) events() []*EventChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	channels := make([]*EventChannel, 0, len(r.eventChannels))
	for _, ch := range r.eventChannels {
		channels = append(channels, ch)
	}
	return channels
}

// NativeBridge is the host side of the channel transport.
type NativeBridge interface {
	// InvokeMethod calls a method on the native side.
	InvokeMethod(channel, method string, args []byte) ([]byte, error)

	// StartEventStream tells native to start sending events for a channel.
	StartEventStream(channel string) error

	// StopEventStream tells native to stop sending events for a channel.
	StopEventStream(channel string) error
}

// VersionedBridge is a NativeBridge that reports its protocol version.
type VersionedBridge interface {
	NativeBridge
	ProtocolVersion() string
}

var (
	bridgeMu     sync.RWMutex
	nativeBridge NativeBridge
)

func currentBridge() NativeBridge {
	bridgeMu.RLock()
	defer bridgeMu.RUnlock()
	return nativeBridge
}

// SetNativeBridge installs the native bridge. Passing nil detaches it.
//
// A VersionedBridge must speak a compatible protocol; otherwise
// ErrIncompatibleBridge is returned and the previous bridge stays installed.
// Event channels that acquired listeners before a bridge was available have
// their streams started; start failures go to the listeners' OnError.
func SetNativeBridge(bridge NativeBridge) error {
	if err := checkProtocol(bridge); err != nil {
		return err
	}
	bridgeMu.Lock()
	nativeBridge = bridge
	bridgeMu.Unlock()
	if bridge == nil {
		return nil
	}

	for _, ch := range registry.events() {
		ch.mu.Lock()
		shouldStart := len(ch.subscriptions) > 0 && !ch.started
		if shouldStart {
			ch.started = true
		}
		ch.mu.Unlock()

		if shouldStart {
			if err := startEventStream(ch.name); err != nil {
				ch.mu.Lock()
				ch.started = false
				ch.mu.Unlock()
				ch.dispatchError(err)
			}
		}
	}
	return nil
}

func checkProtocol(bridge NativeBridge) error {
	vb, ok := bridge.(VersionedBridge)
	if !ok {
		return nil
	}
	raw := vb.ProtocolVersion()
	v := raw
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: malformed version %q", ErrIncompatibleBridge, raw)
	}
	if semver.Major(v) != semver.Major(ProtocolVersion) || semver.Compare(v, minProtocolVersion) < 0 {
		return fmt.Errorf("%w: native speaks %s, need %s.x at or above %s",
			ErrIncompatibleBridge, v, semver.Major(ProtocolVersion), minProtocolVersion)
	}
	return nil
}

func invokeNative(channel, method string, args any) (any, error) {
	bridge := currentBridge()
	if bridge == nil {
		return nil, ErrPlatformUnavailable
	}

	argsData, err := DefaultCodec.Encode(args)
	if err != nil {
		return nil, err
	}

	resultData, err := bridge.InvokeMethod(channel, method, argsData)
	if err != nil {
		return nil, err
	}

	return DefaultCodec.Decode(resultData)
}

// newBackOff is the retry schedule for idempotent calls.
var newBackOff = func() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	b.RandomizationFactor = 0.1
	return b
}

func invokeWithRetry(ctx context.Context, channel, method string, args any) (any, error) {
	var result any
	err := backoff.Retry(func() error {
		r, err := invokeNative(channel, method, args)
		if err == nil {
			result = r
			return nil
		}
		if stderrors.Is(err, ErrNotConnected) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(newBackOff(), ctx))
	return result, err
}

func startEventStream(channel string) error {
	bridge := currentBridge()
	err := ErrPlatformUnavailable
	if bridge != nil {
		err = bridge.StartEventStream(channel)
	}
	if err != nil {
		errors.Report(&errors.PluginError{
			Op:      "platform.startEventStream",
			Kind:    errors.KindPlatform,
			Channel: channel,
			Err:     err,
		})
	}
	return err
}

func stopEventStream(channel string) error {
	bridge := currentBridge()
	if bridge == nil {
		return ErrPlatformUnavailable
	}
	err := bridge.StopEventStream(channel)
	if err != nil && !stderrors.Is(err, ErrClosed) {
		errors.Report(&errors.PluginError{
			Op:      "platform.stopEventStream",
			Kind:    errors.KindPlatform,
			Channel: channel,
			Err:     err,
		})
	}
	return err
}

// HandleMethodCall is called by the host when native invokes a Go method.
func HandleMethodCall(channel, method string, argsData []byte) ([]byte, error) {
	ch := registry.getMethodChannel(channel)
	if ch == nil {
		return nil, ErrChannelNotFound
	}

	args, err := DefaultCodec.Decode(argsData)
	if err != nil {
		return nil, err
	}

	result, err := ch.handleCall(method, args)
	if err != nil {
		return nil, err
	}

	return DefaultCodec.Encode(result)
}

// ErrChannelNotRegistered is returned when an event arrives for an unknown channel.
var ErrChannelNotRegistered = stderrors.New("event channel not registered")

func eventChannelFor(op, channel string) (*EventChannel, error) {
	ch := registry.getEventChannel(channel)
	if ch != nil {
		return ch, nil
	}
	err := fmt.Errorf("%w: %s", ErrChannelNotRegistered, channel)
	errors.Report(&errors.PluginError{
		Op:      op,
		Kind:    errors.KindPlatform,
		Channel: channel,
		Err:     err,
	})
	return nil, err
}

// HandleEvent is called by the host when native sends an event.
func HandleEvent(channel string, eventData []byte) error {
	ch, err := eventChannelFor("platform.HandleEvent", channel)
	if err != nil {
		return err
	}

	data, err := DefaultCodec.Decode(eventData)
	if err != nil {
		ch.dispatchError(err)
		return err
	}

	ch.dispatchEvent(data)
	return nil
}

// HandleEventError is called by the host when an event stream fails.
func HandleEventError(channel string, code, message string) error {
	ch, err := eventChannelFor("platform.HandleEventError", channel)
	if err != nil {
		return err
	}
	ch.dispatchError(NewChannelError(code, message))
	return nil
}

// HandleEventDone is called by the host when an event stream ends.
func HandleEventDone(channel string) error {
	ch, err := eventChannelFor("platform.HandleEventDone", channel)
	if err != nil {
		return err
	}
	ch.dispatchDone()
	return nil
}

// ResetForTest clears the bridge, the dispatch function and every channel.
// Adapters must be recreated afterwards. Only for tests.
func ResetForTest() {
	bridgeMu.Lock()
	nativeBridge = nil
	bridgeMu.Unlock()

	dispatchMu.Lock()
	dispatchFunc = nil
	dispatchMu.Unlock()

	registry.mu.Lock()
	registry.methodChannels = make(map[string]*MethodChannel)
	registry.eventChannels = make(map[string]*EventChannel)
	registry.mu.Unlock()
}
