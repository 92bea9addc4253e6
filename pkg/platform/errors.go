package platform

import "errors"

var (
	// ErrClosed is returned when operating on a closed channel or stream.
	ErrClosed = errors.New("platform: channel closed")

	// ErrNotConnected is returned by a bridge whose native side is not
	// attached yet. Idempotent calls retry it.
	ErrNotConnected = errors.New("platform: not connected")

	// ErrIncompatibleBridge is returned by SetNativeBridge when the native
	// side speaks an unsupported protocol version.
	ErrIncompatibleBridge = errors.New("platform: incompatible bridge protocol")
)
