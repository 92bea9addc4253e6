// Package platform carries geolocation traffic between Go and the native host
// over named channels. Method channels carry request/response calls in both
// directions; event channels carry native-to-Go streams such as permission
// results, provider updates and resolution outcomes.
package platform

import (
	"encoding/json"
	"errors"
)

// MessageCodec encodes and decodes channel payloads.
type MessageCodec interface {
	// Encode converts a Go value to bytes for the native side.
	Encode(value any) ([]byte, error)

	// Decode converts bytes from the native side to a Go value.
	Decode(data []byte) (any, error)
}

// JsonCodec implements MessageCodec using JSON encoding.
type JsonCodec struct{}

// Encode serializes the value to JSON bytes.
func (c JsonCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode deserializes JSON bytes to a Go value. Empty input decodes to nil.
func (c JsonCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// DefaultCodec is the codec used by all channels.
var DefaultCodec MessageCodec = JsonCodec{}

var (
	// ErrChannelNotFound indicates no Go handler is registered for a channel.
	ErrChannelNotFound = errors.New("platform channel not found")

	// ErrMethodNotFound indicates the method is not implemented on the receiving side.
	ErrMethodNotFound = errors.New("method not implemented")

	// ErrInvalidArguments indicates a call's arguments could not be interpreted.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrPlatformUnavailable indicates no native bridge is installed.
	ErrPlatformUnavailable = errors.New("platform feature unavailable")
)

// ChannelError is an error reported by native code.
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewChannelError creates a ChannelError.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}
