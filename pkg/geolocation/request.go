package geolocation

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes one-shot requests from standing subscriptions.
type Kind int

const (
	// SingleFix delivers exactly one terminal event.
	SingleFix Kind = iota
	// Watch delivers a stream of events until cleared.
	Watch
)

func (k Kind) String() string {
	if k == Watch {
		return "watch"
	}
	return "single_fix"
}

// Priority selects the provider's power/accuracy trade-off.
type Priority int

const (
	// PriorityBalancedPowerAccuracy is used when high accuracy is not requested.
	PriorityBalancedPowerAccuracy Priority = iota
	// PriorityHighAccuracy asks for the best available fix.
	PriorityHighAccuracy
)

func (p Priority) String() string {
	if p == PriorityHighAccuracy {
		return "high_accuracy"
	}
	return "balanced_power_accuracy"
}

// DefaultWatchInterval is the watch interval used when no maximum age is given.
const DefaultWatchInterval = 5 * time.Second

// Options carries the caller's request parameters.
type Options struct {
	// HighAccuracy requests the best available priority.
	HighAccuracy bool
	// Timeout bounds a SingleFix request. Zero means no expiration.
	Timeout time.Duration
	// MaxAge is the Watch update interval. Zero selects the configured default.
	MaxAge time.Duration
}

// ProviderRequest is what the location client subscribes with.
type ProviderRequest struct {
	Priority Priority
	// Interval is the desired spacing between updates.
	Interval time.Duration
	// NumUpdates caps the number of updates; zero is unbounded.
	NumUpdates int
	// Expiration ends the subscription after the given duration; zero never expires.
	Expiration time.Duration
}

func priorityFor(highAccuracy bool) Priority {
	if highAccuracy {
		return PriorityHighAccuracy
	}
	return PriorityBalancedPowerAccuracy
}

// singleFixRequest builds a one-update request. The zero interval lets a
// provider that becomes available after the request still fire.
func singleFixRequest(opts Options) ProviderRequest {
	req := ProviderRequest{
		Priority:   priorityFor(opts.HighAccuracy),
		NumUpdates: 1,
	}
	if opts.Timeout > 0 {
		req.Expiration = opts.Timeout
	}
	return req
}

func watchRequest(opts Options, defaultInterval time.Duration) ProviderRequest {
	interval := opts.MaxAge
	if interval <= 0 {
		interval = defaultInterval
	}
	return ProviderRequest{
		Priority: priorityFor(opts.HighAccuracy),
		Interval: interval,
	}
}

// RequestID identifies a logical request. It is derived deterministically
// from the caller's correlation token.
type RequestID uuid.UUID

var requestNamespace = uuid.MustParse("6f1c2b8e-3d4a-5e7f-9a0b-1c2d3e4f5a6b")

// NewRequestID hashes a correlation token into a RequestID.
func NewRequestID(token string) RequestID {
	return RequestID(uuid.NewSHA1(requestNamespace, []byte(token)))
}

func (id RequestID) String() string {
	return uuid.UUID(id).String()
}
