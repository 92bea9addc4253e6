package geolocation

import "sync"

// RequestContext is the per-request state owned by the Orchestrator.
type RequestContext struct {
	ID      RequestID
	Token   string
	Kind    Kind
	Options Options
	Request ProviderRequest

	sink Sink

	mu       sync.Mutex
	sub      SubscriptionID
	last     SubscriptionID
	settings func()
	closed   bool
}

func newRequestContext(kind Kind, token string, opts Options, req ProviderRequest, sink Sink) *RequestContext {
	return &RequestContext{
		ID:      NewRequestID(token),
		Token:   token,
		Kind:    kind,
		Options: opts,
		Request: req,
		sink:    sink,
	}
}

// Subscription returns the attached provider subscription, if any.
func (rc *RequestContext) Subscription() (SubscriptionID, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.sub, rc.sub != ""
}

// attach records the provider subscription. It returns false when the context
// was released before the subscription came back; the caller owns the handle
// then and must unsubscribe it.
func (rc *RequestContext) attach(id SubscriptionID) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return false
	}
	rc.sub = id
	rc.last = id
	return true
}

// detach closes the context and hands back its subscription, if one was attached.
func (rc *RequestContext) detach() SubscriptionID {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.closed = true
	id := rc.sub
	rc.sub = ""
	return id
}

// lastSubscription returns the most recently attached subscription, even
// after it was detached.
func (rc *RequestContext) lastSubscription() SubscriptionID {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.last
}

// trackSettings records how to abandon the settings check started for the
// context. It returns false when the context is already closed; the caller
// abandons the check itself then.
func (rc *RequestContext) trackSettings(abandon func()) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return false
	}
	rc.settings = abandon
	return true
}

// untrackSettings hands back the recorded settings abandon func, if any.
func (rc *RequestContext) untrackSettings() func() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	abandon := rc.settings
	rc.settings = nil
	return abandon
}
