package geolocation

import "encoding/json"

// Status mirrors the host's plugin result status.
type Status int

const (
	StatusOK Status = iota
	StatusError
	// StatusIllegalAccess is used for permission denials.
	StatusIllegalAccess
	// StatusJSONException is used for serialization failures.
	StatusJSONException
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusIllegalAccess:
		return "ILLEGAL_ACCESS_EXCEPTION"
	case StatusJSONException:
		return "JSON_EXCEPTION"
	default:
		return "UNKNOWN"
	}
}

// Result is one event delivered to a caller.
type Result struct {
	Status Status
	// Payload is the wire message: a fix, an error payload, or nil for an ack.
	Payload json.RawMessage
	// KeepOpen tells the host more results will follow on this channel.
	KeepOpen bool

	// Fix is set for successful location results.
	Fix *Fix
	// Err is set for error results.
	Err *LocationError
}

// Sink receives results for one logical request.
type Sink interface {
	Send(Result)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Result)

// Send calls f(r).
func (f SinkFunc) Send(r Result) { f(r) }

// Policy is what happens to a request's channel after a delivery.
type Policy int

const (
	// CloseAfterOne removes the context after the first delivery.
	CloseAfterOne Policy = iota
	// KeepOpen leaves the context registered for further deliveries.
	KeepOpen
)

// DeliveryPolicy maps a request kind to its channel policy.
func DeliveryPolicy(k Kind) Policy {
	if k == Watch {
		return KeepOpen
	}
	return CloseAfterOne
}

func errorResult(lerr *LocationError) Result {
	status := StatusError
	switch lerr.Kind {
	case KindPermissionDenied:
		status = StatusIllegalAccess
	case KindSerializationFailure:
		status = StatusJSONException
	}
	payload, _ := json.Marshal(lerr)
	return Result{Status: status, Payload: payload, Err: lerr}
}

// ackResult is the empty success sent for clearWatch.
func ackResult() Result {
	return Result{Status: StatusOK}
}

// deliverSuccess serializes loc and delivers it under rc's policy. A
// serialization failure is delivered as SerializationFailure under the same policy.
func (o *Orchestrator) deliverSuccess(rc *RequestContext, loc Location) {
	payload, fix, err := encodeFix(loc)
	if err != nil {
		o.deliverError(rc, SerializationFailure(err))
		return
	}
	o.deliver(rc, Result{Status: StatusOK, Payload: payload, Fix: &fix})
}

// deliverError delivers a provider-side error under rc's policy.
func (o *Orchestrator) deliverError(rc *RequestContext, lerr *LocationError) {
	o.deliver(rc, errorResult(lerr))
}

func (o *Orchestrator) deliver(rc *RequestContext, res Result) {
	if DeliveryPolicy(rc.Kind) == KeepOpen {
		res.KeepOpen = true
		rc.sink.Send(res)
		return
	}
	o.finish(rc)
	rc.sink.Send(res)
}

// terminate ends rc with lerr regardless of kind. Used for failures before a
// subscription exists (permission, settings, resolution).
func (o *Orchestrator) terminate(rc *RequestContext, lerr *LocationError) {
	o.finish(rc)
	rc.sink.Send(errorResult(lerr))
}
