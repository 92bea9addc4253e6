package geolocation

import (
	"encoding/json"
	"fmt"
)

// ErrorKind tags a LocationError.
type ErrorKind int

const (
	// KindServiceUnavailable indicates the location services backend is missing or outdated.
	KindServiceUnavailable ErrorKind = iota + 1
	// KindPermissionDenied indicates neither coarse nor fine location was granted.
	KindPermissionDenied
	// KindSettingsUnsatisfiable indicates the device settings cannot serve the request.
	KindSettingsUnsatisfiable
	// KindResolutionDenied indicates the user declined the settings resolution prompt.
	KindResolutionDenied
	// KindSerializationFailure indicates a provider value could not be encoded.
	KindSerializationFailure
	// KindWatchNotFound indicates clearWatch was called with an unknown token.
	KindWatchNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case KindServiceUnavailable:
		return "service_unavailable"
	case KindPermissionDenied:
		return "permission_denied"
	case KindSettingsUnsatisfiable:
		return "settings_unsatisfiable"
	case KindResolutionDenied:
		return "resolution_denied"
	case KindSerializationFailure:
		return "serialization_failure"
	case KindWatchNotFound:
		return "watch_not_found"
	default:
		return "unknown"
	}
}

// Wire codes. Stable across releases; callers switch on them.
const (
	CodePermissionDenied             = 1
	CodeServiceUnavailable           = 2
	CodeServiceUnavailableResolvable = 3
	CodeSettingsUnsatisfiable        = 4
	CodeSettingsResolvable           = 5
	CodeResolutionDenied             = 6
	CodeSerializationFailure         = 7
	CodeWatchNotFound                = 8
)

// LocationError is the terminal failure reported to a caller.
type LocationError struct {
	Kind       ErrorKind
	Resolvable bool
	Code       int
	Message    string
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("geolocation: %s: %s", e.Kind, e.Message)
}

// Is matches on Kind, so errors.Is(err, ErrWatchNotFound) holds for any
// WatchNotFound error regardless of message.
func (e *LocationError) Is(target error) bool {
	t, ok := target.(*LocationError)
	return ok && t.Kind == e.Kind
}

// MarshalJSON encodes the wire payload {"code": n, "message": "..."}.
func (e *LocationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{e.Code, e.Message})
}

// Sentinels for errors.Is comparisons.
var (
	ErrServiceUnavailable    = &LocationError{Kind: KindServiceUnavailable}
	ErrPermissionDenied      = &LocationError{Kind: KindPermissionDenied}
	ErrSettingsUnsatisfiable = &LocationError{Kind: KindSettingsUnsatisfiable}
	ErrResolutionDenied      = &LocationError{Kind: KindResolutionDenied}
	ErrSerializationFailure  = &LocationError{Kind: KindSerializationFailure}
	ErrWatchNotFound         = &LocationError{Kind: KindWatchNotFound}
)

// ServiceUnavailable reports a GoogleServicesError. A resolvable error is one
// the user can fix through the availability collaborator's own dialog.
func ServiceUnavailable(resolvable bool) *LocationError {
	if resolvable {
		return &LocationError{
			Kind:       KindServiceUnavailable,
			Resolvable: true,
			Code:       CodeServiceUnavailableResolvable,
			Message:    "Google Play Services error user resolvable.",
		}
	}
	return &LocationError{
		Kind:    KindServiceUnavailable,
		Code:    CodeServiceUnavailable,
		Message: "Google Play Services error.",
	}
}

// PermissionDenied reports that the location permission prompt was refused.
func PermissionDenied() *LocationError {
	return &LocationError{
		Kind:    KindPermissionDenied,
		Code:    CodePermissionDenied,
		Message: "Location permission request denied.",
	}
}

// SettingsUnsatisfiable reports that the device settings cannot serve a request.
func SettingsUnsatisfiable(resolvable bool) *LocationError {
	if resolvable {
		return &LocationError{
			Kind:       KindSettingsUnsatisfiable,
			Resolvable: true,
			Code:       CodeSettingsResolvable,
			Message:    "Location settings are not satisfied; a resolution is available.",
		}
	}
	return &LocationError{
		Kind:    KindSettingsUnsatisfiable,
		Code:    CodeSettingsUnsatisfiable,
		Message: "Location settings error.",
	}
}

// ResolutionDenied reports that the user declined to enable location.
func ResolutionDenied() *LocationError {
	return &LocationError{
		Kind:    KindResolutionDenied,
		Code:    CodeResolutionDenied,
		Message: "Request to enable location denied.",
	}
}

// SerializationFailure reports that a location could not be encoded.
func SerializationFailure(cause error) *LocationError {
	msg := "Error serializing location."
	if cause != nil {
		msg = fmt.Sprintf("Error serializing location: %v", cause)
	}
	return &LocationError{
		Kind:    KindSerializationFailure,
		Code:    CodeSerializationFailure,
		Message: msg,
	}
}

// WatchNotFound reports that no request is registered under a token.
func WatchNotFound() *LocationError {
	return &LocationError{
		Kind:    KindWatchNotFound,
		Code:    CodeWatchNotFound,
		Message: "WatchId not found.",
	}
}

// ErrorFromCode rebuilds a LocationError from a wire code reported by a native
// provider. A non-empty message replaces the default one. Unknown codes read
// as a fatal ServiceUnavailable.
func ErrorFromCode(code int, message string) *LocationError {
	var lerr *LocationError
	switch code {
	case CodePermissionDenied:
		lerr = PermissionDenied()
	case CodeServiceUnavailableResolvable:
		lerr = ServiceUnavailable(true)
	case CodeSettingsUnsatisfiable:
		lerr = SettingsUnsatisfiable(false)
	case CodeSettingsResolvable:
		lerr = SettingsUnsatisfiable(true)
	case CodeResolutionDenied:
		lerr = ResolutionDenied()
	case CodeSerializationFailure:
		lerr = SerializationFailure(nil)
	case CodeWatchNotFound:
		lerr = WatchNotFound()
	default:
		lerr = ServiceUnavailable(false)
	}
	if message != "" {
		lerr.Message = message
	}
	return lerr
}
