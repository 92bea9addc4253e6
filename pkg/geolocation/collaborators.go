package geolocation

// Permission names a runtime permission understood by the host.
type Permission string

// Location permissions. Holding either is enough to subscribe.
const (
	PermissionCoarseLocation Permission = "android.permission.ACCESS_COARSE_LOCATION"
	PermissionFineLocation   Permission = "android.permission.ACCESS_FINE_LOCATION"
)

// LocationPermissions is the set requested before any provider call.
var LocationPermissions = []Permission{PermissionCoarseLocation, PermissionFineLocation}

// Grant is the outcome for one permission in a prompt.
type Grant struct {
	Permission Permission
	Granted    bool
}

// PermissionResult is what a permission prompt returns. A prompt dismissed
// without an answer yields no grants at all.
type PermissionResult struct {
	Grants []Grant
}

// Cancelled reports whether the prompt was dismissed without results.
func (r PermissionResult) Cancelled() bool {
	return len(r.Grants) == 0
}

// AnyGranted reports whether at least one permission was granted.
func (r PermissionResult) AnyGranted() bool {
	for _, g := range r.Grants {
		if g.Granted {
			return true
		}
	}
	return false
}

// PermissionSubsystem checks and requests runtime permissions.
type PermissionSubsystem interface {
	// HasPermission reports whether the whole set is already held.
	HasPermission(perms []Permission) bool
	// RequestPermissions shows the prompt. done is called at most once,
	// from any goroutine.
	RequestPermissions(perms []Permission, id RequestID, done func(PermissionResult))
}

// SettingsStatus is the outcome of a settings check.
type SettingsStatus int

const (
	// SettingsSatisfied means the request can be served as is.
	SettingsSatisfied SettingsStatus = iota
	// SettingsNeedsResolution means the user can fix the settings through a prompt.
	SettingsNeedsResolution
	// SettingsUnresolvable means the settings cannot be fixed from here.
	SettingsUnresolvable
)

func (s SettingsStatus) String() string {
	switch s {
	case SettingsSatisfied:
		return "satisfied"
	case SettingsNeedsResolution:
		return "needs_resolution"
	default:
		return "unsatisfiable"
	}
}

// ResolutionHandle is the opaque token a LocationClient hands out for a fixable settings problem.
type ResolutionHandle string

// SettingsResult reports a settings check.
type SettingsResult struct {
	Status SettingsStatus
	// Resolution is set when Status is SettingsNeedsResolution.
	Resolution ResolutionHandle
	// Err carries the provider's reason when Status is SettingsUnresolvable.
	Err error
}

// SubscriptionID is the opaque handle returned by LocationClient.Subscribe.
type SubscriptionID string

// ProviderUpdate is one provider callback: a batch of locations in emission
// order, or an error.
type ProviderUpdate struct {
	Locations []Location
	Err       *LocationError
}

// LocationClient is the platform location provider.
type LocationClient interface {
	// CheckSettings asks whether the current device settings satisfy req.
	// done is called exactly once, from any goroutine.
	CheckSettings(req ProviderRequest, done func(SettingsResult))
	// Subscribe starts updates for req. cb may be called from any goroutine,
	// possibly before Subscribe returns.
	Subscribe(req ProviderRequest, cb func(ProviderUpdate)) (SubscriptionID, error)
	// Unsubscribe stops updates for id. Unknown ids are ignored.
	Unsubscribe(id SubscriptionID) error
}

// ResolutionPresenter shows the OS settings-resolution prompt. The outcome
// arrives later through Orchestrator.CompleteResolution with the same token.
type ResolutionPresenter interface {
	Present(handle ResolutionHandle, token int) error
}

// Availability is the state of the location services backend.
type Availability int

const (
	// Available means requests may proceed.
	Available Availability = iota
	// UnavailableResolvable means the user can repair the backend.
	UnavailableResolvable
	// UnavailableFatal means the backend cannot be used on this device.
	UnavailableFatal
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case UnavailableResolvable:
		return "unavailable_resolvable"
	default:
		return "unavailable_fatal"
	}
}

// ServiceAvailability gates every incoming request.
type ServiceAvailability interface {
	Availability() Availability
}

// ErrorDialogPresenter is implemented by availability checks that can show
// their own repair dialog for a resolvable outage.
type ErrorDialogPresenter interface {
	ShowErrorDialog()
}
