package platform

import (
	"context"

	"github.com/go-drift/geolocation/pkg/errors"
	"github.com/go-drift/geolocation/pkg/geolocation"
)

const servicesChannel = "geolocation/services"

// ServicesBridge implements geolocation.ServiceAvailability and
// geolocation.ErrorDialogPresenter.
type ServicesBridge struct {
	channel *MethodChannel
}

// NewServicesBridge creates the adapter.
func NewServicesBridge() *ServicesBridge {
	return &ServicesBridge{channel: NewMethodChannel(servicesChannel)}
}

// Availability queries the native location services backend. Any failure
// reads as UnavailableFatal.
func (b *ServicesBridge) Availability() geolocation.Availability {
	result, err := b.channel.InvokeIdempotent(context.Background(), "availability", nil)
	if err != nil {
		errors.Report(&errors.PluginError{
			Op:      "services.availability",
			Kind:    errors.KindPlatform,
			Channel: servicesChannel,
			Err:     err,
		})
		return geolocation.UnavailableFatal
	}
	m, _ := parseMap(result)
	switch parseString(m["status"]) {
	case "available":
		return geolocation.Available
	case "resolvable":
		return geolocation.UnavailableResolvable
	default:
		return geolocation.UnavailableFatal
	}
}

// ShowErrorDialog asks the native side to show its own repair dialog.
func (b *ServicesBridge) ShowErrorDialog() {
	if _, err := b.channel.Invoke("showErrorDialog", nil); err != nil {
		errors.Report(&errors.PluginError{
			Op:      "services.showErrorDialog",
			Kind:    errors.KindPlatform,
			Channel: servicesChannel,
			Err:     err,
		})
	}
}
