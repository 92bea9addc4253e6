package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/go-drift/geolocation/pkg/errors"
	"github.com/go-drift/geolocation/pkg/geolocation"
)

const (
	providerChannel = "geolocation/provider"
	updatesChannel  = "geolocation/provider/updates"
)

// LocationBridge implements geolocation.LocationClient over platform channels.
// Each subscription gets a fresh handle; provider updates carry it back and
// are routed to the subscriber that owns it.
type LocationBridge struct {
	channel *MethodChannel
	updates *Stream[providerEvent]

	mu   sync.Mutex
	subs map[geolocation.SubscriptionID]func(geolocation.ProviderUpdate)
	stop func()
}

type providerEvent struct {
	id     geolocation.SubscriptionID
	update geolocation.ProviderUpdate
}

// NewLocationBridge creates the adapter and starts listening for updates.
func NewLocationBridge() *LocationBridge {
	b := &LocationBridge{
		channel: NewMethodChannel(providerChannel),
		subs:    make(map[geolocation.SubscriptionID]func(geolocation.ProviderUpdate)),
	}
	b.updates = NewStream(NewEventChannel(updatesChannel), parseProviderEvent)
	b.stop = b.updates.Listen(b.onUpdate)
	return b
}

// Close stops listening for updates. Subscriptions are forgotten but not
// cancelled on the native side.
func (b *LocationBridge) Close() {
	b.stop()
	b.mu.Lock()
	clear(b.subs)
	b.mu.Unlock()
}

// CheckSettings asks the native side whether req can be served. done is
// called before CheckSettings returns.
func (b *LocationBridge) CheckSettings(req geolocation.ProviderRequest, done func(geolocation.SettingsResult)) {
	result, err := b.channel.InvokeIdempotent(context.Background(), "checkSettings", requestArgs(req))
	if err != nil {
		done(geolocation.SettingsResult{Status: geolocation.SettingsUnresolvable, Err: err})
		return
	}
	done(parseSettingsResult(result))
}

// Subscribe starts provider updates for req.
func (b *LocationBridge) Subscribe(req geolocation.ProviderRequest, cb func(geolocation.ProviderUpdate)) (geolocation.SubscriptionID, error) {
	id := geolocation.SubscriptionID(uuid.NewString())
	b.mu.Lock()
	b.subs[id] = cb
	b.mu.Unlock()

	args := requestArgs(req)
	args["subscriptionId"] = string(id)
	if _, err := b.channel.InvokeIdempotent(context.Background(), "subscribe", args); err != nil {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		return "", err
	}
	return id, nil
}

// Unsubscribe stops updates for id. Updates already in flight for id are
// dropped on arrival.
func (b *LocationBridge) Unsubscribe(id geolocation.SubscriptionID) error {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
	_, err := b.channel.InvokeIdempotent(context.Background(), "unsubscribe", map[string]any{
		"subscriptionId": string(id),
	})
	return err
}

// Active returns the number of live subscriptions.
func (b *LocationBridge) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *LocationBridge) onUpdate(ev providerEvent) {
	b.mu.Lock()
	cb := b.subs[ev.id]
	b.mu.Unlock()
	if cb == nil {
		return
	}
	cb(ev.update)
}

func requestArgs(req geolocation.ProviderRequest) map[string]any {
	return map[string]any{
		"priority":     req.Priority.String(),
		"intervalMs":   millis(req.Interval),
		"numUpdates":   req.NumUpdates,
		"expirationMs": millis(req.Expiration),
	}
}

// parseSettingsResult reads
//
//	{"status": "satisfied" | "resolution_required" | "unsatisfiable", "resolution": "...", "message": "..."}
func parseSettingsResult(data any) geolocation.SettingsResult {
	m, _ := parseMap(data)
	switch parseString(m["status"]) {
	case "satisfied":
		return geolocation.SettingsResult{Status: geolocation.SettingsSatisfied}
	case "resolution_required":
		return geolocation.SettingsResult{
			Status:     geolocation.SettingsNeedsResolution,
			Resolution: geolocation.ResolutionHandle(parseString(m["resolution"])),
		}
	default:
		var err error
		if msg := parseString(m["message"]); msg != "" {
			err = NewChannelError("settings", msg)
		}
		return geolocation.SettingsResult{Status: geolocation.SettingsUnresolvable, Err: err}
	}
}

// parseProviderEvent reads
//
//	{"subscriptionId": "...", "locations": [{...}], "error": {"code": 2, "message": "..."}}
func parseProviderEvent(data any) (providerEvent, error) {
	m, ok := parseMap(data)
	if !ok {
		return providerEvent{}, fmt.Errorf("provider update: expected map, got %T", data)
	}
	ev := providerEvent{id: geolocation.SubscriptionID(parseString(m["subscriptionId"]))}
	if ev.id == "" {
		return providerEvent{}, fmt.Errorf("provider update: missing subscriptionId")
	}
	for i, raw := range parseList(m["locations"]) {
		loc, err := parseLocation(raw)
		if err != nil {
			errors.Report(&errors.PluginError{
				Op:      "provider.parseLocation",
				Kind:    errors.KindParsing,
				Channel: updatesChannel,
				Err:     fmt.Errorf("location %d: %w", i, err),
			})
			continue
		}
		ev.update.Locations = append(ev.update.Locations, loc)
	}
	if e, ok := parseMap(m["error"]); ok {
		code, _ := toInt64(e["code"])
		ev.update.Err = geolocation.ErrorFromCode(int(code), parseString(e["message"]))
	}
	return ev, nil
}

func parseLocation(data any) (geolocation.Location, error) {
	m, ok := parseMap(data)
	if !ok {
		return geolocation.Location{}, fmt.Errorf("expected map, got %T", data)
	}
	lat, okLat := toFloat64(m["latitude"])
	lon, okLon := toFloat64(m["longitude"])
	if !okLat || !okLon {
		return geolocation.Location{}, fmt.Errorf("missing coordinates")
	}
	loc := geolocation.Location{
		Latitude:  lat,
		Longitude: lon,
		Time:      parseTime(m["timestamp"]),
	}
	loc.Accuracy, _ = toFloat64(m["accuracy"])
	loc.Altitude, loc.HasAltitude = toFloat64(m["altitude"])
	loc.Heading, loc.HasHeading = toFloat64(m["heading"])
	loc.Speed, loc.HasSpeed = toFloat64(m["speed"])
	return loc, nil
}
