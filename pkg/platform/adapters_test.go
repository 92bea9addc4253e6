package platform

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/go-drift/geolocation/pkg/geolocation"
)

func TestPermissionBridge_RoutesResultsByRequestID(t *testing.T) {
	bridge := setupScriptBridge(t)
	bridge.respond = func(channel, method string, args map[string]any) (any, error) {
		if method == "check" {
			return map[string]any{"granted": false}, nil
		}
		return nil, nil
	}
	perms := NewPermissionBridge()

	if perms.HasPermission(geolocation.LocationPermissions) {
		t.Fatal("HasPermission = true")
	}

	idA, idB := geolocation.NewRequestID("a"), geolocation.NewRequestID("b")
	var gotA, gotB []geolocation.PermissionResult
	perms.RequestPermissions(geolocation.LocationPermissions, idA, func(r geolocation.PermissionResult) { gotA = append(gotA, r) })
	perms.RequestPermissions(geolocation.LocationPermissions, idB, func(r geolocation.PermissionResult) { gotB = append(gotB, r) })

	requests := bridge.callsTo(permissionsChannel, "request")
	if len(requests) != 2 || requests[0].args["requestId"] != idA.String() {
		t.Fatalf("requests = %+v", requests)
	}

	emit(t, permissionResultsChannel, map[string]any{
		"requestId": idB.String(),
		"grants": []any{
			map[string]any{"permission": string(geolocation.PermissionCoarseLocation), "granted": true},
			map[string]any{"permission": string(geolocation.PermissionFineLocation), "granted": false},
		},
	})
	emit(t, permissionResultsChannel, map[string]any{"requestId": idA.String(), "grants": []any{}})
	emit(t, permissionResultsChannel, map[string]any{"requestId": idA.String(), "grants": []any{}})

	if len(gotB) != 1 || !gotB[0].AnyGranted() {
		t.Errorf("b results = %+v", gotB)
	}
	if len(gotA) != 1 || !gotA[0].Cancelled() {
		t.Errorf("a results = %+v", gotA)
	}
	if perms.Pending() != 0 {
		t.Errorf("pending = %d", perms.Pending())
	}
}

func TestPermissionBridge_PromptFailureRefuses(t *testing.T) {
	bridge := setupScriptBridge(t)
	captureReports(t)
	bridge.respond = func(string, string, map[string]any) (any, error) {
		return nil, stderrors.New("no activity")
	}
	perms := NewPermissionBridge()

	var got []geolocation.PermissionResult
	perms.RequestPermissions(geolocation.LocationPermissions, geolocation.NewRequestID("a"), func(r geolocation.PermissionResult) {
		got = append(got, r)
	})

	if len(got) != 1 || got[0].Cancelled() || got[0].AnyGranted() {
		t.Fatalf("got %+v, want one refused result", got)
	}
}

func TestLocationBridge_SubscribeAndRoute(t *testing.T) {
	bridge := setupScriptBridge(t)
	r := captureReports(t)
	client := NewLocationBridge()

	var updates []geolocation.ProviderUpdate
	id, err := client.Subscribe(geolocation.ProviderRequest{
		Priority:   geolocation.PriorityHighAccuracy,
		NumUpdates: 1,
		Expiration: 2 * time.Second,
	}, func(u geolocation.ProviderUpdate) { updates = append(updates, u) })
	if err != nil {
		t.Fatal(err)
	}

	subs := bridge.callsTo(providerChannel, "subscribe")
	if len(subs) != 1 {
		t.Fatalf("subscribe calls = %d", len(subs))
	}
	args := subs[0].args
	if args["subscriptionId"] != string(id) || args["priority"] != "high_accuracy" ||
		args["numUpdates"] != 1.0 || args["expirationMs"] != 2000.0 {
		t.Errorf("subscribe args = %v", args)
	}

	emit(t, updatesChannel, map[string]any{
		"subscriptionId": string(id),
		"locations": []any{
			map[string]any{"latitude": 1.5, "longitude": 2.5, "accuracy": 3, "altitude": 10, "timestamp": 1700000000000},
			map[string]any{"latitude": "bad"},
		},
		"error": map[string]any{"code": geolocation.CodeSettingsUnsatisfiable, "message": "gps off"},
	})
	emit(t, updatesChannel, map[string]any{"subscriptionId": "someone-else", "locations": []any{}})

	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	u := updates[0]
	if len(u.Locations) != 1 {
		t.Fatalf("locations = %+v", u.Locations)
	}
	loc := u.Locations[0]
	if loc.Latitude != 1.5 || !loc.HasAltitude || loc.Altitude != 10 || loc.HasSpeed || loc.Time.UnixMilli() != 1700000000000 {
		t.Errorf("location = %+v", loc)
	}
	if !stderrors.Is(u.Err, geolocation.ErrSettingsUnsatisfiable) || u.Err.Message != "gps off" {
		t.Errorf("err = %v", u.Err)
	}
	if len(r.errs) != 1 || r.errs[0].Op != "provider.parseLocation" {
		t.Errorf("reports = %v", r.errs)
	}

	if err := client.Unsubscribe(id); err != nil {
		t.Fatal(err)
	}
	emit(t, updatesChannel, map[string]any{"subscriptionId": string(id), "locations": []any{}})
	if len(updates) != 1 {
		t.Errorf("update routed after unsubscribe")
	}
	if client.Active() != 0 {
		t.Errorf("active = %d", client.Active())
	}
}

func TestLocationBridge_SubscribeFailure(t *testing.T) {
	bridge := setupScriptBridge(t)
	bridge.respond = func(string, string, map[string]any) (any, error) {
		return nil, NewChannelError("unavailable", "provider gone")
	}
	client := NewLocationBridge()

	if _, err := client.Subscribe(geolocation.ProviderRequest{}, func(geolocation.ProviderUpdate) {}); err == nil {
		t.Fatal("expected error")
	}
	if client.Active() != 0 {
		t.Errorf("failed subscription left registered")
	}
}

func TestLocationBridge_CheckSettings(t *testing.T) {
	tests := []struct {
		reply  map[string]any
		status geolocation.SettingsStatus
		handle geolocation.ResolutionHandle
	}{
		{map[string]any{"status": "satisfied"}, geolocation.SettingsSatisfied, ""},
		{map[string]any{"status": "resolution_required", "resolution": "intent-7"}, geolocation.SettingsNeedsResolution, "intent-7"},
		{map[string]any{"status": "unsatisfiable", "message": "airplane"}, geolocation.SettingsUnresolvable, ""},
	}
	for _, tt := range tests {
		bridge := setupScriptBridge(t)
		bridge.respond = func(string, string, map[string]any) (any, error) { return tt.reply, nil }
		client := NewLocationBridge()

		var got geolocation.SettingsResult
		client.CheckSettings(geolocation.ProviderRequest{}, func(r geolocation.SettingsResult) { got = r })
		if got.Status != tt.status || got.Resolution != tt.handle {
			t.Errorf("reply %v: got %+v", tt.reply, got)
		}
	}
}

func TestServicesBridge_Availability(t *testing.T) {
	tests := map[string]geolocation.Availability{
		"available":  geolocation.Available,
		"resolvable": geolocation.UnavailableResolvable,
		"missing":    geolocation.UnavailableFatal,
	}
	for status, want := range tests {
		bridge := setupScriptBridge(t)
		bridge.respond = func(string, string, map[string]any) (any, error) {
			return map[string]any{"status": status}, nil
		}
		if got := NewServicesBridge().Availability(); got != want {
			t.Errorf("status %q: got %v, want %v", status, got, want)
		}
	}
}

func TestResolutionBridge_PresentAndComplete(t *testing.T) {
	bridge := setupScriptBridge(t)
	captureReports(t)
	res := NewResolutionBridge()

	type completion struct {
		token   int
		outcome geolocation.ResolutionOutcome
	}
	var got []completion
	res.Bind(func(token int, outcome geolocation.ResolutionOutcome) {
		got = append(got, completion{token, outcome})
	})

	if err := res.Present("intent-7", 100); err != nil {
		t.Fatal(err)
	}
	calls := bridge.callsTo(resolutionChannel, "present")
	if len(calls) != 1 || calls[0].args["requestCode"] != 100.0 || calls[0].args["resolution"] != "intent-7" {
		t.Fatalf("present calls = %+v", calls)
	}

	emit(t, resolutionResultsChannel, map[string]any{"requestCode": 100, "granted": true})
	emit(t, resolutionResultsChannel, map[string]any{"requestCode": 101})
	emit(t, resolutionResultsChannel, map[string]any{"granted": true})

	want := []completion{{100, geolocation.ResolutionGranted}, {101, geolocation.ResolutionRefused}}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
