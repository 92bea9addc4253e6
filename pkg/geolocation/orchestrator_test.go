package geolocation

import (
	"encoding/json"
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrMissingCollaborator)

	_, err = New(Config{
		Permissions: &fakePermissions{},
		Client:      newFakeClient(),
		Presenter:   &fakePresenter{},
	})
	require.ErrorIs(t, err, ErrMissingCollaborator)
	assert.Contains(t, err.Error(), "Services")
}

func TestGetLocation_DeliversExactlyOneFix(t *testing.T) {
	h := newHarness(t)
	sink := &recorder{}

	h.orch.GetLocation("t1", Options{HighAccuracy: true, Timeout: 5 * time.Second}, sink)
	h.drain()

	require.Len(t, h.client.subscribed, 1)
	assert.Equal(t, ProviderRequest{
		Priority:   PriorityHighAccuracy,
		NumUpdates: 1,
		Expiration: 5 * time.Second,
	}, h.client.subscribed[0])

	h.client.emit("sub-1", ProviderUpdate{Locations: []Location{testLocation(1, 2), testLocation(3, 4)}})
	h.drain()
	h.client.emit("sub-1", ProviderUpdate{Locations: []Location{testLocation(5, 6)}})
	h.drain()

	require.Len(t, sink.results, 1)
	res := sink.results[0]
	assert.Equal(t, StatusOK, res.Status)
	assert.False(t, res.KeepOpen)
	require.NotNil(t, res.Fix)
	assert.Equal(t, 1.0, res.Fix.Latitude)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(res.Payload, &wire))
	assert.Equal(t, 2.0, wire["longitude"])
	assert.Equal(t, float64(1700000000000), wire["timestamp"])
	assert.NotContains(t, wire, "altitude")

	assert.Zero(t, h.orch.Active())
	assert.Zero(t, h.client.activeCount())
}

func TestGetLocation_BalancedPriorityWithoutTimeout(t *testing.T) {
	h := newHarness(t)

	h.orch.GetLocation("t1", Options{}, &recorder{})
	h.drain()

	require.Len(t, h.client.subscribed, 1)
	req := h.client.subscribed[0]
	assert.Equal(t, PriorityBalancedPowerAccuracy, req.Priority)
	assert.Zero(t, req.Interval)
	assert.Zero(t, req.Expiration)
	assert.Equal(t, 1, req.NumUpdates)
}

func TestGetLocation_SyncCallbackDuringSubscribe(t *testing.T) {
	h := newHarness(t)
	h.orch.dispatch = Inline
	h.orch.settings.dispatch = Inline
	h.client.emitOnSubscribe = &ProviderUpdate{Locations: []Location{testLocation(1, 1)}}
	sink := &recorder{}

	h.orch.GetLocation("t1", Options{}, sink)

	require.Len(t, sink.results, 1)
	assert.Equal(t, StatusOK, sink.results[0].Status)
	assert.Zero(t, h.orch.Active())
	assert.Equal(t, []SubscriptionID{"sub-1"}, h.client.unsubscribed)
}

func TestAddWatch_RequestShape(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want ProviderRequest
	}{
		{
			name: "default interval",
			opts: Options{},
			want: ProviderRequest{Priority: PriorityBalancedPowerAccuracy, Interval: DefaultWatchInterval},
		},
		{
			name: "explicit max age",
			opts: Options{HighAccuracy: true, MaxAge: 2 * time.Second},
			want: ProviderRequest{Priority: PriorityHighAccuracy, Interval: 2 * time.Second},
		},
		{
			name: "timeout ignored for watches",
			opts: Options{Timeout: time.Second, MaxAge: time.Second},
			want: ProviderRequest{Priority: PriorityBalancedPowerAccuracy, Interval: time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.orch.AddWatch("w", tt.opts, &recorder{})
			h.drain()
			require.Len(t, h.client.subscribed, 1)
			assert.Equal(t, tt.want, h.client.subscribed[0])
		})
	}
}

func TestAddWatch_KeepsOpenAndPreservesOrder(t *testing.T) {
	h := newHarness(t)
	sink := &recorder{}

	h.orch.AddWatch("w1", Options{}, sink)
	h.drain()

	h.client.emit("sub-1", ProviderUpdate{Locations: []Location{testLocation(1, 0), testLocation(2, 0)}})
	h.client.emit("sub-1", ProviderUpdate{Locations: []Location{testLocation(3, 0)}})
	h.drain()

	require.Len(t, sink.results, 3)
	for i, res := range sink.results {
		assert.True(t, res.KeepOpen)
		assert.Equal(t, float64(i+1), res.Fix.Latitude)
	}
	assert.Equal(t, 1, h.orch.Active())
	assert.Empty(t, h.client.unsubscribed)
}

func TestClearWatch_DropsInFlightCallback(t *testing.T) {
	h := newHarness(t)
	sink := &recorder{}

	h.orch.AddWatch("w1", Options{}, sink)
	h.drain()

	// Provider fires, but the callback is still queued when the watch is cleared.
	h.client.emit("sub-1", ProviderUpdate{Locations: []Location{testLocation(1, 1)}})
	require.NoError(t, h.orch.ClearWatch("w1"))
	h.drain()

	assert.Empty(t, sink.results)
	assert.Zero(t, h.orch.Active())
	assert.Contains(t, h.client.unsubscribed, SubscriptionID("sub-1"))
	assert.Zero(t, h.client.activeCount())
}

func TestClearWatch_UnknownToken(t *testing.T) {
	h := newHarness(t)
	h.orch.AddWatch("w1", Options{}, &recorder{})
	h.drain()

	err := h.orch.ClearWatch("nope")
	require.ErrorIs(t, err, ErrWatchNotFound)

	var lerr *LocationError
	require.True(t, stderrors.As(err, &lerr))
	assert.Equal(t, CodeWatchNotFound, lerr.Code)
	assert.Equal(t, 1, h.orch.Active())
	assert.Empty(t, h.client.unsubscribed)
}

func TestClearWatch_BeforeSettingsOutcome(t *testing.T) {
	h := newHarness(t)
	h.client.holdChecks = true
	sink := &recorder{}

	h.orch.AddWatch("w1", Options{}, sink)
	require.NoError(t, h.orch.ClearWatch("w1"))

	h.client.pendingChecks[0](SettingsResult{Status: SettingsSatisfied})
	h.drain()

	assert.Empty(t, h.client.subscribed)
	assert.Empty(t, sink.results)
	assert.Zero(t, h.orch.settings.InFlight())
}

func TestAddWatch_SameTokenReplacesPrior(t *testing.T) {
	h := newHarness(t)
	first, second := &recorder{}, &recorder{}

	h.orch.AddWatch("w1", Options{}, first)
	h.drain()
	h.orch.AddWatch("w1", Options{HighAccuracy: true}, second)
	h.drain()

	require.Len(t, h.client.subscribed, 2)
	assert.Equal(t, []SubscriptionID{"sub-1"}, h.client.unsubscribed)
	assert.Equal(t, 1, h.orch.Active())

	h.client.emit("sub-1", ProviderUpdate{Locations: []Location{testLocation(1, 1)}})
	h.client.emit("sub-2", ProviderUpdate{Locations: []Location{testLocation(2, 2)}})
	h.drain()

	assert.Empty(t, first.results)
	require.Len(t, second.results, 1)
	assert.Equal(t, 2.0, second.results[0].Fix.Latitude)
}

func TestServiceAvailabilityGatesEverything(t *testing.T) {
	tests := []struct {
		name         string
		availability Availability
		wantCode     int
		wantDialogs  int
	}{
		{"fatal", UnavailableFatal, CodeServiceUnavailable, 0},
		{"resolvable", UnavailableResolvable, CodeServiceUnavailableResolvable, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.services.availability = tt.availability
			h.perms.held = false
			sink := &recorder{}

			h.orch.GetLocation("t1", Options{}, sink)
			h.orch.AddWatch("w1", Options{}, sink)
			h.drain()

			require.Len(t, sink.results, 2)
			for _, res := range sink.results {
				assert.Equal(t, StatusError, res.Status)
				assert.Equal(t, tt.wantCode, res.Err.Code)
				assert.False(t, res.KeepOpen)
			}
			err := h.orch.ClearWatch("w1")
			require.ErrorIs(t, err, ErrServiceUnavailable)

			assert.Zero(t, h.perms.hasCalls)
			assert.Empty(t, h.perms.requests)
			assert.Empty(t, h.client.checked)
			assert.Empty(t, h.client.subscribed)
			assert.Zero(t, h.orch.Active())
			assert.Equal(t, tt.wantDialogs*3, h.services.dialogs)
		})
	}
}

func TestPermissionFlow(t *testing.T) {
	t.Run("granted either permission proceeds", func(t *testing.T) {
		h := newHarness(t)
		h.perms.held = false
		sink := &recorder{}

		h.orch.GetLocation("t1", Options{}, sink)
		require.Len(t, h.perms.requests, 1)
		assert.Equal(t, NewRequestID("t1"), h.perms.requests[0].id)
		assert.Equal(t, LocationPermissions, h.perms.requests[0].perms)
		assert.Empty(t, h.client.checked)

		h.perms.requests[0].done(granted(PermissionCoarseLocation))
		h.drain()
		assert.Len(t, h.client.subscribed, 1)
	})

	t.Run("denied terminates", func(t *testing.T) {
		h := newHarness(t)
		h.perms.held = false
		sink := &recorder{}

		h.orch.AddWatch("w1", Options{}, sink)
		h.perms.requests[0].done(granted())
		h.drain()

		require.Len(t, sink.results, 1)
		res := sink.results[0]
		assert.Equal(t, StatusIllegalAccess, res.Status)
		assert.ErrorIs(t, res.Err, ErrPermissionDenied)
		assert.False(t, res.KeepOpen)
		assert.Zero(t, h.orch.Active())
		assert.Empty(t, h.client.checked)
	})

	t.Run("cancelled leaves request pending", func(t *testing.T) {
		h := newHarness(t)
		h.perms.held = false
		sink := &recorder{}

		h.orch.GetLocation("t1", Options{}, sink)
		h.perms.requests[0].done(PermissionResult{})
		h.drain()

		assert.Empty(t, sink.results)
		assert.Equal(t, 1, h.orch.Active())
		assert.Empty(t, h.client.checked)
	})

	t.Run("result for replaced request is ignored", func(t *testing.T) {
		h := newHarness(t)
		h.perms.held = false
		first, second := &recorder{}, &recorder{}

		h.orch.AddWatch("w1", Options{}, first)
		h.orch.AddWatch("w1", Options{}, second)
		require.Len(t, h.perms.requests, 2)

		h.perms.requests[0].done(granted(PermissionFineLocation))
		h.drain()
		assert.Empty(t, h.client.checked)

		h.perms.requests[1].done(granted(PermissionFineLocation))
		h.drain()
		assert.Len(t, h.client.subscribed, 1)
	})
}

func TestSettingsUnresolvableTerminates(t *testing.T) {
	h := newHarness(t)
	h.client.settings = SettingsResult{Status: SettingsUnresolvable, Err: stderrors.New("airplane mode")}
	sink := &recorder{}

	h.orch.AddWatch("w1", Options{}, sink)
	h.drain()

	require.Len(t, sink.results, 1)
	res := sink.results[0]
	assert.ErrorIs(t, res.Err, ErrSettingsUnsatisfiable)
	assert.Equal(t, CodeSettingsUnsatisfiable, res.Err.Code)
	assert.False(t, res.Err.Resolvable)
	assert.Zero(t, h.orch.Active())
	assert.Empty(t, h.client.subscribed)
}

func TestResolutionGranted_SubscribesOnceWithOriginalRequest(t *testing.T) {
	h := newHarness(t)
	h.client.settings = SettingsResult{Status: SettingsNeedsResolution, Resolution: "enable-gps"}
	sink := &recorder{}

	h.orch.GetLocation("t1", Options{HighAccuracy: true, Timeout: 3 * time.Second}, sink)
	h.drain()

	require.Len(t, h.presenter.calls, 1)
	call := h.presenter.calls[0]
	assert.Equal(t, ResolutionHandle("enable-gps"), call.handle)
	assert.Equal(t, DefaultFirstResolutionToken, call.token)
	assert.Empty(t, h.client.subscribed)
	assert.Equal(t, 1, h.orch.PendingResolutions())

	h.orch.CompleteResolution(call.token, ResolutionGranted)
	h.drain()
	h.orch.CompleteResolution(call.token, ResolutionGranted)
	h.drain()

	require.Len(t, h.client.subscribed, 1)
	assert.Equal(t, h.client.checked[0], h.client.subscribed[0])
	assert.Equal(t, 3*time.Second, h.client.subscribed[0].Expiration)
	assert.Zero(t, h.orch.PendingResolutions())
	assert.Empty(t, sink.results)
}

func TestResolutionDenied_DeliveredOnce(t *testing.T) {
	h := newHarness(t)
	h.client.settings = SettingsResult{Status: SettingsNeedsResolution, Resolution: "enable-gps"}
	sink := &recorder{}

	h.orch.AddWatch("w1", Options{}, sink)
	h.drain()
	token := h.presenter.calls[0].token

	h.orch.CompleteResolution(token, ResolutionRefused)
	h.orch.CompleteResolution(token, ResolutionRefused)
	h.drain()

	require.Len(t, sink.results, 1)
	assert.ErrorIs(t, sink.results[0].Err, ErrResolutionDenied)
	assert.False(t, sink.results[0].KeepOpen)
	assert.Zero(t, h.orch.Active())
	assert.Empty(t, h.client.subscribed)
}

func TestResolutionLaunchFailureIsSilent(t *testing.T) {
	h := newHarness(t)
	h.client.settings = SettingsResult{Status: SettingsNeedsResolution, Resolution: "enable-gps"}
	h.presenter.err = stderrors.New("activity gone")
	sink := &recorder{}

	h.orch.GetLocation("t1", Options{}, sink)
	h.drain()

	assert.Empty(t, sink.results)
	assert.Equal(t, 1, h.orch.Active())
	assert.Zero(t, h.orch.PendingResolutions())
	assert.Equal(t, 1, h.orch.settings.InFlight())

	// A late outcome for the abandoned token changes nothing.
	h.orch.CompleteResolution(h.presenter.calls[0].token, ResolutionGranted)
	h.drain()
	assert.Empty(t, h.client.subscribed)
}

func TestReleaseDuringResolutionDropsToken(t *testing.T) {
	tests := []struct {
		name        string
		release     func(t *testing.T, h *harness)
		wantPending int
	}{
		{"clear", func(t *testing.T, h *harness) { require.NoError(t, h.orch.ClearWatch("w1")) }, 0},
		{"reset", func(t *testing.T, h *harness) { assert.Equal(t, 1, h.orch.Reset()) }, 0},
		{"replace", func(t *testing.T, h *harness) { h.orch.AddWatch("w1", Options{}, &recorder{}) }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.client.settings = SettingsResult{Status: SettingsNeedsResolution, Resolution: "enable-gps"}
			sink := &recorder{}

			h.orch.AddWatch("w1", Options{}, sink)
			h.drain()
			require.Equal(t, 1, h.orch.PendingResolutions())
			token := h.presenter.calls[0].token

			tt.release(t, h)
			h.drain()
			assert.Equal(t, tt.wantPending, h.orch.PendingResolutions())
			assert.Equal(t, tt.wantPending, h.orch.settings.InFlight())

			// The prompt answering late reaches nothing.
			h.orch.CompleteResolution(token, ResolutionGranted)
			h.drain()
			assert.Empty(t, h.client.subscribed)
			assert.Empty(t, sink.results)
		})
	}
}

func TestResolutionTokensAreInstanceScoped(t *testing.T) {
	a, b := newHarness(t), newHarness(t)
	for _, h := range []*harness{a, b} {
		h.client.settings = SettingsResult{Status: SettingsNeedsResolution}
		h.orch.AddWatch("w1", Options{}, &recorder{})
		h.orch.AddWatch("w2", Options{}, &recorder{})
		h.drain()
	}
	assert.Equal(t, []int{100, 101}, []int{a.presenter.calls[0].token, a.presenter.calls[1].token})
	assert.Equal(t, []int{100, 101}, []int{b.presenter.calls[0].token, b.presenter.calls[1].token})

	a.orch.CompleteResolution(100, ResolutionGranted)
	a.drain()
	assert.Len(t, a.client.subscribed, 1)
	assert.Empty(t, b.client.subscribed)
	assert.Equal(t, 2, b.orch.PendingResolutions())
}

func TestSerializationFailure(t *testing.T) {
	bad := testLocation(math.NaN(), 0)

	t.Run("watch stays open", func(t *testing.T) {
		h := newHarness(t)
		sink := &recorder{}
		h.orch.AddWatch("w1", Options{}, sink)
		h.drain()

		h.client.emit("sub-1", ProviderUpdate{Locations: []Location{bad, testLocation(1, 1)}})
		h.drain()

		require.Len(t, sink.results, 2)
		assert.Equal(t, StatusJSONException, sink.results[0].Status)
		assert.ErrorIs(t, sink.results[0].Err, ErrSerializationFailure)
		assert.True(t, sink.results[0].KeepOpen)
		assert.Equal(t, StatusOK, sink.results[1].Status)
		assert.Equal(t, 1, h.orch.Active())
	})

	t.Run("single fix closes", func(t *testing.T) {
		h := newHarness(t)
		sink := &recorder{}
		h.orch.GetLocation("t1", Options{}, sink)
		h.drain()

		h.client.emit("sub-1", ProviderUpdate{Locations: []Location{bad, testLocation(1, 1)}})
		h.drain()

		require.Len(t, sink.results, 1)
		assert.Equal(t, StatusJSONException, sink.results[0].Status)
		assert.False(t, sink.results[0].KeepOpen)
		assert.Zero(t, h.orch.Active())
	})
}

func TestProviderErrorPolicy(t *testing.T) {
	providerErr := SettingsUnsatisfiable(false)

	h := newHarness(t)
	watchSink, fixSink := &recorder{}, &recorder{}
	h.orch.AddWatch("w1", Options{}, watchSink)
	h.orch.GetLocation("t1", Options{}, fixSink)
	h.drain()

	h.client.emit("sub-1", ProviderUpdate{Err: providerErr})
	h.client.emit("sub-2", ProviderUpdate{Err: providerErr})
	h.drain()

	require.Len(t, watchSink.results, 1)
	assert.True(t, watchSink.results[0].KeepOpen)
	require.Len(t, fixSink.results, 1)
	assert.False(t, fixSink.results[0].KeepOpen)

	_, ok := h.orch.Lookup("w1")
	assert.True(t, ok)
	_, ok = h.orch.Lookup("t1")
	assert.False(t, ok)
}

func TestSubscribeFailureTerminates(t *testing.T) {
	reports := captureReports(t)
	h := newHarness(t)
	h.client.subscribeErr = stderrors.New("bridge down")
	sink := &recorder{}

	h.orch.AddWatch("w1", Options{}, sink)
	h.drain()

	require.Len(t, sink.results, 1)
	assert.ErrorIs(t, sink.results[0].Err, ErrServiceUnavailable)
	assert.Zero(t, h.orch.Active())
	require.Len(t, reports.errs, 1)
	assert.Equal(t, "orchestrator.subscribe", reports.errs[0].Op)
	assert.Equal(t, "w1", reports.errs[0].Token)
}

func TestGetLocation_AttachesSubscription(t *testing.T) {
	h := newHarness(t)
	h.orch.AddWatch("w1", Options{}, &recorder{})

	rc, ok := h.orch.Lookup("w1")
	require.True(t, ok)
	_, attached := rc.Subscription()
	assert.False(t, attached)

	h.drain()
	id, attached := rc.Subscription()
	assert.True(t, attached)
	assert.Equal(t, SubscriptionID("sub-1"), id)
}

func TestResetReleasesEverythingSilently(t *testing.T) {
	h := newHarness(t)
	sink := &recorder{}
	h.orch.AddWatch("w1", Options{}, sink)
	h.orch.GetLocation("t1", Options{}, sink)
	h.drain()

	assert.Equal(t, 2, h.orch.Reset())
	h.client.emit("sub-1", ProviderUpdate{Locations: []Location{testLocation(1, 1)}})
	h.drain()

	assert.Empty(t, sink.results)
	assert.Zero(t, h.orch.Active())
	assert.Zero(t, h.client.activeCount())
	assert.Zero(t, h.orch.Reset())
}
