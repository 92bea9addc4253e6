package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-drift/geolocation/pkg/errors"
	"github.com/go-drift/geolocation/pkg/geolocation"
)

const (
	permissionsChannel       = "geolocation/permissions"
	permissionResultsChannel = "geolocation/permissions/results"
)

// PermissionBridge implements geolocation.PermissionSubsystem over platform
// channels. Prompt results arrive on an event channel and are routed to the
// waiting request by request id.
type PermissionBridge struct {
	channel *MethodChannel
	results *Stream[permissionResponse]

	mu      sync.Mutex
	pending map[string]func(geolocation.PermissionResult)
	stop    func()
}

type permissionResponse struct {
	requestID string
	result    geolocation.PermissionResult
}

// NewPermissionBridge creates the adapter and starts listening for results.
func NewPermissionBridge() *PermissionBridge {
	b := &PermissionBridge{
		channel: NewMethodChannel(permissionsChannel),
		pending: make(map[string]func(geolocation.PermissionResult)),
	}
	b.results = NewStream(NewEventChannel(permissionResultsChannel), parsePermissionResponse)
	b.stop = b.results.Listen(b.onResult)
	return b
}

// Close stops listening for results. Pending requests are dropped.
func (b *PermissionBridge) Close() {
	b.stop()
	b.mu.Lock()
	clear(b.pending)
	b.mu.Unlock()
}

// HasPermission reports whether every permission in perms is held. A failed
// query reads as not held, which leads to a prompt.
func (b *PermissionBridge) HasPermission(perms []geolocation.Permission) bool {
	result, err := b.channel.InvokeIdempotent(context.Background(), "check", map[string]any{
		"permissions": permissionNames(perms),
	})
	if err != nil {
		errors.Report(&errors.PluginError{
			Op:      "permissions.check",
			Kind:    errors.KindPlatform,
			Channel: permissionsChannel,
			Err:     err,
		})
		return false
	}
	m, _ := parseMap(result)
	return parseBool(m["granted"])
}

// RequestPermissions shows the permission prompt. If the prompt cannot be
// shown, done receives a result with every permission refused.
func (b *PermissionBridge) RequestPermissions(perms []geolocation.Permission, id geolocation.RequestID, done func(geolocation.PermissionResult)) {
	key := id.String()
	b.mu.Lock()
	b.pending[key] = done
	b.mu.Unlock()

	_, err := b.channel.Invoke("request", map[string]any{
		"requestId":   key,
		"permissions": permissionNames(perms),
	})
	if err == nil {
		return
	}
	errors.Report(&errors.PluginError{
		Op:      "permissions.request",
		Kind:    errors.KindPlatform,
		Channel: permissionsChannel,
		Err:     err,
	})
	if cb := b.take(key); cb != nil {
		refused := geolocation.PermissionResult{}
		for _, p := range perms {
			refused.Grants = append(refused.Grants, geolocation.Grant{Permission: p})
		}
		cb(refused)
	}
}

// Pending returns the number of prompts awaiting a result.
func (b *PermissionBridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *PermissionBridge) take(key string) func(geolocation.PermissionResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb := b.pending[key]
	delete(b.pending, key)
	return cb
}

func (b *PermissionBridge) onResult(resp permissionResponse) {
	if cb := b.take(resp.requestID); cb != nil {
		cb(resp.result)
	}
}

func permissionNames(perms []geolocation.Permission) []string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = string(p)
	}
	return names
}

// parsePermissionResponse reads
//
//	{"requestId": "...", "grants": [{"permission": "...", "granted": true}]}
//
// An empty or missing grants list is a dismissed prompt.
func parsePermissionResponse(data any) (permissionResponse, error) {
	m, ok := parseMap(data)
	if !ok {
		return permissionResponse{}, fmt.Errorf("permission result: expected map, got %T", data)
	}
	resp := permissionResponse{requestID: parseString(m["requestId"])}
	if resp.requestID == "" {
		return permissionResponse{}, fmt.Errorf("permission result: missing requestId")
	}
	for _, raw := range parseList(m["grants"]) {
		g, ok := parseMap(raw)
		if !ok {
			continue
		}
		resp.result.Grants = append(resp.result.Grants, geolocation.Grant{
			Permission: geolocation.Permission(parseString(g["permission"])),
			Granted:    parseBool(g["granted"]),
		})
	}
	return resp, nil
}
