// Package simulator drives a geolocation Orchestrator against an in-memory
// device described by a YAML scenario. It stands in for the native host when
// exercising request flows from the command line or from tests.
package simulator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-drift/geolocation/pkg/geolocation"
)

// Scenario describes a simulated device and the calls made against it.
type Scenario struct {
	Name string `yaml:"name"`
	// Start is the wall-clock time of virtual time zero.
	Start time.Time `yaml:"start,omitempty"`
	// Tick is the provider clock resolution. Default 1s.
	Tick time.Duration `yaml:"tick,omitempty"`
	// Duration is how long the scenario runs. Default: the last step plus ten ticks.
	Duration time.Duration `yaml:"duration,omitempty"`

	Services    string            `yaml:"services,omitempty"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Settings    SettingsConfig    `yaml:"settings"`
	Track       []TrackPoint      `yaml:"track"`
	Steps       []Step            `yaml:"steps"`
}

// PermissionsConfig scripts the permission subsystem.
type PermissionsConfig struct {
	// Held reports whether location permission is already granted.
	Held bool `yaml:"held"`
	// Prompt is the user's answer to the prompt: grant_all, grant_coarse,
	// grant_fine, deny or dismiss. Default grant_all.
	Prompt string `yaml:"prompt,omitempty"`
}

// SettingsConfig scripts the settings check and the resolution prompt.
type SettingsConfig struct {
	// Status is satisfied, resolution_required or unsatisfiable. Default satisfied.
	Status string `yaml:"status,omitempty"`
	// Resolution is the user's answer to the resolution prompt: grant,
	// refuse or fail_launch. Default grant.
	Resolution string `yaml:"resolution,omitempty"`
}

// TrackPoint is the device position for one tick. The last point holds
// once the track runs out.
type TrackPoint struct {
	Lat      float64  `yaml:"lat"`
	Lon      float64  `yaml:"lon"`
	Accuracy float64  `yaml:"accuracy,omitempty"`
	Altitude *float64 `yaml:"altitude,omitempty"`
	Heading  *float64 `yaml:"heading,omitempty"`
	Speed    *float64 `yaml:"speed,omitempty"`
	// Error, when non-zero, makes the provider report this wire code
	// instead of a position.
	Error int `yaml:"error,omitempty"`
	// Silent means the provider has no fix this tick and reports nothing.
	Silent bool `yaml:"silent,omitempty"`
}

// Step is one protocol call issued at a point in virtual time.
type Step struct {
	At       time.Duration `yaml:"at"`
	Action   string        `yaml:"action"`
	Args     []any         `yaml:"args"`
	Callback string        `yaml:"callback,omitempty"`
}

// Defaults.
const (
	DefaultTick = time.Second
)

var defaultStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// ErrInvalidScenario is returned for scenarios that fail validation.
var ErrInvalidScenario = errors.New("invalid scenario")

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario, filling in defaults.
func Parse(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if err := sc.normalize(); err != nil {
		return nil, err
	}
	return &sc, nil
}

func (sc *Scenario) normalize() error {
	if sc.Tick <= 0 {
		sc.Tick = DefaultTick
	}
	if sc.Start.IsZero() {
		sc.Start = defaultStart
	}
	if sc.Services == "" {
		sc.Services = "available"
	}
	if sc.Permissions.Prompt == "" {
		sc.Permissions.Prompt = "grant_all"
	}
	if sc.Settings.Status == "" {
		sc.Settings.Status = "satisfied"
	}
	if sc.Settings.Resolution == "" {
		sc.Settings.Resolution = "grant"
	}

	if _, err := sc.availability(); err != nil {
		return err
	}
	if err := oneOf("permissions.prompt", sc.Permissions.Prompt, "grant_all", "grant_coarse", "grant_fine", "deny", "dismiss"); err != nil {
		return err
	}
	if err := oneOf("settings.status", sc.Settings.Status, "satisfied", "resolution_required", "unsatisfiable"); err != nil {
		return err
	}
	if err := oneOf("settings.resolution", sc.Settings.Resolution, "grant", "refuse", "fail_launch"); err != nil {
		return err
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("%w: no steps", ErrInvalidScenario)
	}

	var last time.Duration
	for i := range sc.Steps {
		st := &sc.Steps[i]
		if st.At < 0 {
			return fmt.Errorf("%w: step %d: negative time", ErrInvalidScenario, i)
		}
		if st.At < last {
			return fmt.Errorf("%w: step %d: steps must be in time order", ErrInvalidScenario, i)
		}
		last = st.At
		if st.Callback == "" {
			st.Callback = fmt.Sprintf("%s#%d", st.Action, i)
		}
	}
	if sc.Duration <= 0 {
		sc.Duration = last + 10*sc.Tick
	}
	return nil
}

func (sc *Scenario) availability() (geolocation.Availability, error) {
	switch sc.Services {
	case "available":
		return geolocation.Available, nil
	case "resolvable":
		return geolocation.UnavailableResolvable, nil
	case "unavailable":
		return geolocation.UnavailableFatal, nil
	default:
		return 0, fmt.Errorf("%w: services: unknown value %q", ErrInvalidScenario, sc.Services)
	}
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s: unknown value %q (want one of %v)", ErrInvalidScenario, field, value, allowed)
}
