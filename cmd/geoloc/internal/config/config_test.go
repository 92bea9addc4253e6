package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEOLOC_CONFIG", "")
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geoloc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	c, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.WatchInterval)
	assert.Equal(t, 100, c.ResolutionTokenBase)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
}

func TestLoadFileAndEnv(t *testing.T) {
	isolate(t)
	path := writeFile(t, "watch_interval: 2s\nresolution_token_base: 7\nlog:\n  level: debug\n")
	t.Setenv("GEOLOC_LOG_FORMAT", "json")

	c, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.WatchInterval)
	assert.Equal(t, 7, c.ResolutionTokenBase)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "json", c.Log.Format)
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	isolate(t)
	t.Setenv("GEOLOC_CONFIG", writeFile(t, "resolution_token_base: 42\n"))

	c, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 42, c.ResolutionTokenBase)
}

func TestLoadFlagsOverride(t *testing.T) {
	isolate(t)
	t.Setenv("GEOLOC_WATCH_INTERVAL", "9s")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--watch-interval=250ms", "--log-level=warn"}))

	c, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, c.WatchInterval)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, 100, c.ResolutionTokenBase)
}

func TestLoadUnsetFlagsKeepEnv(t *testing.T) {
	isolate(t)
	t.Setenv("GEOLOC_WATCH_INTERVAL", "9s")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	c, err := Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, 9*time.Second, c.WatchInterval)
}

func TestLoadErrors(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read config")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero interval", "watch_interval: 0s\n", "watch_interval"},
		{"negative token", "resolution_token_base: -1\n", "resolution_token_base"},
		{"zero token", "resolution_token_base: 0\n", "resolution_token_base"},
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body), nil)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := Config{Log: LogConfig{Level: "warn", Format: "json"}}.Logger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":1`)
}
