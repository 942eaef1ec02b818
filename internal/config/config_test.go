package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("HOMECAM_DATA_DIR", dataDir)
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := Load(path)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, path, resolved)

	assert.Equal(t, "http://127.0.0.1:5000", cfg.Box.URL)
	assert.Equal(t, "http://127.0.0.1:5000/mjpeg", cfg.StreamEndpoint())
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, 10*time.Second, cfg.PresenceCooldown())
	assert.Equal(t, 20*time.Second, cfg.UnknownCooldown())
	assert.Equal(t, 180*time.Second, cfg.AlertWindow())
	assert.Equal(t, 3, cfg.Alerts.Threshold)
	assert.Equal(t, 8<<20, cfg.MaxFrameBuffer())
	assert.Equal(t, filepath.Join(dataDir, "homecam.db"), cfg.Storage.Path)
	assert.Equal(t, "auto", cfg.Logging.Format)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
[box]
url = "10.0.0.7:5000/"
poll_interval_seconds = 3

[alerts]
threshold = 5

[storage]
type = "file"
data_dir = "`+filepath.ToSlash(t.TempDir())+`"

[logging]
format = "JSON"
level = "DEBUG"
`)
	t.Setenv("HOMECAM_STREAM_URL", "http://cam.local:8081/stream")
	t.Setenv("HOMECAM_NTFY_TOPIC", " house-alerts ")

	cfg, _, exists, err := Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "http://10.0.0.7:5000", cfg.Box.URL)
	assert.Equal(t, "http://cam.local:8081/stream", cfg.StreamEndpoint())
	assert.Equal(t, 3*time.Second, cfg.PollInterval())
	assert.Equal(t, 5, cfg.Alerts.Threshold)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Empty(t, cfg.Storage.Path)
	assert.Equal(t, "house-alerts", cfg.Notifications.NtfyTopic)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "[box]\nurll = \"x\"\n", "parse config"},
		{"bad threshold", "[alerts]\nthreshold = 0\n", "alerts.threshold"},
		{"bad storage", "[storage]\ntype = \"mongo\"\n", "storage.type"},
		{"postgres without dsn", "[storage]\ntype = \"postgres\"\n", "storage.dsn"},
		{"bad level", "[logging]\nlevel = \"loud\"\n", "logging.level"},
		{"persist over memory", "[events]\nmemory_limit = 10\npersist_limit = 20\n", "persist_limit"},
		{"empty url", "[box]\nurl = \"\"\n", "box.url"},
		{"zero idle timeout", "[box]\nstream_idle_timeout_seconds = 0\n", "box.stream_idle_timeout_seconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HOMECAM_DATA_DIR", t.TempDir())
			_, _, _, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSampleMatchesDefaults(t *testing.T) {
	var parsed Config
	decoder := toml.NewDecoder(strings.NewReader(Sample()))
	decoder.DisallowUnknownFields()
	require.NoError(t, decoder.Decode(&parsed))

	assert.Equal(t, Default(), parsed)
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, CreateSample(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Sample(), string(data))
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/data")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), got)

	got, err = ExpandPath("")
	require.NoError(t, err)
	assert.Empty(t, got)
}
