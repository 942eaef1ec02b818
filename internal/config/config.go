package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Box describes the camera box and how it is polled.
type Box struct {
	URL                    string `toml:"url"`
	StreamURL              string `toml:"stream_url"`
	PollIntervalSeconds    int    `toml:"poll_interval_seconds"`
	PollTimeoutSeconds     int    `toml:"poll_timeout_seconds"`
	LabelsTimeoutSeconds   int    `toml:"labels_timeout_seconds"`
	RegisterTimeoutSeconds int    `toml:"register_timeout_seconds"`
	ReconnectDelaySeconds  int    `toml:"reconnect_delay_seconds"`
	StreamIdleSeconds      int    `toml:"stream_idle_timeout_seconds"`
	MaxFrameBufferMiB      int    `toml:"max_frame_buffer_mib"`
}

type Presence struct {
	CooldownSeconds      int `toml:"cooldown_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

type Alerts struct {
	GuardMode              bool `toml:"guard_mode"`
	UnknownCooldownSeconds int  `toml:"unknown_cooldown_seconds"`
	WindowSeconds          int  `toml:"window_seconds"`
	Threshold              int  `toml:"threshold"`
}

type Events struct {
	MemoryLimit  int `toml:"memory_limit"`
	PersistLimit int `toml:"persist_limit"`
}

type Roster struct {
	LabelTTLSeconds int `toml:"label_ttl_seconds"`
}

// Storage selects the key-value backend. Type is one of file, sqlite,
// postgres or memory.
type Storage struct {
	Type    string `toml:"type"`
	DataDir string `toml:"data_dir"`
	Path    string `toml:"path"`
	DSN     string `toml:"dsn"`
}

type API struct {
	Bind string `toml:"bind"`
}

type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	QueueSize      int    `toml:"queue_size"`
}

type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

type Config struct {
	Box           Box           `toml:"box"`
	Presence      Presence      `toml:"presence"`
	Alerts        Alerts        `toml:"alerts"`
	Events        Events        `toml:"events"`
	Roster        Roster        `toml:"roster"`
	Storage       Storage       `toml:"storage"`
	API           API           `toml:"api"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of the per-user config file.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/homecam/config.toml")
}

// Load reads path (or the default location when empty), applies environment
// overrides, and validates the result. A missing file is not an error; the
// returned bool reports whether one was read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		if env := strings.TrimSpace(os.Getenv("HOMECAM_CONFIG")); env != "" {
			path = env
		}
	}
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return "", false, err
		}
	}

	expanded, err := ExpandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path %s is a directory", expanded)
	}
	return expanded, true, nil
}

// ExpandPath resolves a leading ~ to the home directory and cleans the result.
func ExpandPath(value string) (string, error) {
	if value == "" {
		return value, nil
	}
	if strings.HasPrefix(value, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if value == "~" {
			value = home
		} else if len(value) > 1 && (value[1] == '/' || value[1] == '\\') {
			value = filepath.Join(home, value[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(value))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return absolute, nil
}

// Sample returns the commented sample configuration.
func Sample() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c *Config) PollInterval() time.Duration    { return seconds(c.Box.PollIntervalSeconds) }
func (c *Config) PollTimeout() time.Duration     { return seconds(c.Box.PollTimeoutSeconds) }
func (c *Config) LabelsTimeout() time.Duration   { return seconds(c.Box.LabelsTimeoutSeconds) }
func (c *Config) RegisterTimeout() time.Duration { return seconds(c.Box.RegisterTimeoutSeconds) }
func (c *Config) ReconnectDelay() time.Duration  { return seconds(c.Box.ReconnectDelaySeconds) }
func (c *Config) MaxFrameBuffer() int            { return c.Box.MaxFrameBufferMiB << 20 }

func (c *Config) StreamIdleTimeout() time.Duration { return seconds(c.Box.StreamIdleSeconds) }

func (c *Config) PresenceCooldown() time.Duration { return seconds(c.Presence.CooldownSeconds) }
func (c *Config) SweepInterval() time.Duration    { return seconds(c.Presence.SweepIntervalSeconds) }

func (c *Config) UnknownCooldown() time.Duration { return seconds(c.Alerts.UnknownCooldownSeconds) }
func (c *Config) AlertWindow() time.Duration     { return seconds(c.Alerts.WindowSeconds) }

func (c *Config) LabelTTL() time.Duration      { return seconds(c.Roster.LabelTTLSeconds) }
func (c *Config) NotifyTimeout() time.Duration { return seconds(c.Notifications.RequestTimeout) }

// StreamEndpoint is the configured stream URL, or the box's /mjpeg endpoint.
func (c *Config) StreamEndpoint() string {
	if c.Box.StreamURL != "" {
		return c.Box.StreamURL
	}
	if c.Box.URL == "" {
		return ""
	}
	return c.Box.URL + "/mjpeg"
}
