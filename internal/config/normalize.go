package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// applyEnv overrides file values with HOMECAM_* variables that are set.
func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"HOMECAM_BOX_URL", &c.Box.URL},
		{"HOMECAM_STREAM_URL", &c.Box.StreamURL},
		{"HOMECAM_API_BIND", &c.API.Bind},
		{"HOMECAM_DB_TYPE", &c.Storage.Type},
		{"HOMECAM_DB_PATH", &c.Storage.Path},
		{"HOMECAM_DB_DSN", &c.Storage.DSN},
		{"HOMECAM_DATA_DIR", &c.Storage.DataDir},
		{"HOMECAM_NTFY_TOPIC", &c.Notifications.NtfyTopic},
		{"HOMECAM_LOG_LEVEL", &c.Logging.Level},
		{"HOMECAM_LOG_FORMAT", &c.Logging.Format},
	}
	for _, o := range overrides {
		if value, ok := os.LookupEnv(o.key); ok {
			*o.dst = value
		}
	}
}

func (c *Config) normalize() error {
	c.normalizeBox()
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeBox() {
	c.Box.URL = normalizeURL(c.Box.URL)
	c.Box.StreamURL = normalizeURL(c.Box.StreamURL)
}

func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

func (c *Config) normalizeStorage() error {
	c.Storage.Type = strings.ToLower(strings.TrimSpace(c.Storage.Type))
	if c.Storage.Type == "" {
		c.Storage.Type = defaultStorageType
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = defaultDataDir
	}

	var err error
	if c.Storage.DataDir, err = ExpandPath(c.Storage.DataDir); err != nil {
		return fmt.Errorf("storage.data_dir: %w", err)
	}
	if c.Storage.Type == "sqlite" && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = filepath.Join(c.Storage.DataDir, defaultDBFile)
	}
	if c.Storage.Path != "" {
		if c.Storage.Path, err = ExpandPath(c.Storage.Path); err != nil {
			return fmt.Errorf("storage.path: %w", err)
		}
	}
	c.Storage.DSN = strings.TrimSpace(c.Storage.DSN)
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "console", "text":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "auto"
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
