package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateBox(); err != nil {
		return err
	}
	if err := c.validateTimings(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateBox() error {
	if c.Box.URL == "" {
		return errors.New("box.url must be set (or HOMECAM_BOX_URL)")
	}
	for name, raw := range map[string]string{"box.url": c.Box.URL, "box.stream_url": c.Box.StreamURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%s %q is not a valid URL", name, raw)
		}
	}
	return nil
}

func (c *Config) validateTimings() error {
	positive := []struct {
		name  string
		value int
	}{
		{"box.poll_interval_seconds", c.Box.PollIntervalSeconds},
		{"box.poll_timeout_seconds", c.Box.PollTimeoutSeconds},
		{"box.labels_timeout_seconds", c.Box.LabelsTimeoutSeconds},
		{"box.register_timeout_seconds", c.Box.RegisterTimeoutSeconds},
		{"box.stream_idle_timeout_seconds", c.Box.StreamIdleSeconds},
		{"box.max_frame_buffer_mib", c.Box.MaxFrameBufferMiB},
		{"presence.cooldown_seconds", c.Presence.CooldownSeconds},
		{"presence.sweep_interval_seconds", c.Presence.SweepIntervalSeconds},
		{"alerts.unknown_cooldown_seconds", c.Alerts.UnknownCooldownSeconds},
		{"alerts.window_seconds", c.Alerts.WindowSeconds},
		{"alerts.threshold", c.Alerts.Threshold},
		{"events.memory_limit", c.Events.MemoryLimit},
		{"events.persist_limit", c.Events.PersistLimit},
		{"roster.label_ttl_seconds", c.Roster.LabelTTLSeconds},
		{"notifications.request_timeout", c.Notifications.RequestTimeout},
		{"notifications.queue_size", c.Notifications.QueueSize},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive", p.name)
		}
	}
	if c.Box.ReconnectDelaySeconds < 0 {
		return errors.New("box.reconnect_delay_seconds must not be negative")
	}
	if c.Events.PersistLimit > c.Events.MemoryLimit {
		return errors.New("events.persist_limit must not exceed events.memory_limit")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Type {
	case "memory", "file", "sqlite":
		return nil
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required when storage.type is postgres")
		}
		return nil
	}
	return fmt.Errorf("storage.type %q is not one of file, sqlite, postgres, memory", c.Storage.Type)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
}
