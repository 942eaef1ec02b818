// Package notify delivers push notifications about presence changes and
// security alerts. Delivery is best effort: callers log failures and move on.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

type Notification struct {
	Title  string
	Body   string
	Urgent bool
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

type Config struct {
	// NtfyTopic is a full ntfy URL or a bare topic name on ntfy.sh.
	NtfyTopic      string
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// New returns an ntfy notifier when a topic is configured and a log-only
// notifier otherwise.
func New(cfg Config) Notifier {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return NewLogNotifier(cfg.Logger)
	}
	return NewNtfy(topic, cfg.RequestTimeout)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) error { return nil }

// Noop discards every notification.
func Noop() Notifier { return noopNotifier{} }

type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	level := slog.LevelInfo
	if n.Urgent {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "notification", "title", n.Title, "body", n.Body, "urgent", n.Urgent)
	return nil
}
