// Package alert classifies sightings as household members or strangers and
// raises a security alert when strangers keep showing up while Guard Mode is
// armed.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kdimtricp/homecam/internal/models"
	"github.com/kdimtricp/homecam/internal/notify"
	"github.com/kdimtricp/homecam/internal/storage"
)

const (
	DefaultUnknownCooldown = 20 * time.Second
	DefaultWindow          = 180 * time.Second
	DefaultThreshold       = 3

	GuardModeKey = "alert.guard_mode"
)

// EventRecorder is the part of the event log the engine writes to.
type EventRecorder interface {
	Record(ctx context.Context, kind models.EventKind, description string) models.SecurityEvent
}

// Namer maps a label to the name shown in notifications.
type Namer interface {
	DisplayName(name string) string
}

type Config struct {
	// GuardMode is the initial state used until a persisted one is loaded.
	GuardMode       bool
	UnknownCooldown time.Duration
	Window          time.Duration
	Threshold       int
}

type Options struct {
	Config
	Store    storage.Store
	Events   EventRecorder
	Notifier notify.Notifier
	Namer    Namer
	Logger   *slog.Logger
	Now      func() time.Time
}

type Engine struct {
	cfg      Config
	store    storage.Store
	events   EventRecorder
	notifier notify.Notifier
	namer    Namer
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.Mutex
	guard       bool
	lastUnknown time.Time
	window      []time.Time
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		cfg:      opts.Config,
		store:    opts.Store,
		events:   opts.Events,
		notifier: opts.Notifier,
		namer:    opts.Namer,
		logger:   opts.Logger,
		now:      opts.Now,
		guard:    opts.GuardMode,
	}
	if e.cfg.UnknownCooldown <= 0 {
		e.cfg.UnknownCooldown = DefaultUnknownCooldown
	}
	if e.cfg.Window <= 0 {
		e.cfg.Window = DefaultWindow
	}
	if e.cfg.Threshold <= 0 {
		e.cfg.Threshold = DefaultThreshold
	}
	if e.notifier == nil {
		e.notifier = notify.Noop()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Load restores the persisted Guard Mode flag.
func (e *Engine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	var active bool
	ok, err := storage.GetJSON(ctx, e.store, GuardModeKey, &active)
	if err != nil || !ok {
		return err
	}
	e.mu.Lock()
	e.guard = active
	e.mu.Unlock()
	return nil
}

func (e *Engine) GuardMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.guard
}

// SetGuardMode arms or disarms the engine. It reports whether the mode
// changed; setting the current mode again is a no-op.
func (e *Engine) SetGuardMode(ctx context.Context, active bool) bool {
	e.mu.Lock()
	if e.guard == active {
		e.mu.Unlock()
		return false
	}
	e.guard = active
	if !active {
		e.window = nil
	}
	e.mu.Unlock()

	if e.store != nil {
		if err := storage.PutJSON(ctx, e.store, GuardModeKey, active); err != nil {
			e.logger.Warn("failed to persist guard mode", "error", err)
		}
	}

	desc := "Guard Mode deactivated"
	if active {
		desc = "Guard Mode activated"
	}
	e.record(ctx, models.EventSystem, desc)
	e.logger.Info("guard mode changed", "active", active)
	return true
}

// ProcessDetection handles one newly seen label.
func (e *Engine) ProcessDetection(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if models.IsUnknown(name) {
		e.processUnknown(ctx)
		return
	}
	display := e.displayName(name)
	e.send(ctx, notify.Notification{
		Title: fmt.Sprintf("%s detected", display),
		Body:  fmt.Sprintf("%s was seen by the camera.", display),
	})
}

func (e *Engine) processUnknown(ctx context.Context) {
	e.mu.Lock()
	now := e.now()
	if !e.lastUnknown.IsZero() && now.Sub(e.lastUnknown) < e.cfg.UnknownCooldown {
		e.mu.Unlock()
		return
	}
	e.lastUnknown = now
	if !e.guard {
		e.mu.Unlock()
		return
	}

	e.window = append(e.window, now)
	cutoff := now.Add(-e.cfg.Window)
	kept := e.window[:0]
	for _, ts := range e.window {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.window = kept
	count := len(e.window)
	triggered := count >= e.cfg.Threshold
	if triggered {
		e.window = nil
	}
	threshold := e.cfg.Threshold
	e.mu.Unlock()

	e.record(ctx, models.EventUnknownDetected, fmt.Sprintf("Unknown person detected (%d/%d)", count, threshold))
	if !triggered {
		return
	}

	msg := fmt.Sprintf("Unknown person detected %d times within %s", count, formatWindow(e.cfg.Window))
	e.record(ctx, models.EventSecurityAlert, msg)
	e.logger.Warn("security alert", "count", count, "window", e.cfg.Window)
	e.send(ctx, notify.Notification{
		Title:  "Security Alert",
		Body:   msg,
		Urgent: true,
	})
}

// HandleMemberStatusChange announces an arrival or departure.
func (e *Engine) HandleMemberStatusChange(ctx context.Context, change models.StatusChange) {
	display := e.displayName(change.Name)
	n := notify.Notification{
		Title: fmt.Sprintf("%s arrived home", display),
		Body:  fmt.Sprintf("%s arrived home at %s.", display, change.At.Format("15:04")),
	}
	if change.Status == models.Away {
		n.Title = fmt.Sprintf("%s left home", display)
		n.Body = fmt.Sprintf("%s left home at %s.", display, change.At.Format("15:04"))
	}
	e.send(ctx, n)
}

type Snapshot struct {
	GuardMode       bool       `json:"guard_mode"`
	UnknownCount    int        `json:"unknown_count"`
	LastUnknown     *time.Time `json:"last_unknown,omitempty"`
	Threshold       int        `json:"threshold"`
	Window          string     `json:"window"`
	UnknownCooldown string     `json:"unknown_cooldown"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		GuardMode:       e.guard,
		UnknownCount:    len(e.window),
		Threshold:       e.cfg.Threshold,
		Window:          e.cfg.Window.String(),
		UnknownCooldown: e.cfg.UnknownCooldown.String(),
	}
	if !e.lastUnknown.IsZero() {
		last := e.lastUnknown
		s.LastUnknown = &last
	}
	return s
}

func (e *Engine) displayName(name string) string {
	if e.namer != nil {
		return e.namer.DisplayName(name)
	}
	return name
}

func (e *Engine) record(ctx context.Context, kind models.EventKind, desc string) {
	if e.events != nil {
		e.events.Record(ctx, kind, desc)
	}
}

func (e *Engine) send(ctx context.Context, n notify.Notification) {
	if err := e.notifier.Notify(ctx, n); err != nil {
		e.logger.Warn("failed to send notification", "title", n.Title, "error", err)
	}
}

func formatWindow(d time.Duration) string {
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}
