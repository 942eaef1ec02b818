// Package eventlog keeps the recent security events, newest first.
package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kdimtricp/homecam/internal/models"
	"github.com/kdimtricp/homecam/internal/storage"
)

const (
	DefaultMemoryLimit  = 100
	DefaultPersistLimit = 20

	StoreKey = "events.recent"
)

type Options struct {
	Store        storage.Store
	MemoryLimit  int
	PersistLimit int
	// OnAppend observes each appended event after the log lock is released.
	OnAppend func(models.SecurityEvent)
	Logger   *slog.Logger
	Now      func() time.Time
}

type Log struct {
	store        storage.Store
	memoryLimit  int
	persistLimit int
	onAppend     func(models.SecurityEvent)
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.Mutex
	events []models.SecurityEvent
}

func New(opts Options) *Log {
	l := &Log{
		store:        opts.Store,
		memoryLimit:  opts.MemoryLimit,
		persistLimit: opts.PersistLimit,
		onAppend:     opts.OnAppend,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if l.memoryLimit <= 0 {
		l.memoryLimit = DefaultMemoryLimit
	}
	if l.persistLimit <= 0 {
		l.persistLimit = DefaultPersistLimit
	}
	if l.persistLimit > l.memoryLimit {
		l.persistLimit = l.memoryLimit
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Append records ev as the newest event. A zero timestamp or empty id is
// filled in.
func (l *Log) Append(ctx context.Context, ev models.SecurityEvent) models.SecurityEvent {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.now()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if !ev.Kind.Valid() {
		ev.Kind = models.EventSystem
	}

	l.mu.Lock()
	l.events = append([]models.SecurityEvent{ev}, l.events...)
	if len(l.events) > l.memoryLimit {
		l.events = l.events[:l.memoryLimit]
	}
	l.persistLocked(ctx)
	l.mu.Unlock()

	if l.onAppend != nil {
		l.onAppend(ev)
	}
	return ev
}

// Record is shorthand for appending a new event of kind at the current time.
func (l *Log) Record(ctx context.Context, kind models.EventKind, description string) models.SecurityEvent {
	return l.Append(ctx, models.NewSecurityEvent(kind, description, l.now()))
}

// Events returns up to limit events, newest first. A limit <= 0 returns all.
func (l *Log) Events(limit int) []models.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.events)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.SecurityEvent, n)
	copy(out, l.events[:n])
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Load restores the persisted events. With nothing persisted the log is
// seeded with two system events.
func (l *Log) Load(ctx context.Context) error {
	var records []record
	ok := false
	if l.store != nil {
		var err error
		ok, err = storage.GetJSON(ctx, l.store, StoreKey, &records)
		if err != nil {
			return err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !ok {
		now := l.now()
		l.events = []models.SecurityEvent{
			models.NewSecurityEvent(models.EventSystem, "Guard Mode available", now),
			models.NewSecurityEvent(models.EventSystem, "Security monitoring started", now.Add(-time.Second)),
		}
		return nil
	}

	l.events = make([]models.SecurityEvent, 0, len(records))
	for _, r := range records {
		l.events = append(l.events, r.event())
	}
	if len(l.events) > l.memoryLimit {
		l.events = l.events[:l.memoryLimit]
	}
	return nil
}

func (l *Log) persistLocked(ctx context.Context) {
	if l.store == nil {
		return
	}
	n := len(l.events)
	if n > l.persistLimit {
		n = l.persistLimit
	}
	records := make([]record, n)
	for i, ev := range l.events[:n] {
		records[i] = record{ID: ev.ID, Timestamp: ev.Timestamp, Kind: ev.Kind, Description: ev.Description}
	}
	if err := storage.PutJSON(ctx, l.store, StoreKey, records); err != nil {
		l.logger.Warn("failed to persist events", "error", err)
	}
}

// record is the persisted form. Older records carry only timestamp and
// description.
type record struct {
	ID          string           `json:"id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Kind        models.EventKind `json:"kind,omitempty"`
	Description string           `json:"description"`
}

func (r record) event() models.SecurityEvent {
	ev := models.SecurityEvent{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		Kind:        r.Kind,
		Description: r.Description,
	}
	if !ev.Kind.Valid() {
		ev.Kind = models.EventSystem
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	return ev
}
