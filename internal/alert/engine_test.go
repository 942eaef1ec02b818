package alert

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/homecam/internal/models"
	"github.com/kdimtricp/homecam/internal/notify"
	"github.com/kdimtricp/homecam/internal/storage"
)

type fakeEvents struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (f *fakeEvents) Record(_ context.Context, kind models.EventKind, desc string) models.SecurityEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := models.SecurityEvent{Kind: kind, Description: desc}
	f.events = append(f.events, ev)
	return ev
}

func (f *fakeEvents) kinds() []models.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.EventKind, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Kind
	}
	return out
}

func (f *fakeEvents) count(kind models.EventKind) int {
	n := 0
	for _, k := range f.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

type fakeNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, n)
	return nil
}

func (f *fakeNotifier) all() []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Notification(nil), f.got...)
}

type namer map[string]string

func (n namer) DisplayName(name string) string {
	if v, ok := n[name]; ok {
		return v
	}
	return name
}

type harness struct {
	engine   *Engine
	events   *fakeEvents
	notifier *fakeNotifier
	store    *storage.MemoryStore
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		events:   &fakeEvents{},
		notifier: &fakeNotifier{},
		store:    storage.NewMemoryStore(),
		now:      time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC),
	}
	h.engine = NewEngine(Options{
		Store:    h.store,
		Events:   h.events,
		Notifier: h.notifier,
		Namer:    namer{"alice": "Mom"},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      func() time.Time { return h.now },
	})
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func TestUnknownThresholdRaisesOneAlertAndResets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.SetGuardMode(ctx, true)

	for i := 0; i < 3; i++ {
		h.engine.ProcessDetection(ctx, "unknown")
		h.advance(25 * time.Second)
	}

	assert.Equal(t, 3, h.events.count(models.EventUnknownDetected))
	assert.Equal(t, 1, h.events.count(models.EventSecurityAlert))
	assert.Zero(t, h.engine.Snapshot().UnknownCount, "window cleared after the alert")

	notes := h.notifier.all()
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Urgent)
	assert.Equal(t, "Security Alert", notes[0].Title)
	assert.Contains(t, notes[0].Body, "3 minutes")

	h.engine.ProcessDetection(ctx, "unknown")
	assert.Equal(t, 1, h.engine.Snapshot().UnknownCount, "a fresh count starts after reset")
	assert.Equal(t, 1, h.events.count(models.EventSecurityAlert))
}

func TestUnknownDebounce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.SetGuardMode(ctx, true)

	h.engine.ProcessDetection(ctx, "unknown")
	h.advance(5 * time.Second)
	h.engine.ProcessDetection(ctx, "Unknown")
	h.advance(14 * time.Second)
	h.engine.ProcessDetection(ctx, "UNKNOWN")

	assert.Equal(t, 1, h.engine.Snapshot().UnknownCount)

	h.advance(time.Second)
	h.engine.ProcessDetection(ctx, "unknown")
	assert.Equal(t, 2, h.engine.Snapshot().UnknownCount, "20s after the first counted sighting")
}

func TestWindowPrunesOldSightings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.SetGuardMode(ctx, true)

	h.engine.ProcessDetection(ctx, "unknown")
	h.advance(100 * time.Second)
	h.engine.ProcessDetection(ctx, "unknown")
	h.advance(100 * time.Second)
	h.engine.ProcessDetection(ctx, "unknown")

	assert.Equal(t, 2, h.engine.Snapshot().UnknownCount)
	assert.Zero(t, h.events.count(models.EventSecurityAlert))
}

func TestGuardOffNeverAlerts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	for i := 0; i < 10; i++ {
		h.engine.ProcessDetection(ctx, "unknown")
		h.advance(21 * time.Second)
	}

	assert.Empty(t, h.events.kinds())
	assert.Empty(t, h.notifier.all())
	assert.NotNil(t, h.engine.Snapshot().LastUnknown, "debounce still tracks sightings")
}

func TestGuardToggleClearsCount(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.SetGuardMode(ctx, true)

	h.engine.ProcessDetection(ctx, "unknown")
	h.advance(21 * time.Second)
	h.engine.ProcessDetection(ctx, "unknown")
	require.Equal(t, 2, h.engine.Snapshot().UnknownCount)

	assert.True(t, h.engine.SetGuardMode(ctx, false))
	assert.True(t, h.engine.SetGuardMode(ctx, true))
	assert.Zero(t, h.engine.Snapshot().UnknownCount)

	h.advance(21 * time.Second)
	h.engine.ProcessDetection(ctx, "unknown")
	assert.Equal(t, 1, h.engine.Snapshot().UnknownCount)
	assert.Zero(t, h.events.count(models.EventSecurityAlert))
}

func TestSetGuardModeLogsOnlyTransitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.False(t, h.engine.SetGuardMode(ctx, false))
	assert.True(t, h.engine.SetGuardMode(ctx, true))
	assert.False(t, h.engine.SetGuardMode(ctx, true))

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	require.Len(t, h.events.events, 1)
	assert.Equal(t, models.EventSystem, h.events.events[0].Kind)
	assert.Equal(t, "Guard Mode activated", h.events.events[0].Description)
}

func TestGuardModePersists(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.SetGuardMode(ctx, true)

	reloaded := NewEngine(Options{Store: h.store})
	require.NoError(t, reloaded.Load(ctx))
	assert.True(t, reloaded.GuardMode())

	fresh := NewEngine(Options{Store: storage.NewMemoryStore()})
	require.NoError(t, fresh.Load(ctx))
	assert.False(t, fresh.GuardMode())
}

func TestKnownPersonNotifiesOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.SetGuardMode(ctx, true)

	h.engine.ProcessDetection(ctx, "alice")
	h.engine.ProcessDetection(ctx, "bob")

	notes := h.notifier.all()
	require.Len(t, notes, 2)
	assert.Equal(t, "Mom detected", notes[0].Title)
	assert.False(t, notes[0].Urgent)
	assert.Equal(t, "bob detected", notes[1].Title)
	assert.Equal(t, 1, len(h.events.kinds()), "only the guard mode event")
}

func TestMemberStatusChange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.engine.HandleMemberStatusChange(ctx, models.StatusChange{Name: "alice", Status: models.Away, At: h.now})
	h.engine.HandleMemberStatusChange(ctx, models.StatusChange{Name: "bob", Status: models.Home, At: h.now})

	notes := h.notifier.all()
	require.Len(t, notes, 2)
	assert.Equal(t, "Mom left home", notes[0].Title)
	assert.Equal(t, "Mom left home at 22:00.", notes[0].Body)
	assert.Equal(t, "bob arrived home", notes[1].Title)
	assert.Empty(t, h.events.kinds(), "status changes are not logged")
}
