// Package presence tracks which household members are home.
//
// Every accepted sighting of a member flips their status between home and
// away. A per-person cooldown swallows the repeated sightings that a camera
// produces while someone walks past.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kdimtricp/homecam/internal/models"
	"github.com/kdimtricp/homecam/internal/storage"
)

const (
	DefaultCooldown      = 10 * time.Second
	DefaultSweepInterval = time.Second

	// StoreKey holds the name -> PersonStatus map.
	StoreKey = "presence.members"
)

type Options struct {
	Store         storage.Store
	Cooldown      time.Duration
	SweepInterval time.Duration
	// OnChange receives a copy of every transition, outside the tracker lock.
	OnChange func(models.StatusChange)
	Logger   *slog.Logger
	Now      func() time.Time
}

type Tracker struct {
	store    storage.Store
	cooldown time.Duration
	sweep    time.Duration
	onChange func(models.StatusChange)
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	members map[string]*models.PersonStatus
}

func NewTracker(opts Options) *Tracker {
	t := &Tracker{
		store:    opts.Store,
		cooldown: opts.Cooldown,
		sweep:    opts.SweepInterval,
		onChange: opts.OnChange,
		logger:   opts.Logger,
		now:      opts.Now,
		members:  make(map[string]*models.PersonStatus),
	}
	if t.cooldown <= 0 {
		t.cooldown = DefaultCooldown
	}
	if t.sweep <= 0 {
		t.sweep = DefaultSweepInterval
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Load replaces the in-memory table with the persisted one, if any.
func (t *Tracker) Load(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	var saved map[string]*models.PersonStatus
	ok, err := storage.GetJSON(ctx, t.store, StoreKey, &saved)
	if err != nil || !ok {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.members = make(map[string]*models.PersonStatus, len(saved))
	for name, st := range saved {
		if st == nil || models.IsUnknown(name) {
			continue
		}
		st.Name = name
		if st.Status != models.Away {
			st.Status = models.Home
		}
		t.members[name] = st
	}
	return nil
}

// AddPerson registers name as home. It does nothing if name is already known.
func (t *Tracker) AddPerson(ctx context.Context, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || models.IsUnknown(name) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.members[name]; ok {
		return false
	}
	t.members[name] = models.NewPersonStatus(name, t.now())
	t.persistLocked(ctx)
	return true
}

// Remove forgets name. It reports whether the person was tracked.
func (t *Tracker) Remove(ctx context.Context, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.members[name]; !ok {
		return false
	}
	delete(t.members, name)
	t.persistLocked(ctx)
	return true
}

// HandleDetection applies one sighting of name. Sightings inside the
// person's cooldown are ignored; otherwise the status flips and OnChange
// fires.
func (t *Tracker) HandleDetection(ctx context.Context, name string) {
	name = strings.TrimSpace(name)
	if name == "" || models.IsUnknown(name) {
		return
	}

	t.mu.Lock()
	now := t.now()
	p, ok := t.members[name]
	if !ok {
		p = models.NewPersonStatus(name, now)
		t.members[name] = p
	}
	if p.InCooldown(now) {
		t.mu.Unlock()
		return
	}

	until := now.Add(t.cooldown)
	seen := now
	p.Status = p.Status.Toggle()
	p.LastDetectionTime = &seen
	p.LastStatusChangeTime = now
	p.CooldownUntil = &until
	change := models.StatusChange{Name: name, Status: p.Status, At: now}
	t.persistLocked(ctx)
	t.mu.Unlock()

	t.logger.Info("presence changed", "name", name, "status", change.Status)
	if t.onChange != nil {
		t.onChange(change)
	}
}

// CleanupExpiredCooldowns clears cooldowns that have run out. It never
// changes anyone's status.
func (t *Tracker) CleanupExpiredCooldowns(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cleared := 0
	for _, p := range t.members {
		if p.CooldownUntil != nil && !now.Before(*p.CooldownUntil) {
			p.CooldownUntil = nil
			cleared++
		}
	}
	if cleared > 0 {
		t.persistLocked(ctx)
	}
	return cleared
}

// Run sweeps expired cooldowns until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CleanupExpiredCooldowns(ctx)
		}
	}
}

// Status returns the presence of name. Untracked names count as home.
func (t *Tracker) Status(name string) models.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.members[name]; ok {
		return p.Status
	}
	return models.Home
}

// Person returns a copy of the tracked status for name.
func (t *Tracker) Person(name string) (models.PersonStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.members[name]
	if !ok {
		return models.PersonStatus{}, false
	}
	return copyStatus(p), true
}

// People returns a snapshot of every tracked person sorted by name.
func (t *Tracker) People() []models.PersonStatus {
	t.mu.Lock()
	out := make([]models.PersonStatus, 0, len(t.members))
	for _, p := range t.members {
		out = append(out, copyStatus(p))
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Tracker) persistLocked(ctx context.Context) {
	if t.store == nil {
		return
	}
	if err := storage.PutJSON(ctx, t.store, StoreKey, t.members); err != nil {
		t.logger.Warn("failed to persist presence", "error", err)
	}
}

func copyStatus(p *models.PersonStatus) models.PersonStatus {
	out := *p
	if p.LastDetectionTime != nil {
		v := *p.LastDetectionTime
		out.LastDetectionTime = &v
	}
	if p.CooldownUntil != nil {
		v := *p.CooldownUntil
		out.CooldownUntil = &v
	}
	return out
}
