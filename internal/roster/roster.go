// Package roster caches the recognizer's trained labels and keeps the
// household's relationship names ("Mom", "Grandpa") for each label.
package roster

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kdimtricp/homecam/internal/models"
	"github.com/kdimtricp/homecam/internal/storage"
)

const (
	DefaultTTL = 5 * time.Minute

	LabelsKey        = "roster.labels"
	RelationshipsKey = "roster.relationships"
)

// LabelSource lists the labels the recognizer knows.
type LabelSource interface {
	Labels(ctx context.Context) ([]string, error)
}

type Options struct {
	Source LabelSource
	Store  storage.Store
	TTL    time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

type labelCache struct {
	Labels    []string  `json:"labels"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Roster struct {
	source LabelSource
	store  storage.Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
	title  cases.Caser

	mu            sync.Mutex
	cache         labelCache
	relationships map[string]string
}

func New(opts Options) *Roster {
	r := &Roster{
		source:        opts.Source,
		store:         opts.Store,
		ttl:           opts.TTL,
		logger:        opts.Logger,
		now:           opts.Now,
		title:         cases.Title(language.Und),
		relationships: make(map[string]string),
	}
	if r.ttl <= 0 {
		r.ttl = DefaultTTL
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Load restores the cached labels and the relationship table.
func (r *Roster) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	var cache labelCache
	if _, err := storage.GetJSON(ctx, r.store, LabelsKey, &cache); err != nil {
		return err
	}
	rels := map[string]string{}
	if _, err := storage.GetJSON(ctx, r.store, RelationshipsKey, &rels); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = cache
	r.relationships = rels
	return nil
}

// Labels returns the trained labels, refreshing from the source when the
// cache is older than the TTL or refresh is set. A failed refresh falls back
// to a stale cache when one exists.
func (r *Roster) Labels(ctx context.Context, refresh bool) ([]string, error) {
	r.mu.Lock()
	cache := r.cache
	r.mu.Unlock()

	fresh := !cache.FetchedAt.IsZero() && r.now().Sub(cache.FetchedAt) < r.ttl
	if fresh && !refresh {
		return append([]string(nil), cache.Labels...), nil
	}
	if r.source == nil {
		return append([]string(nil), cache.Labels...), nil
	}

	labels, err := r.source.Labels(ctx)
	if err != nil {
		if !cache.FetchedAt.IsZero() {
			r.logger.Warn("label refresh failed, using cached labels", "error", err, "fetched_at", cache.FetchedAt)
			return append([]string(nil), cache.Labels...), nil
		}
		return nil, fmt.Errorf("failed to fetch labels: %w", err)
	}

	return r.Update(ctx, labels), nil
}

// Update replaces the cached labels, for example after an enrollment or
// delete returned the new list. It returns the stored list.
func (r *Roster) Update(ctx context.Context, labels []string) []string {
	cache := labelCache{Labels: trainedOnly(labels), FetchedAt: r.now()}

	r.mu.Lock()
	r.cache = cache
	r.mu.Unlock()

	if r.store != nil {
		if err := storage.PutJSON(ctx, r.store, LabelsKey, cache); err != nil {
			r.logger.Warn("failed to persist labels", "error", err)
		}
	}
	return append([]string(nil), cache.Labels...)
}

// Invalidate forces the next Labels call to hit the source.
func (r *Roster) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.FetchedAt = time.Time{}
}

func (r *Roster) Relationship(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relationships[name]
}

// Relationships returns a copy of the name -> relationship table.
func (r *Roster) Relationships() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.relationships))
	for k, v := range r.relationships {
		out[k] = v
	}
	return out
}

// SetRelationship records how name relates to the household. An empty
// relationship clears it.
func (r *Roster) SetRelationship(ctx context.Context, name, relationship string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	relationship = strings.TrimSpace(relationship)

	r.mu.Lock()
	if relationship == "" {
		delete(r.relationships, name)
	} else {
		r.relationships[name] = relationship
	}
	snapshot := make(map[string]string, len(r.relationships))
	for k, v := range r.relationships {
		snapshot[k] = v
	}
	r.mu.Unlock()

	if r.store == nil {
		return nil
	}
	if err := storage.PutJSON(ctx, r.store, RelationshipsKey, snapshot); err != nil {
		return fmt.Errorf("failed to save relationship: %w", err)
	}
	return nil
}

// DisplayName is the relationship when one is set, otherwise the label in
// title case.
func (r *Roster) DisplayName(name string) string {
	if rel := r.Relationship(name); rel != "" {
		return rel
	}
	if models.IsUnknown(name) {
		return "Unknown person"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.title.String(strings.ReplaceAll(strings.TrimSpace(name), "_", " "))
}

func trainedOnly(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || models.IsUnknown(l) {
			continue
		}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
