// Package poller asks the recognition box who is in view and forwards each
// newly appeared name to presence tracking and alerting.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultTimeout  = 2 * time.Second
)

type Source interface {
	CurrentNames(ctx context.Context) ([]string, error)
}

type Presence interface {
	HandleDetection(ctx context.Context, name string)
}

type Alerts interface {
	ProcessDetection(ctx context.Context, name string)
}

type Options struct {
	Source   Source
	Presence Presence
	Alerts   Alerts
	Interval time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

type Poller struct {
	source   Source
	presence Presence
	alerts   Alerts
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	polling  sync.Mutex
	mu       sync.Mutex
	previous map[string]struct{}
}

func New(opts Options) *Poller {
	p := &Poller{
		source:   opts.Source,
		presence: opts.Presence,
		alerts:   opts.Alerts,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		previous: map[string]struct{}{},
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Run polls every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one poll and returns the names that were new this time. It
// returns false without polling when another poll is still in flight.
func (p *Poller) Tick(ctx context.Context) ([]string, bool) {
	if !p.polling.TryLock() {
		return nil, false
	}
	defer p.polling.Unlock()

	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	names, err := p.source.CurrentNames(pctx)
	cancel()
	if err != nil {
		p.logger.Debug("detection poll failed", "error", err)
		names = nil
	}

	current := make(map[string]struct{}, len(names))
	var fresh []string
	p.mu.Lock()
	for _, name := range names {
		if _, dup := current[name]; dup {
			continue
		}
		current[name] = struct{}{}
		if _, seen := p.previous[name]; !seen {
			fresh = append(fresh, name)
		}
	}
	p.previous = current
	p.mu.Unlock()

	for _, name := range fresh {
		if p.presence != nil {
			p.presence.HandleDetection(ctx, name)
		}
		if p.alerts != nil {
			p.alerts.ProcessDetection(ctx, name)
		}
	}
	return fresh, true
}

// Previous returns the names seen on the last poll.
func (p *Poller) Previous() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.previous))
	for name := range p.previous {
		out = append(out, name)
	}
	return out
}
