// Package home wires the stream, poller, presence tracker, alert engine and
// event log into one running service.
package home

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kdimtricp/homecam/internal/alert"
	"github.com/kdimtricp/homecam/internal/config"
	"github.com/kdimtricp/homecam/internal/eventlog"
	"github.com/kdimtricp/homecam/internal/hub"
	"github.com/kdimtricp/homecam/internal/models"
	"github.com/kdimtricp/homecam/internal/notify"
	"github.com/kdimtricp/homecam/internal/poller"
	"github.com/kdimtricp/homecam/internal/presence"
	"github.com/kdimtricp/homecam/internal/recognition"
	"github.com/kdimtricp/homecam/internal/roster"
	"github.com/kdimtricp/homecam/internal/storage"
	"github.com/kdimtricp/homecam/internal/stream"
)

type Deps struct {
	Config   *config.Config
	Store    storage.Store
	Notifier notify.Notifier
	Logger   *slog.Logger
	// StreamClient overrides the MJPEG HTTP client.
	StreamClient *http.Client
	// BoxClient overrides the HTTP client for the recognition API.
	BoxClient *http.Client
}

type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	box     *recognition.Client
	stream  *stream.Demuxer
	tracker *presence.Tracker
	alerts  *alert.Engine
	events  *eventlog.Log
	roster  *roster.Roster
	poller  *poller.Poller
	hub     *hub.Hub

	frameMu sync.RWMutex
	frame   *stream.Frame
}

func New(deps Deps) (*Service, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	store := deps.Store
	if store == nil {
		store = storage.NewMemoryStore()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}

	s := &Service{cfg: cfg, logger: logger}

	s.box = recognition.NewClient(recognition.Config{
		BaseURL:         cfg.Box.URL,
		HTTPClient:      deps.BoxClient,
		CurrentTimeout:  cfg.PollTimeout(),
		LabelsTimeout:   cfg.LabelsTimeout(),
		RegisterTimeout: cfg.RegisterTimeout(),
	})
	s.hub = hub.New(logger.With("component", "hub"))
	s.events = eventlog.New(eventlog.Options{
		Store:        store,
		MemoryLimit:  cfg.Events.MemoryLimit,
		PersistLimit: cfg.Events.PersistLimit,
		OnAppend:     func(ev models.SecurityEvent) { s.publish(MessageEvent, ev) },
		Logger:       logger,
	})
	s.roster = roster.New(roster.Options{
		Source: s.box,
		Store:  store,
		TTL:    cfg.LabelTTL(),
		Logger: logger,
	})
	s.alerts = alert.NewEngine(alert.Options{
		Config: alert.Config{
			GuardMode:       cfg.Alerts.GuardMode,
			UnknownCooldown: cfg.UnknownCooldown(),
			Window:          cfg.AlertWindow(),
			Threshold:       cfg.Alerts.Threshold,
		},
		Store:    store,
		Events:   s.events,
		Notifier: notifier,
		Namer:    s.roster,
		Logger:   logger.With("component", "alert"),
	})
	s.tracker = presence.NewTracker(presence.Options{
		Store:         store,
		Cooldown:      cfg.PresenceCooldown(),
		SweepInterval: cfg.SweepInterval(),
		OnChange:      s.onPresenceChange,
		Logger:        logger.With("component", "presence"),
	})
	s.poller = poller.New(poller.Options{
		Source:   s.box,
		Presence: s.tracker,
		Alerts:   s.alerts,
		Interval: cfg.PollInterval(),
		Timeout:  cfg.PollTimeout(),
		Logger:   logger.With("component", "poller"),
	})
	s.stream = stream.New(stream.Options{
		Client:        deps.StreamClient,
		OnFrame:       s.onFrame,
		OnState:       s.onStreamState,
		MaxBufferSize: cfg.MaxFrameBuffer(),
		IdleTimeout:   cfg.StreamIdleTimeout(),
		Logger:        logger.With("component", "stream"),
	})
	return s, nil
}

// Load restores persisted state for every component.
func (s *Service) Load(ctx context.Context) error {
	if err := s.tracker.Load(ctx); err != nil {
		return fmt.Errorf("failed to load presence: %w", err)
	}
	if err := s.alerts.Load(ctx); err != nil {
		return fmt.Errorf("failed to load guard mode: %w", err)
	}
	if err := s.events.Load(ctx); err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}
	if err := s.roster.Load(ctx); err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}
	return nil
}

// Run keeps every loop going until ctx is done. State must already be
// loaded.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.tracker.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.poller.Run(ctx)
		return nil
	})
	g.Go(func() error {
		return s.keepStream(ctx)
	})

	s.logger.Info("homecam running",
		"box", s.cfg.Box.URL,
		"stream", s.cfg.StreamEndpoint(),
		"guard_mode", s.alerts.GuardMode())
	return g.Wait()
}

// keepStream restarts the demuxer after every disconnect, waiting the
// reconnect delay in between.
func (s *Service) keepStream(ctx context.Context) error {
	endpoint := s.cfg.StreamEndpoint()
	if strings.TrimSpace(endpoint) == "" {
		s.logger.Warn("no stream endpoint configured, frames disabled")
		return nil
	}
	defer s.stream.Stop()

	delay := s.cfg.ReconnectDelay()
	for {
		if err := s.stream.Start(ctx, endpoint); err != nil {
			return fmt.Errorf("failed to start stream: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.stream.Done():
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (s *Service) onFrame(f stream.Frame) {
	s.frameMu.Lock()
	s.frame = &f
	s.frameMu.Unlock()
}

func (s *Service) onStreamState(st stream.State) {
	attrs := []any{"state", st.Kind.String(), "session", st.Session}
	if st.Err != nil {
		attrs = append(attrs, "error", st.Err)
	}
	s.logger.Debug("stream state", attrs...)
	s.publish(MessageStream, streamMessage{State: st.Kind.String(), Error: errString(st.Err)})
}

func (s *Service) onPresenceChange(change models.StatusChange) {
	s.publish(MessagePresence, change)
	s.alerts.HandleMemberStatusChange(context.Background(), change)
}

// LatestFrame returns the most recent decoded frame, if any.
func (s *Service) LatestFrame() (stream.Frame, bool) {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	if s.frame == nil {
		return stream.Frame{}, false
	}
	return *s.frame, true
}

func (s *Service) Tracker() *presence.Tracker { return s.tracker }
func (s *Service) Alerts() *alert.Engine      { return s.alerts }
func (s *Service) Events() *eventlog.Log      { return s.events }
func (s *Service) Roster() *roster.Roster     { return s.roster }
func (s *Service) Hub() *hub.Hub              { return s.hub }
func (s *Service) Box() *recognition.Client   { return s.box }
func (s *Service) Poller() *poller.Poller     { return s.poller }
func (s *Service) Stream() *stream.Demuxer    { return s.stream }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
