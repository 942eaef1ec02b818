package home

import (
	"context"
	"fmt"
	"strings"

	"github.com/kdimtricp/homecam/internal/alert"
	"github.com/kdimtricp/homecam/internal/models"
	"github.com/kdimtricp/homecam/internal/recognition"
	"github.com/kdimtricp/homecam/internal/stream"
)

type StreamStatus struct {
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
	Boundary string `json:"boundary"`
	stream.Stats
}

// Person is a tracked member joined with roster metadata.
type Person struct {
	models.PersonStatus
	DisplayName  string `json:"display_name"`
	Relationship string `json:"relationship,omitempty"`
}

type Status struct {
	GuardMode   bool           `json:"guard_mode"`
	Alerts      alert.Snapshot `json:"alerts"`
	Stream      StreamStatus   `json:"stream"`
	People      []Person       `json:"people"`
	Subscribers int            `json:"subscribers"`
}

func (s *Service) Status() Status {
	st := s.stream.State()
	return Status{
		GuardMode: s.alerts.GuardMode(),
		Alerts:    s.alerts.Snapshot(),
		Stream: StreamStatus{
			State:    st.Kind.String(),
			Error:    errString(st.Err),
			Boundary: strings.TrimSpace(s.stream.Boundary()),
			Stats:    s.stream.Stats(),
		},
		People:      s.People(),
		Subscribers: s.hub.SubscriberCount(),
	}
}

func (s *Service) People() []Person {
	statuses := s.tracker.People()
	out := make([]Person, len(statuses))
	for i, p := range statuses {
		out[i] = Person{
			PersonStatus: p,
			DisplayName:  s.roster.DisplayName(p.Name),
			Relationship: s.roster.Relationship(p.Name),
		}
	}
	return out
}

// AddPerson starts tracking name as home. It reports false when the name
// was already tracked.
func (s *Service) AddPerson(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, recognition.ErrEmptyLabel
	}
	if models.IsUnknown(name) {
		return false, fmt.Errorf("%q is reserved", models.UnknownLabel)
	}
	return s.tracker.AddPerson(ctx, name), nil
}

func (s *Service) RemovePerson(ctx context.Context, name string) bool {
	return s.tracker.Remove(ctx, name)
}

func (s *Service) SetRelationship(ctx context.Context, name, relationship string) error {
	return s.roster.SetRelationship(ctx, name, relationship)
}

// SetGuardMode arms or disarms alerting and tells live subscribers.
func (s *Service) SetGuardMode(ctx context.Context, active bool) bool {
	changed := s.alerts.SetGuardMode(ctx, active)
	if changed {
		s.publish(MessageGuard, guardMessage{Active: active})
	}
	return changed
}

func (s *Service) Labels(ctx context.Context, refresh bool) ([]string, error) {
	return s.roster.Labels(ctx, refresh)
}

// Register enrolls a new label on the box and starts tracking it.
func (s *Service) Register(ctx context.Context, req recognition.RegisterRequest) (*recognition.RegisterResult, error) {
	res, err := s.box.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(res.Labels) > 0 {
		s.roster.Update(ctx, res.Labels)
	} else {
		s.roster.Invalidate()
	}
	if res.OK {
		s.tracker.AddPerson(ctx, strings.TrimSpace(req.Label))
	}
	return res, nil
}

// DeleteLabel removes a label from the box and stops tracking it.
func (s *Service) DeleteLabel(ctx context.Context, label string) ([]string, error) {
	labels, err := s.box.Delete(ctx, label)
	if err != nil {
		return nil, err
	}
	s.roster.Update(ctx, labels)
	s.tracker.Remove(ctx, strings.TrimSpace(label))
	return labels, nil
}

// Reload retrains the box recognizer and refreshes the roster.
func (s *Service) Reload(ctx context.Context) ([]string, error) {
	labels, err := s.box.Reload(ctx)
	if err != nil {
		return nil, err
	}
	return s.roster.Update(ctx, labels), nil
}

func (s *Service) BoxHealth(ctx context.Context) (*recognition.Health, error) {
	return s.box.Health(ctx)
}
