package models

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventUnknownDetected EventKind = "unknown_detected"
	EventMemberArrived   EventKind = "member_arrived"
	EventMemberLeft      EventKind = "member_left"
	EventSecurityAlert   EventKind = "security_alert"
	EventSystem          EventKind = "system"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventUnknownDetected, EventMemberArrived, EventMemberLeft, EventSecurityAlert, EventSystem:
		return true
	}
	return false
}

type SecurityEvent struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Kind        EventKind `json:"kind"`
	Description string    `json:"description"`
}

func NewSecurityEvent(kind EventKind, description string, at time.Time) SecurityEvent {
	return SecurityEvent{
		ID:          uuid.New().String(),
		Timestamp:   at,
		Kind:        kind,
		Description: description,
	}
}
