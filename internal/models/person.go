package models

import (
	"strings"
	"time"
)

// UnknownLabel is the label the recognition box reports for unrecognized faces.
const UnknownLabel = "unknown"

// IsUnknown reports whether name is the reserved unknown label.
func IsUnknown(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), UnknownLabel)
}

type Presence string

const (
	Home Presence = "home"
	Away Presence = "away"
)

// Toggle returns the opposite presence.
func (p Presence) Toggle() Presence {
	if p == Away {
		return Home
	}
	return Away
}

type PersonStatus struct {
	Name                 string     `json:"name"`
	Status               Presence   `json:"status"`
	LastDetectionTime    *time.Time `json:"last_detection_time,omitempty"`
	LastStatusChangeTime time.Time  `json:"last_status_change_time"`
	CooldownUntil        *time.Time `json:"cooldown_until,omitempty"`
}

func NewPersonStatus(name string, at time.Time) *PersonStatus {
	return &PersonStatus{
		Name:                 name,
		Status:               Home,
		LastStatusChangeTime: at,
	}
}

// InCooldown reports whether detections for this person are suppressed at now.
func (p *PersonStatus) InCooldown(now time.Time) bool {
	return p.CooldownUntil != nil && now.Before(*p.CooldownUntil)
}

// StatusChange is emitted once per home/away transition.
type StatusChange struct {
	Name   string    `json:"name"`
	Status Presence  `json:"status"`
	At     time.Time `json:"at"`
}
