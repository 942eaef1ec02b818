package home

import "time"

// Message types sent to live subscribers.
const (
	MessageEvent    = "event"
	MessagePresence = "presence"
	MessageStream   = "stream"
	MessageGuard    = "guard"
)

// Message is the envelope broadcast over WebSocket and SSE.
type Message struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

type streamMessage struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

type guardMessage struct {
	Active bool `json:"active"`
}

func (s *Service) publish(kind string, data any) {
	if err := s.hub.BroadcastJSON(Message{Type: kind, At: time.Now(), Data: data}); err != nil {
		s.logger.Warn("failed to encode live message", "type", kind, "error", err)
	}
}
