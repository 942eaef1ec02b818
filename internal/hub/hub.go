// Package hub fans live events out to WebSocket and Server-Sent Events
// subscribers.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
)

const (
	broadcastBuffer = 256
	clientBuffer    = 64
)

// Subscriber receives broadcast payloads on C until it is removed. C is
// closed when the hub drops the subscriber: on Unsubscribe, when it falls
// too far behind, or when the hub stops.
type Subscriber struct {
	C    <-chan []byte
	send chan []byte
}

type Hub struct {
	logger *slog.Logger

	subscribers map[*Subscriber]bool
	broadcast   chan []byte
	register    chan *Subscriber
	unregister  chan *Subscriber
	done        chan struct{}
	stopOnce    sync.Once

	mu    sync.RWMutex
	count int
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger,
		subscribers: make(map[*Subscriber]bool),
		broadcast:   make(chan []byte, broadcastBuffer),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		done:        make(chan struct{}),
	}
}

// Run owns the subscriber set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })
	defer func() {
		for s := range h.subscribers {
			close(s.send)
			delete(h.subscribers, s)
		}
		h.setCount(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-h.register:
			h.subscribers[s] = true
			h.setCount(len(h.subscribers))
			h.logger.Debug("subscriber connected", "total", len(h.subscribers))

		case s := <-h.unregister:
			if h.subscribers[s] {
				delete(h.subscribers, s)
				close(s.send)
			}
			h.setCount(len(h.subscribers))
			h.logger.Debug("subscriber disconnected", "remaining", len(h.subscribers))

		case msg := <-h.broadcast:
			for s := range h.subscribers {
				select {
				case s.send <- msg:
				default:
					delete(h.subscribers, s)
					close(s.send)
					h.logger.Warn("dropped slow subscriber")
				}
			}
			h.setCount(len(h.subscribers))
		}
	}
}

// Subscribe adds a subscriber. It returns nil once the hub has stopped.
func (h *Hub) Subscribe() *Subscriber {
	ch := make(chan []byte, clientBuffer)
	s := &Subscriber{C: ch, send: ch}
	select {
	case h.register <- s:
		return s
	case <-h.done:
		return nil
	}
}

func (h *Hub) Unsubscribe(s *Subscriber) {
	if s == nil {
		return
	}
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}

// Broadcast queues msg for every subscriber. It drops msg when the hub is
// backed up.
func (h *Hub) Broadcast(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast queue full, dropping message")
	}
}

func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Done is closed after Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}
