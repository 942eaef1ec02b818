package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultQueueSize = 32

// Async hands notifications to a background worker so callers never wait on
// the network. When the queue is full the notification is dropped.
type Async struct {
	next    Notifier
	logger  *slog.Logger
	timeout time.Duration

	queue     chan Notification
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewAsync(next Notifier, queueSize int, logger *slog.Logger) *Async {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		next:    next,
		logger:  logger,
		timeout: 15 * time.Second,
		queue:   make(chan Notification, queueSize),
		done:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.loop()
	return a
}

// Notify enqueues n and returns immediately. It never returns an error.
func (a *Async) Notify(_ context.Context, n Notification) error {
	select {
	case <-a.done:
		return nil
	default:
	}
	select {
	case a.queue <- n:
	default:
		a.logger.Warn("notification queue full, dropping", "title", n.Title)
	}
	return nil
}

// Close stops accepting notifications, delivers what is queued and waits for
// the worker to exit.
func (a *Async) Close() {
	a.closeOnce.Do(func() { close(a.done) })
	a.wg.Wait()
}

func (a *Async) loop() {
	defer a.wg.Done()
	for {
		select {
		case n := <-a.queue:
			a.send(n)
		case <-a.done:
			for {
				select {
				case n := <-a.queue:
					a.send(n)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) send(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.next.Notify(ctx, n); err != nil {
		a.logger.Warn("notification failed", "title", n.Title, "error", err)
	}
}
