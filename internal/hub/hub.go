// Package hub implements the broadcast registry behind the notification
// endpoint: a concurrency-safe set of subscriber channels that file-change
// events are fanned out to. It is independent of the HTTP transport; both
// the event-stream and the WebSocket handlers subscribe through it.
package hub

import (
	"context"
	"sync"

	"github.com/InsiderPie/http-reload-proxy/internal/logging"
)

// subscriberBuffer bounds how many undelivered events a subscriber may
// accumulate before it is considered dead and dropped.
const subscriberBuffer = 16

// Subscriber is one connected client's receive handle. It lives from the
// moment the client connects until its connection closes; the owning
// transport handler must call Unsubscribe on the way out.
type Subscriber struct {
	ch chan string
}

// Events returns the channel the subscriber's events arrive on. The channel
// is closed when the subscriber is removed from the hub.
func (s *Subscriber) Events() <-chan string {
	return s.ch
}

// Hub maintains the subscriber set and fans out published events.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]struct{}
	logger      logging.Logger
}

// New creates an empty hub.
func New(logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewLogger(nil)
	}
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		logger:      logger.WithComponent("hub"),
	}
}

// Subscribe registers a new subscriber and returns its handle.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan string, subscriberBuffer)}

	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	count := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug(context.Background(), "subscriber connected", "total", count)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Removing a
// subscriber twice is a no-op.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	if ok {
		delete(h.subscribers, sub)
	}
	count := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		close(sub.ch)
		h.logger.Debug(context.Background(), "subscriber disconnected", "total", count)
	}
}

// Publish delivers event to every current subscriber. The write to each
// subscriber is non-blocking: a subscriber whose buffer is full is dropped
// from the set instead of stalling delivery to the rest.
func (h *Hub) Publish(event string) {
	h.mu.Lock()
	var failed []*Subscriber
	for sub := range h.subscribers {
		select {
		case sub.ch <- event:
		default:
			failed = append(failed, sub)
		}
	}
	for _, sub := range failed {
		delete(h.subscribers, sub)
	}
	h.mu.Unlock()

	for _, sub := range failed {
		close(sub.ch)
		h.logger.Debug(context.Background(), "dropped unresponsive subscriber")
	}
}

// Count returns the number of currently connected subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
