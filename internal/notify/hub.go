// Package notify fans change notifications out to subscribers. The cache
// stores publish an event after every local mutation; repository watch
// streams and the UI's websocket connection consume them.
package notify

import (
	"log/slog"
	"sync"
)

// Event describes one cache change.
type Event struct {
	Entity string `json:"entity"`
	Action string `json:"action"` // created, updated, deleted, replaced
	ID     string `json:"id,omitempty"`
}

const subscriberBuffer = 32

// Hub is an in-process publish/subscribe bus for cache change events.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, subscriberBuffer)
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber. Subscribers with full
// buffers are skipped rather than blocking the writer.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Debug("notify subscriber buffer full, dropping event",
				"entity", e.Entity, "action", e.Action)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
