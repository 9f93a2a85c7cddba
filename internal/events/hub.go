package events

import (
	"log/slog"
	"sync"
	"time"
)

const subscriberBuffer = 64

// Sink receives outbound notifications. Delivery is at-most-once per
// observer; slow observers drop events rather than stall the
// deliberation loops.
type Sink interface {
	Publish(evt Event)
}

// Subscription is one observer's event feed.
type Subscription struct {
	C         <-chan Event
	ch        chan Event
	sessionID string
}

// Hub fans events out to subscribed observers.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// NewHub creates a new event hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers an observer. An empty sessionID receives events
// for every session. Callers must Unsubscribe when done.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, ch: ch, sessionID: sessionID}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe removes an observer and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	_, ok := h.subs[sub]
	if ok {
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	if ok {
		close(sub.ch)
	}
}

// Publish delivers an event to every matching subscriber. Never blocks;
// a full subscriber buffer drops the event for that subscriber.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs {
		if sub.sessionID != "" && sub.sessionID != evt.SessionID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			slog.Debug("dropping event for slow observer",
				"type", evt.Type, "session_id", evt.SessionID)
		}
	}
}

var _ Sink = (*Hub)(nil)
