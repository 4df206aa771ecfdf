// Package stream fans newly ingested log entries out to live SSE
// subscribers. Delivery is best-effort: a subscriber that cannot keep up
// loses events rather than blocking ingestion.
package stream

import (
	"sync"

	"github.com/linnemanlabs/aegis/internal/logentry"
)

// EventNewLog identifies a freshly ingested log entry event.
const EventNewLog = "new_log"

// subscriberBuffer is the per-subscriber channel depth before events are
// dropped.
const subscriberBuffer = 16

// Event is one item pushed to subscribers.
type Event struct {
	Type string             `json:"type"`
	Log  *logentry.LogEntry `json:"log"`
}

// Hub tracks subscribers and broadcasts events to them.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel plus a
// cancel function. cancel is idempotent and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish broadcasts a new-log event to all subscribers without blocking.
// Subscribers with a full buffer are skipped.
func (h *Hub) Publish(le *logentry.LogEntry) {
	ev := Event{Type: EventNewLog, Log: le}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers reports the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
