package alert

import (
	"sync"

	"github.com/tphakala/withu/internal/classifier"
)

// History keeps the most recent detections, newest first.
type History struct {
	mu     sync.RWMutex
	limit  int
	events []classifier.DetectionEvent
}

// NewHistory creates a history holding at most limit events.
func NewHistory(limit int) *History {
	limit = max(limit, 1)
	return &History{limit: limit, events: make([]classifier.DetectionEvent, 0, limit)}
}

// Add records an event, evicting the oldest when full.
func (h *History) Add(event classifier.DetectionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.events) < h.limit {
		h.events = append(h.events, classifier.DetectionEvent{})
	}
	copy(h.events[1:], h.events[:len(h.events)-1])
	h.events[0] = event
}

// List returns a copy of the events, newest first.
func (h *History) List() []classifier.DetectionEvent {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]classifier.DetectionEvent(nil), h.events...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = h.events[:0]
}
