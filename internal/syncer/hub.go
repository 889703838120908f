package syncer

import (
	"sync"

	"github.com/pinreview/backend/internal/models"
)

// EventType names what changed in an Event.
type EventType string

const (
	EventComments EventType = "comments"
	EventTarget   EventType = "target"
	EventWarning  EventType = "warning"
	EventDeleted  EventType = "deleted"
)

// Event is delivered to readers of a target.
type Event struct {
	Type     EventType                `json:"type"`
	TargetID string                   `json:"target_id"`
	Comments []models.Comment         `json:"comments,omitempty"`
	Target   *models.AnnotationTarget `json:"target,omitempty"`
	Warning  *Warning                 `json:"warning,omitempty"`
}

// hub fans events out to the readers of each target. Slow readers miss
// events rather than blocking the writer.
type hub struct {
	mu      sync.Mutex
	readers map[string]map[chan Event]struct{}
}

func newHub() *hub {
	return &hub{readers: make(map[string]map[chan Event]struct{})}
}

func (h *hub) subscribe(targetID string) (<-chan Event, func()) {
	ch := make(chan Event, 32)

	h.mu.Lock()
	if h.readers[targetID] == nil {
		h.readers[targetID] = make(map[chan Event]struct{})
	}
	h.readers[targetID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.readers[targetID], ch)
			if len(h.readers[targetID]) == 0 {
				delete(h.readers, targetID)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, unsub
}

func (h *hub) publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.readers[event.TargetID] {
		select {
		case ch <- event:
		default:
		}
	}
}
