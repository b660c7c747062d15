// Package push models the real-time notification channel. The transport
// feeding the hub (websocket, SSE, long-poll) is a collaborator; the
// engine only consumes typed events from a subscription.
package push

import (
	"sync"

	"github.com/nhle/mailsync/internal/model"
)

// Kind identifies the push event variety.
type Kind string

const (
	// KindReceived carries a full message payload for a folder.
	KindReceived Kind = "received"

	// KindSent is a bare notification that the user's account sent a
	// message; the payload is not delivered.
	KindSent Kind = "sent"

	// KindDraftSaved is a bare notification that a draft was committed
	// remotely.
	KindDraftSaved Kind = "draft-saved"
)

// Event is a single push-channel delivery.
type Event struct {
	Kind   Kind
	Folder model.Folder

	// Message is set only for KindReceived.
	Message *model.Message
}

// Hub fans push events out to per-user subscribers. Delivery is
// best-effort: a subscriber that cannot keep up loses events, and the
// engine degrades to fetch-based synchronization.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers interest in one user's events. The returned cancel
// function removes the subscription and closes the channel; it must be
// called exactly once.
func (h *Hub) Subscribe(userID string) (chan Event, func()) {
	ch := make(chan Event, 8)
	h.mu.Lock()
	if _, ok := h.subs[userID]; !ok {
		h.subs[userID] = make(map[chan Event]struct{})
	}
	h.subs[userID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		if subscribers, ok := h.subs[userID]; ok {
			delete(subscribers, ch)
			if len(subscribers) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
}

// Broadcast delivers an event to every subscriber of the user without
// blocking; full subscriber channels are skipped.
func (h *Hub) Broadcast(userID string, ev Event) {
	if userID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[userID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
