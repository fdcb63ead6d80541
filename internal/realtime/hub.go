// Package realtime fans out board events to connected clients over SSE.
package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Event is one broadcast on a board channel. Payload carries the resolved
// entity as it was persisted; OldListID and NewListID are set on moves so
// clients can update both columns.
type Event struct {
	Type      string `json:"type"`
	BoardID   string `json:"boardId"`
	OldListID string `json:"oldListId,omitempty"`
	NewListID string `json:"newListId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

const (
	EventMemberAdded   = "member-added"
	EventMemberRemoved = "member-removed"
	EventCardCreated   = "card-created"
	EventCardUpdated   = "card-updated"
	EventCardMoved     = "card-moved"
	EventCardDeleted   = "card-deleted"
	EventListCreated   = "list-created"
	EventListUpdated   = "list-updated"
	EventListDeleted   = "list-deleted"
	EventCommentAdded  = "comment-added"
)

// Hub is an in-process pub/sub keyed by board id. Delivery is at most
// once: a subscriber that cannot keep up has events dropped rather than
// blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

func (h *Hub) Subscribe(boardID string) (ch chan []byte, cancel func()) {
	ch = make(chan []byte, 16)
	h.mu.Lock()
	if h.subs[boardID] == nil {
		h.subs[boardID] = make(map[chan []byte]struct{})
	}
	h.subs[boardID][ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if subs, ok := h.subs[boardID]; ok {
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subs, boardID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}
}

func (h *Hub) Publish(ev Event) {
	data, _ := json.Marshal(ev)
	h.mu.RLock()
	subs := h.subs[ev.BoardID]
	for ch := range subs {
		select {
		case ch <- data:
		default: // drop if slow
		}
	}
	h.mu.RUnlock()
}

// SubscriberCount reports how many connections a board channel has.
func (h *Hub) SubscriberCount(boardID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[boardID])
}

// ServeSSE streams a board's events over one SSE connection until the
// client goes away.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request, boardID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	ch, cancel := h.Subscribe(boardID)
	defer cancel()

	// Initial comment to open the stream
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			// heartbeat comment to keep connection alive through proxies
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}
