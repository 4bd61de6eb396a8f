package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/wheresmyjobat/wheresmyjobat/internal/model"
)

// subscriberBuffer is how many pending events a slow client may queue before
// the hub starts dropping events for it.
const subscriberBuffer = 8

type sseEvent struct {
	name string
	data []byte
}

// Hub fans monitor notifications out to connected event-stream clients. It
// implements service.Publisher. Sends never block: a subscriber that cannot
// keep up loses events rather than stalling the monitor loop.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan sseEvent
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan sseEvent)}
}

// PublishSnapshot broadcasts the full grouped application list.
func (h *Hub) PublishSnapshot(snapshot model.Snapshot) {
	h.broadcast("applications_updated", snapshot)
}

// PublishNewApplication broadcasts a single newly detected application.
func (h *Hub) PublishNewApplication(event model.NewApplicationEvent) {
	h.broadcast("new_application_detected", event)
}

func (h *Hub) broadcast(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode event", "event", name, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subscribers {
		select {
		case ch <- sseEvent{name: name, data: data}:
		default:
			slog.Debug("Dropping event for slow subscriber", "subscriber", id, "event", name)
		}
	}
}

func (h *Hub) subscribe() (string, chan sseEvent) {
	id := uuid.NewString()
	ch := make(chan sseEvent, subscriberBuffer)

	h.mu.Lock()
	h.subscribers[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	h.mu.Unlock()
}

// SubscriberCount returns the number of connected clients.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP streams hub events to one client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, ch := h.subscribe()
	defer h.unsubscribe(id)
	slog.Debug("Event stream connected", "subscriber", id)

	for {
		select {
		case <-r.Context().Done():
			slog.Debug("Event stream disconnected", "subscriber", id)
			return
		case ev := <-ch:
			if _, err := w.Write([]byte("event: " + ev.name + "\ndata: " + string(ev.data) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
