package events

import (
	"sync"

	"github.com/seekreap/engagement-hub/internal/domain/event"
)

// Hub fans engagement lifecycle events out to stream subscribers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*event.Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*event.Client),
	}
}

func (h *Hub) Register(client *event.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers an event to subscribers of its session and to
// subscribers of all sessions. Slow clients are skipped, never blocked on.
func (h *Hub) Publish(evt *event.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.SessionID != nil && *c.SessionID != evt.SessionID {
			continue
		}
		trySend(c, evt)
	}
}

func (h *Hub) SendToClient(clientID string, evt *event.Event) error {
	h.mu.RLock()
	c := h.clients[clientID]
	h.mu.RUnlock()
	if c == nil {
		return event.ErrClientNotFound
	}
	if !trySend(c, evt) {
		return event.ErrChannelFull
	}
	return nil
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *event.Client, evt *event.Event) bool {
	select {
	case c.EventChan <- evt:
		return true
	default:
		return false
	}
}
