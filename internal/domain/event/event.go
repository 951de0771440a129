package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrClientNotFound = errors.New("event client not found")
	ErrChannelFull    = errors.New("event client channel full")
)

// Event is a lifecycle notification emitted on every engagement transition.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// New creates an event.
func New(eventType, sessionID string, data json.RawMessage) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Client represents an active event stream subscriber. A nil SessionID
// subscribes to all sessions.
type Client struct {
	ClientID    string
	SessionID   *string
	ConnectedAt time.Time
	EventChan   chan *Event
}

// NewClient creates a subscriber with a buffered channel.
func NewClient(clientID string, sessionID *string) *Client {
	return &Client{
		ClientID:    clientID,
		SessionID:   sessionID,
		ConnectedAt: time.Now().UTC(),
		EventChan:   make(chan *Event, 100),
	}
}

// Close closes the client's event channel.
func (c *Client) Close() {
	close(c.EventChan)
}

// Publisher broadcasts engagement lifecycle events.
type Publisher interface {
	Publish(evt *Event)
}
