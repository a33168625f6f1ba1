// Package bus is the durable event bus: every published event is appended
// to an ordered log in SQLite and delivered to in-process subscribers by a
// polling consumer. Delivery is at-least-once; the consumer cursor advances
// only after an event has been handed to every subscriber.
package bus

import (
	"encoding/json"
	"time"
)

// Event types published on the shared topic.
const (
	EventTicketJoined        = "TICKET_JOINED"
	EventTicketStatusChanged = "TICKET_STATUS_CHANGED"
	EventTicketRemoved       = "TICKET_REMOVED"
)

// Event is one entry of the durable log. ID is assigned by the store and
// defines the total order across all queues.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Envelope is the wire form delivered to websocket clients.
type Envelope struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Envelope returns the wire form of the event.
func (e *Event) Envelope() Envelope {
	return Envelope{EventType: e.Type, Payload: e.Payload}
}

// TicketJoinedPayload is published when a ticket is admitted to a queue.
type TicketJoinedPayload struct {
	QueueID           int64     `json:"queue_id"`
	TicketID          int64     `json:"ticket_id"`
	TokenNumber       int       `json:"token_number"`
	JoinedAt          time.Time `json:"joined_at"`
	EstimatedWaitTime *float64  `json:"estimated_wait_time,omitempty"`
	AverageWaitTime   *float64  `json:"average_wait_time,omitempty"`
}

// TicketStatusChangedPayload is published on every lifecycle transition.
type TicketStatusChangedPayload struct {
	QueueID     int64    `json:"queue_id"`
	TicketID    int64    `json:"ticket_id"`
	Status      string   `json:"status"`
	WaitingTime *float64 `json:"waiting_time,omitempty"`
}

// TicketRemovedPayload is published when a ticket is removed and archived.
type TicketRemovedPayload struct {
	QueueID     int64    `json:"queue_id"`
	TicketID    int64    `json:"ticket_id"`
	WaitingTime *float64 `json:"waiting_time,omitempty"`
}
