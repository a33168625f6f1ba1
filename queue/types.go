// Package queue implements waiting-line admission, the ticket lifecycle
// state machine, wait-time estimation, and the history archive.
package queue

import "time"

// Type determines the admission gating rule of a queue.
type Type string

const (
	TypeGeneral    Type = "GENERAL"
	TypeTokenBased Type = "TOKEN_BASED"
	TypePriority   Type = "PRIORITY"
)

// Valid reports whether t is a known queue type.
func (t Type) Valid() bool {
	switch t {
	case TypeGeneral, TypeTokenBased, TypePriority:
		return true
	}
	return false
}

// Status is the admission state of a queue. Only OPEN queues admit.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusPaused Status = "PAUSED"
	StatusClosed Status = "CLOSED"
)

// Valid reports whether s is a known queue status.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusPaused, StatusClosed:
		return true
	}
	return false
}

// TicketStatus is a ticket's position in the lifecycle state machine.
type TicketStatus string

const (
	TicketWaiting     TicketStatus = "WAITING"
	TicketBeingServed TicketStatus = "BEING_SERVED"
	TicketCompleted   TicketStatus = "COMPLETED"
	TicketCancelled   TicketStatus = "CANCELLED"
)

// Terminal reports whether the status ends the lifecycle.
func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketCancelled
}

// Queue is a waiting line. The access token is never serialized with the
// queue; owners read it through the access-info endpoint.
type Queue struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Type           Type      `json:"queue_type"`
	Status         Status    `json:"status"`
	MaxCapacity    *int      `json:"max_capacity,omitempty"`
	AccessToken    *string   `json:"-"`
	OwnerUserID    *int64    `json:"owner_user_id,omitempty"`
	OwnerServiceID *int64    `json:"owner_service_id,omitempty"`
	OwnerOrgID     *int64    `json:"owner_org_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ticket is one admitted occupant of a queue. WaitingTime is in minutes
// and stays null until a transition computes it.
type Ticket struct {
	ID          int64        `json:"id"`
	QueueID     int64        `json:"queue_id"`
	UserID      *int64       `json:"user_id,omitempty"`
	TokenNumber int          `json:"token_number"`
	Status      TicketStatus `json:"status"`
	JoinedAt    time.Time    `json:"joined_at"`
	CalledAt    *time.Time   `json:"called_at,omitempty"`
	ServedAt    *time.Time   `json:"served_at,omitempty"`
	WaitingTime *float64     `json:"waiting_time,omitempty"`
	JoinHash    string       `json:"join_hash"`
}

// JoinedTicket is the admission response: the new ticket plus the wait
// estimate computed in the same call. Both estimate fields are null on
// cold start.
type JoinedTicket struct {
	Ticket
	EstimatedWaitTime *int     `json:"estimated_wait_time"`
	AverageWaitTime   *float64 `json:"average_wait_time"`
}

// HistoryRecord is the immutable analytics snapshot written once per
// ticket removal.
type HistoryRecord struct {
	ID          int64     `json:"id"`
	QueueID     int64     `json:"queue_id"`
	UserID      *int64    `json:"user_id,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	RemovedAt   time.Time `json:"removed_at"`
	WaitingTime float64   `json:"waiting_time"`
}

// HistoryStats aggregates archived waiting times over a lookback window.
type HistoryStats struct {
	AverageWaitTime *float64 `json:"average_wait_time"`
	MinWaitTime     *float64 `json:"min_wait_time"`
	MaxWaitTime     *float64 `json:"max_wait_time"`
	TotalServed     int      `json:"total_served"`
}

// AccessInfo is the owner-only view of a TOKEN_BASED queue's secret and
// the join link encoding it.
type AccessInfo struct {
	AccessToken string `json:"access_token"`
	QRCodeURL   string `json:"qr_code_url"`
}

// Publisher is the event-bus surface the queue components need. Publish
// failures are logged and swallowed; they never unwind a committed
// mutation.
type Publisher interface {
	Publish(eventType string, payload any) error
}
