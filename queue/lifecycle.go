package queue

import (
	"time"

	"go.uber.org/zap"

	"github.com/waitline/waitline/bus"
	"github.com/waitline/waitline/errors"
)

// legalTransitions is the lifecycle state machine. Anything absent here
// is rejected as an invalid transition.
var legalTransitions = map[TicketStatus][]TicketStatus{
	TicketWaiting:     {TicketBeingServed, TicketCancelled},
	TicketBeingServed: {TicketCompleted},
}

func transitionAllowed(from, to TicketStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Lifecycle drives tickets through their status state machine and owns
// the removal path.
type Lifecycle struct {
	store     *Store
	publisher Publisher
	logger    *zap.SugaredLogger
}

// NewLifecycle creates a ticket lifecycle driver.
func NewLifecycle(store *Store, publisher Publisher, logger *zap.SugaredLogger) *Lifecycle {
	return &Lifecycle{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

// List returns a queue's tickets in token order, optionally filtered by
// status.
func (l *Lifecycle) List(queueID int64, status *TicketStatus) ([]*Ticket, error) {
	if status != nil {
		switch *status {
		case TicketWaiting, TicketBeingServed, TicketCompleted, TicketCancelled:
		default:
			return nil, errors.Newf("invalid ticket status %q", *status)
		}
	}
	return l.store.ListTickets(queueID, status)
}

// Transition moves a ticket to a new status. Entering BEING_SERVED sets
// called_at; entering COMPLETED sets served_at. Both recompute
// waiting_time in minutes from joined_at. An illegal transition is a
// validation failure, not a fatal error.
func (l *Lifecycle) Transition(queueID, ticketID int64, to TicketStatus) (*Ticket, error) {
	ticket, err := l.store.GetTicket(queueID, ticketID)
	if err != nil {
		return nil, err
	}

	if !transitionAllowed(ticket.Status, to) {
		return nil, errors.NewInvalidTransition("cannot transition ticket %d from %s to %s", ticketID, ticket.Status, to)
	}

	now := time.Now().UTC()
	var calledAt, servedAt *time.Time
	var waitingTime *float64

	switch to {
	case TicketBeingServed:
		calledAt = &now
		waiting := now.Sub(ticket.JoinedAt).Minutes()
		waitingTime = &waiting
	case TicketCompleted:
		servedAt = &now
		waiting := now.Sub(ticket.JoinedAt).Minutes()
		waitingTime = &waiting
	}

	applied, err := l.store.UpdateTicketStatus(ticketID, ticket.Status, to, calledAt, servedAt, waitingTime)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent transition or removal won the race.
		return nil, errors.NewInvalidTransition("ticket %d is no longer %s", ticketID, ticket.Status)
	}

	ticket.Status = to
	if calledAt != nil {
		ticket.CalledAt = calledAt
	}
	if servedAt != nil {
		ticket.ServedAt = servedAt
	}
	if waitingTime != nil {
		ticket.WaitingTime = waitingTime
	}

	l.publishStatusChanged(ticket)

	if l.logger != nil {
		l.logger.Infow("Ticket transitioned",
			"queue_id", queueID,
			"ticket_id", ticketID,
			"status", to,
		)
	}

	return ticket, nil
}

// Remove deletes a ticket, archiving it first. A non-terminal ticket is
// force-completed so the archive always records a waiting time. Archive,
// delete, and the forced completion are one transaction.
func (l *Lifecycle) Remove(queueID, ticketID int64) error {
	removedAt := time.Now().UTC()
	ticket, err := l.store.ArchiveAndDeleteTicket(queueID, ticketID, removedAt)
	if err != nil {
		return err
	}

	l.publishRemoved(ticket)

	if l.logger != nil {
		l.logger.Infow("Ticket removed",
			"queue_id", queueID,
			"ticket_id", ticketID,
		)
	}
	return nil
}

func (l *Lifecycle) publishStatusChanged(ticket *Ticket) {
	if l.publisher == nil {
		return
	}
	err := l.publisher.Publish(bus.EventTicketStatusChanged, bus.TicketStatusChangedPayload{
		QueueID:     ticket.QueueID,
		TicketID:    ticket.ID,
		Status:      string(ticket.Status),
		WaitingTime: ticket.WaitingTime,
	})
	if err != nil && l.logger != nil {
		l.logger.Errorw("Failed to publish status change",
			"queue_id", ticket.QueueID,
			"ticket_id", ticket.ID,
			"error", err,
		)
	}
}

func (l *Lifecycle) publishRemoved(ticket *Ticket) {
	if l.publisher == nil {
		return
	}
	err := l.publisher.Publish(bus.EventTicketRemoved, bus.TicketRemovedPayload{
		QueueID:     ticket.QueueID,
		TicketID:    ticket.ID,
		WaitingTime: ticket.WaitingTime,
	})
	if err != nil && l.logger != nil {
		l.logger.Errorw("Failed to publish removal",
			"queue_id", ticket.QueueID,
			"ticket_id", ticket.ID,
			"error", err,
		)
	}
}
