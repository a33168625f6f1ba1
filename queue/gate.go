package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/waitline/waitline/bus"
	"github.com/waitline/waitline/errors"
)

// Gate admits requesters into queues.
type Gate struct {
	store     *Store
	estimator *Estimator
	publisher Publisher
	logger    *zap.SugaredLogger
}

// NewGate creates an admission gate.
func NewGate(store *Store, estimator *Estimator, publisher Publisher, logger *zap.SugaredLogger) *Gate {
	return &Gate{
		store:     store,
		estimator: estimator,
		publisher: publisher,
		logger:    logger,
	}
}

// Join admits a requester into a queue. Preconditions are checked in
// order and each failure is distinct: the queue must exist, it must be
// OPEN, a TOKEN_BASED queue's secret must match exactly, and the
// requester must not already hold an active ticket. The returned ticket
// carries the wait estimate computed in the same call.
func (g *Gate) Join(queueID int64, userID *int64, accessToken *string) (*JoinedTicket, error) {
	q, err := g.store.GetQueue(queueID)
	if err != nil {
		return nil, err
	}

	if q.Status != StatusOpen {
		return nil, errors.NewForbidden("queue %d is %s and not accepting joins", queueID, q.Status)
	}

	// GENERAL and PRIORITY queues ignore any supplied token.
	if q.Type == TypeTokenBased {
		if accessToken == nil || q.AccessToken == nil || *accessToken != *q.AccessToken {
			return nil, errors.NewForbidden("invalid access token for queue %d", queueID)
		}
	}

	joinedAt := time.Now().UTC()
	ticket, err := g.store.CreateTicket(queueID, userID, newJoinHash(userID, queueID, joinedAt), joinedAt)
	if err != nil {
		return nil, err
	}

	estimate, avgWait, err := g.estimator.EstimateWait(queueID, ticket.TokenNumber)
	if err != nil {
		// The ticket is committed; a failed estimate degrades the
		// response, it does not undo the join.
		if g.logger != nil {
			g.logger.Errorw("Failed to estimate wait after join",
				"queue_id", queueID,
				"ticket_id", ticket.ID,
				"error", err,
			)
		}
		estimate, avgWait = nil, nil
	}

	g.publish(ticket, estimate, avgWait)

	if g.logger != nil {
		g.logger.Infow("Ticket joined",
			"queue_id", queueID,
			"ticket_id", ticket.ID,
			"token_number", ticket.TokenNumber,
		)
	}

	return &JoinedTicket{
		Ticket:            *ticket,
		EstimatedWaitTime: estimate,
		AverageWaitTime:   avgWait,
	}, nil
}

func (g *Gate) publish(ticket *Ticket, estimate *int, avgWait *float64) {
	if g.publisher == nil {
		return
	}

	var estimateMinutes *float64
	if estimate != nil {
		m := float64(*estimate)
		estimateMinutes = &m
	}

	err := g.publisher.Publish(bus.EventTicketJoined, bus.TicketJoinedPayload{
		QueueID:           ticket.QueueID,
		TicketID:          ticket.ID,
		TokenNumber:       ticket.TokenNumber,
		JoinedAt:          ticket.JoinedAt,
		EstimatedWaitTime: estimateMinutes,
		AverageWaitTime:   avgWait,
	})
	if err != nil && g.logger != nil {
		g.logger.Errorw("Failed to publish join event",
			"queue_id", ticket.QueueID,
			"ticket_id", ticket.ID,
			"error", err,
		)
	}
}

// newJoinHash mints the single-use join receipt: a hash over the
// requester, the queue, the join instant, and a random nonce.
func newJoinHash(userID *int64, queueID int64, joinedAt time.Time) string {
	requester := "anonymous"
	if userID != nil {
		requester = fmt.Sprintf("%d", *userID)
	}
	seed := fmt.Sprintf("%s-%d-%d-%s", requester, queueID, joinedAt.UnixNano(), uuid.NewString())
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
