package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitline/waitline/bus"
	"github.com/waitline/waitline/errors"
)

func TestLifecycle_Transition_WaitingToBeingServed(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)
	joined, err := env.gate.Join(q.ID, int64Ptr(1), nil)
	require.NoError(t, err)

	ticket, err := env.lifecycle.Transition(q.ID, joined.ID, TicketBeingServed)
	require.NoError(t, err)

	assert.Equal(t, TicketBeingServed, ticket.Status)
	require.NotNil(t, ticket.CalledAt)
	assert.Nil(t, ticket.ServedAt)
	require.NotNil(t, ticket.WaitingTime)
	assert.InDelta(t, ticket.CalledAt.Sub(ticket.JoinedAt).Minutes(), *ticket.WaitingTime, 1e-6)
}

func TestLifecycle_Transition_CompletedWaitingTime(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	// Backdate the join so the computed waiting time is observable.
	joined := time.Now().UTC().Add(-10 * time.Minute)
	id := env.insertTicket(t, q.ID, 1, TicketBeingServed, joined, timePtr(joined), nil, nil)

	ticket, err := env.lifecycle.Transition(q.ID, id, TicketCompleted)
	require.NoError(t, err)

	assert.Equal(t, TicketCompleted, ticket.Status)
	require.NotNil(t, ticket.ServedAt)
	require.NotNil(t, ticket.WaitingTime)
	assert.InDelta(t, ticket.ServedAt.Sub(ticket.JoinedAt).Minutes(), *ticket.WaitingTime, 1e-6)
	assert.InDelta(t, 10, *ticket.WaitingTime, 0.5)
}

func TestLifecycle_Transition_WaitingToCancelled(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)
	joined, err := env.gate.Join(q.ID, int64Ptr(1), nil)
	require.NoError(t, err)

	ticket, err := env.lifecycle.Transition(q.ID, joined.ID, TicketCancelled)
	require.NoError(t, err)

	assert.Equal(t, TicketCancelled, ticket.Status)
	assert.Nil(t, ticket.CalledAt)
	assert.Nil(t, ticket.ServedAt)
	assert.Nil(t, ticket.WaitingTime)
}

func TestLifecycle_Transition_Illegal(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	cases := []struct {
		name string
		from TicketStatus
		to   TicketStatus
	}{
		{"waiting straight to completed", TicketWaiting, TicketCompleted},
		{"being served to cancelled", TicketBeingServed, TicketCancelled},
		{"being served back to waiting", TicketBeingServed, TicketWaiting},
		{"completed to being served", TicketCompleted, TicketBeingServed},
		{"cancelled to waiting", TicketCancelled, TicketWaiting},
	}

	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := time.Now().UTC()
			id := env.insertTicket(t, q.ID, i+1, tc.from, now, nil, nil, nil)

			_, err := env.lifecycle.Transition(q.ID, id, tc.to)
			assert.True(t, errors.IsInvalidTransition(err), "got %v", err)
		})
	}
}

func TestLifecycle_Transition_TicketNotFound(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	_, err := env.lifecycle.Transition(q.ID, 4242, TicketBeingServed)
	assert.True(t, errors.IsNotFound(err), "got %v", err)
}

func TestLifecycle_Transition_PublishesStatusChange(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)
	joined, err := env.gate.Join(q.ID, int64Ptr(1), nil)
	require.NoError(t, err)

	_, err = env.lifecycle.Transition(q.ID, joined.ID, TicketBeingServed)
	require.NoError(t, err)

	events := env.publisher.captured()
	require.Len(t, events, 2, "join event plus status change")
	assert.Equal(t, bus.EventTicketStatusChanged, events[1].Type)
	payload, ok := events[1].Payload.(bus.TicketStatusChangedPayload)
	require.True(t, ok)
	assert.Equal(t, string(TicketBeingServed), payload.Status)
	assert.Equal(t, joined.ID, payload.TicketID)
}

func TestLifecycle_Remove_WaitingTicket(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)
	joined, err := env.gate.Join(q.ID, int64Ptr(1), nil)
	require.NoError(t, err)

	require.Equal(t, 1, env.ticketCount(t, q.ID))
	require.Equal(t, 0, env.historyCount(t, q.ID))

	require.NoError(t, env.lifecycle.Remove(q.ID, joined.ID))

	// Exactly one archive record, zero live tickets.
	assert.Equal(t, 0, env.ticketCount(t, q.ID))
	assert.Equal(t, 1, env.historyCount(t, q.ID))

	records, err := env.history.List(q.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, q.ID, records[0].QueueID)
	assert.GreaterOrEqual(t, records[0].WaitingTime, 0.0)
	assert.False(t, records[0].RemovedAt.IsZero())

	events := env.publisher.captured()
	require.Len(t, events, 2)
	assert.Equal(t, bus.EventTicketRemoved, events[1].Type)
	payload, ok := events[1].Payload.(bus.TicketRemovedPayload)
	require.True(t, ok)
	assert.Equal(t, joined.ID, payload.TicketID)
	require.NotNil(t, payload.WaitingTime, "forced completion computes a waiting time")
}

func TestLifecycle_Remove_TerminalTicketKeepsWaitingTime(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	joined := time.Now().UTC().Add(-30 * time.Minute)
	served := joined.Add(12 * time.Minute)
	id := env.insertTicket(t, q.ID, 1, TicketCompleted, joined, timePtr(joined), timePtr(served), floatPtr(12))

	require.NoError(t, env.lifecycle.Remove(q.ID, id))

	records, err := env.history.List(q.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDelta(t, 12, records[0].WaitingTime, 1e-6)
}

func TestLifecycle_Remove_UnknownWaitingTimeArchivesZero(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	// A CANCELLED ticket never computed a waiting time.
	id := env.insertTicket(t, q.ID, 1, TicketCancelled, time.Now().UTC(), nil, nil, nil)

	require.NoError(t, env.lifecycle.Remove(q.ID, id))

	records, err := env.history.List(q.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Zero(t, records[0].WaitingTime)
}

func TestLifecycle_Remove_TicketNotFound(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	err := env.lifecycle.Remove(q.ID, 4242)
	assert.True(t, errors.IsNotFound(err), "got %v", err)
}
