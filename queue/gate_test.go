package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waitline/waitline/bus"
	"github.com/waitline/waitline/errors"
)

func TestGate_Join_EmptyOpenQueue(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	joined, err := env.gate.Join(q.ID, int64Ptr(1), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, joined.TokenNumber)
	assert.Equal(t, TicketWaiting, joined.Status)
	assert.Nil(t, joined.EstimatedWaitTime, "no service history yet")
	assert.Nil(t, joined.WaitingTime)
	assert.NotEmpty(t, joined.JoinHash)
	assert.False(t, joined.JoinedAt.IsZero())

	events := env.publisher.captured()
	require.Len(t, events, 1)
	assert.Equal(t, bus.EventTicketJoined, events[0].Type)
	payload, ok := events[0].Payload.(bus.TicketJoinedPayload)
	require.True(t, ok)
	assert.Equal(t, q.ID, payload.QueueID)
	assert.Equal(t, joined.ID, payload.TicketID)
	assert.Equal(t, 1, payload.TokenNumber)
}

func TestGate_Join_QueueNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.gate.Join(999, int64Ptr(1), nil)
	assert.True(t, errors.IsNotFound(err), "got %v", err)
}

func TestGate_Join_QueueNotOpen(t *testing.T) {
	env := newTestEnv(t)

	for _, status := range []Status{StatusPaused, StatusClosed} {
		q := env.createQueue(t, CreateParams{Name: "closed-lane", Status: status})

		_, err := env.gate.Join(q.ID, int64Ptr(1), nil)
		assert.True(t, errors.IsForbidden(err), "status %s: got %v", status, err)
	}
}

func TestGate_Join_TokenBased(t *testing.T) {
	env := newTestEnv(t)
	q := env.createQueue(t, CreateParams{Name: "vip", Type: TypeTokenBased})
	require.NotNil(t, q.AccessToken)

	t.Run("missing token rejected", func(t *testing.T) {
		_, err := env.gate.Join(q.ID, int64Ptr(1), nil)
		assert.True(t, errors.IsForbidden(err), "got %v", err)
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		_, err := env.gate.Join(q.ID, int64Ptr(1), strPtr("nope1234"))
		assert.True(t, errors.IsForbidden(err), "got %v", err)
	})

	t.Run("correct token admits", func(t *testing.T) {
		joined, err := env.gate.Join(q.ID, int64Ptr(1), q.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, 1, joined.TokenNumber)
	})
}

func TestGate_Join_GeneralIgnoresToken(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	joined, err := env.gate.Join(q.ID, int64Ptr(1), strPtr("whatever"))
	require.NoError(t, err)
	assert.Equal(t, 1, joined.TokenNumber)
}

func TestGate_Join_DuplicateActiveRejected(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	first, err := env.gate.Join(q.ID, int64Ptr(7), nil)
	require.NoError(t, err)

	_, err = env.gate.Join(q.ID, int64Ptr(7), nil)
	assert.True(t, errors.IsConflict(err), "got %v", err)

	// Another user is unaffected.
	_, err = env.gate.Join(q.ID, int64Ptr(8), nil)
	require.NoError(t, err)

	// Finishing the first ticket frees the user to rejoin.
	_, err = env.lifecycle.Transition(q.ID, first.ID, TicketBeingServed)
	require.NoError(t, err)
	_, err = env.lifecycle.Transition(q.ID, first.ID, TicketCompleted)
	require.NoError(t, err)

	again, err := env.gate.Join(q.ID, int64Ptr(7), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, again.TokenNumber)
}

func TestGate_Join_AnonymousRequesters(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	// Anonymous joins cannot be attributed, so several may coexist.
	first, err := env.gate.Join(q.ID, nil, nil)
	require.NoError(t, err)
	second, err := env.gate.Join(q.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, first.TokenNumber)
	assert.Equal(t, 2, second.TokenNumber)
}

func TestGate_Join_TokenNumbersNeverReused(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	first, err := env.gate.Join(q.ID, int64Ptr(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, first.TokenNumber)

	second, err := env.gate.Join(q.ID, int64Ptr(2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, second.TokenNumber)

	// Removing the first ticket must not free its number.
	require.NoError(t, env.lifecycle.Remove(q.ID, first.ID))

	third, err := env.gate.Join(q.ID, int64Ptr(3), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, third.TokenNumber)
}

func TestGate_Join_JoinHashesUnique(t *testing.T) {
	env := newTestEnv(t)
	q := env.openQueue(t)

	seen := map[string]bool{}
	for i := int64(1); i <= 20; i++ {
		joined, err := env.gate.Join(q.ID, int64Ptr(i), nil)
		require.NoError(t, err)
		assert.False(t, seen[joined.JoinHash], "duplicate join hash %s", joined.JoinHash)
		seen[joined.JoinHash] = true
	}
}

func TestGate_Join_TokenCounterIsPerQueue(t *testing.T) {
	env := newTestEnv(t)
	first := env.createQueue(t, CreateParams{Name: "lane-a"})
	second := env.createQueue(t, CreateParams{Name: "lane-b"})

	a, err := env.gate.Join(first.ID, int64Ptr(1), nil)
	require.NoError(t, err)
	b, err := env.gate.Join(second.ID, int64Ptr(1), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, a.TokenNumber)
	assert.Equal(t, 1, b.TokenNumber)
}
