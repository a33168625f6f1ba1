package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	waitlinetest "github.com/waitline/waitline/internal/testing"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()

	db := waitlinetest.CreateTestDB(t)
	b := New(db, nil, 10*time.Millisecond, 50*time.Millisecond)
	require.NoError(t, b.Start(context.Background()))
	t.Cleanup(b.Stop)
	return b
}

func collect(t *testing.T, ch <-chan *Event, n int) []*Event {
	t.Helper()

	events := make([]*Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case e := <-ch:
			events = append(events, e)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d of %d", len(events), n)
		}
	}
	return events
}

func TestBus_PublishDelivers(t *testing.T) {
	b := newTestBus(t)

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	err := b.Publish(EventTicketJoined, TicketJoinedPayload{
		QueueID:     1,
		TicketID:    42,
		TokenNumber: 7,
		JoinedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	events := collect(t, ch, 1)
	assert.Equal(t, EventTicketJoined, events[0].Type)

	var p TicketJoinedPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &p))
	assert.Equal(t, int64(1), p.QueueID)
	assert.Equal(t, int64(42), p.TicketID)
	assert.Equal(t, 7, p.TokenNumber)
	assert.Nil(t, p.EstimatedWaitTime)
}

func TestBus_PreservesPublishOrder(t *testing.T) {
	b := newTestBus(t)

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	types := []string{EventTicketJoined, EventTicketStatusChanged, EventTicketRemoved}
	for i, eventType := range types {
		require.NoError(t, b.Publish(eventType, TicketRemovedPayload{QueueID: 1, TicketID: int64(i)}))
	}

	events := collect(t, ch, len(types))
	for i, e := range events {
		assert.Equal(t, types[i], e.Type)
		if i > 0 {
			assert.Greater(t, e.ID, events[i-1].ID, "log ids must be ascending")
		}
	}
}

func TestBus_FanoutToAllSubscribers(t *testing.T) {
	b := newTestBus(t)

	id1, ch1 := b.Subscribe()
	defer b.Unsubscribe(id1)
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id2)

	require.NoError(t, b.Publish(EventTicketRemoved, TicketRemovedPayload{QueueID: 1, TicketID: 9}))

	e1 := collect(t, ch1, 1)[0]
	e2 := collect(t, ch2, 1)[0]
	assert.Equal(t, e1.ID, e2.ID)
}

func TestBus_UnsubscribedReceivesNothing(t *testing.T) {
	b := newTestBus(t)

	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	require.NoError(t, b.Publish(EventTicketRemoved, TicketRemovedPayload{QueueID: 1, TicketID: 9}))

	// The channel is closed on unsubscribe, so a receive must not yield
	// a live event.
	select {
	case e, ok := <-ch:
		assert.False(t, ok, "expected closed channel, got event %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_ResumesFromCursor(t *testing.T) {
	db := waitlinetest.CreateTestDB(t)

	b := New(db, nil, 10*time.Millisecond, 50*time.Millisecond)

	// Published before the consumer starts: still delivered.
	require.NoError(t, b.Publish(EventTicketJoined, TicketJoinedPayload{QueueID: 1, TicketID: 1}))

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	require.NoError(t, b.Start(context.Background()))
	events := collect(t, ch, 1)
	assert.Equal(t, EventTicketJoined, events[0].Type)
	b.Stop()

	// Restart does not redeliver past the persisted cursor.
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id2)
	require.NoError(t, b.Start(context.Background()))
	defer b.Stop()

	select {
	case e := <-ch2:
		t.Fatalf("expected no redelivery, got %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBus_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newTestBus(t)

	// Fill the slow subscriber's buffer so further sends time out.
	slowID, _ := b.Subscribe()
	defer b.Unsubscribe(slowID)
	fastID, fast := b.Subscribe()
	defer b.Unsubscribe(fastID)

	total := SubscriberChannelBufferSize + 5
	for i := 0; i < total; i++ {
		require.NoError(t, b.Publish(EventTicketRemoved, TicketRemovedPayload{QueueID: 1, TicketID: int64(i)}))
	}

	events := collect(t, fast, SubscriberChannelBufferSize)
	assert.Len(t, events, SubscriberChannelBufferSize)
}

func TestStore_CursorRoundTrip(t *testing.T) {
	db := waitlinetest.CreateTestDB(t)
	store := NewStore(db)

	cursor, err := store.Cursor("fanout")
	require.NoError(t, err)
	assert.Equal(t, int64(0), cursor, "unknown consumer starts at the head")

	require.NoError(t, store.SetCursor("fanout", 12))
	require.NoError(t, store.SetCursor("fanout", 15))

	cursor, err = store.Cursor("fanout")
	require.NoError(t, err)
	assert.Equal(t, int64(15), cursor)
}
