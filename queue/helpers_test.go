package queue

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	waitlinetest "github.com/waitline/waitline/internal/testing"
)

// capturedEvent records one Publish call made by the code under test.
type capturedEvent struct {
	Type    string
	Payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *fakePublisher) Publish(eventType string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{Type: eventType, Payload: payload})
	return nil
}

func (p *fakePublisher) captured() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedEvent(nil), p.events...)
}

type testEnv struct {
	db        *sql.DB
	store     *Store
	estimator *Estimator
	gate      *Gate
	lifecycle *Lifecycle
	manager   *Manager
	history   *History
	publisher *fakePublisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := waitlinetest.CreateTestDB(t)
	store := NewStore(db)
	estimator := NewEstimator(store, DefaultLookback)
	publisher := &fakePublisher{}
	return &testEnv{
		db:        db,
		store:     store,
		estimator: estimator,
		gate:      NewGate(store, estimator, publisher, nil),
		lifecycle: NewLifecycle(store, publisher, nil),
		manager:   NewManager(store, nil),
		history:   NewHistory(store, DefaultLookback),
		publisher: publisher,
	}
}

func (env *testEnv) createQueue(t *testing.T, params CreateParams) *Queue {
	t.Helper()

	q, err := env.manager.Create(params)
	require.NoError(t, err)
	return q
}

func (env *testEnv) openQueue(t *testing.T) *Queue {
	t.Helper()
	return env.createQueue(t, CreateParams{Name: "walk-ins"})
}

// insertTicket writes a ticket row directly, for fixtures that need
// specific timestamps or statuses.
func (env *testEnv) insertTicket(t *testing.T, queueID int64, token int, status TicketStatus, joined time.Time, called, served *time.Time, waiting *float64) int64 {
	t.Helper()

	result, err := env.db.Exec(`
		INSERT INTO tickets (queue_id, token_number, status, joined_at, called_at, served_at, waiting_time, join_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		queueID, token, status, joined, called, served, waiting, newJoinHash(nil, queueID, joined),
	)
	require.NoError(t, err)
	id, err := result.LastInsertId()
	require.NoError(t, err)
	return id
}

func (env *testEnv) ticketCount(t *testing.T, queueID int64) int {
	t.Helper()

	var count int
	require.NoError(t, env.db.QueryRow("SELECT COUNT(*) FROM tickets WHERE queue_id = ?", queueID).Scan(&count))
	return count
}

func (env *testEnv) historyCount(t *testing.T, queueID int64) int {
	t.Helper()

	var count int
	require.NoError(t, env.db.QueryRow("SELECT COUNT(*) FROM queue_history WHERE queue_id = ?", queueID).Scan(&count))
	return count
}

func int64Ptr(v int64) *int64        { return &v }
func strPtr(v string) *string        { return &v }
func timePtr(v time.Time) *time.Time { return &v }
func floatPtr(v float64) *float64    { return &v }
func typePtr(v Type) *Type           { return &v }
func statusPtr(v Status) *Status     { return &v }
