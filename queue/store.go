package queue

import (
	"database/sql"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/waitline/waitline/errors"
)

// Store handles persistence of queues, tickets, and the history archive
type Store struct {
	db *sql.DB
}

// NewStore creates a new queue store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const queueColumns = "id, name, queue_type, status, max_capacity, access_token, owner_user_id, owner_service_id, owner_org_id, created_at"

// CreateQueue inserts a new queue and fills in its assigned id.
func (s *Store) CreateQueue(q *Queue) error {
	q.CreatedAt = time.Now().UTC()
	result, err := s.db.Exec(`
		INSERT INTO queues (name, queue_type, status, max_capacity, access_token, owner_user_id, owner_service_id, owner_org_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Name, q.Type, q.Status, q.MaxCapacity, q.AccessToken,
		q.OwnerUserID, q.OwnerServiceID, q.OwnerOrgID, q.CreatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create queue %q", q.Name)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read queue id")
	}
	q.ID = id
	return nil
}

// GetQueue retrieves a queue by id.
func (s *Store) GetQueue(id int64) (*Queue, error) {
	row := s.db.QueryRow("SELECT "+queueColumns+" FROM queues WHERE id = ?", id)
	q, err := scanQueue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("queue %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get queue %d", id)
	}
	return q, nil
}

// ListQueues returns all queues ordered by creation.
func (s *Store) ListQueues() ([]*Queue, error) {
	rows, err := s.db.Query("SELECT " + queueColumns + " FROM queues ORDER BY id ASC")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list queues")
	}
	defer rows.Close()

	var queues []*Queue
	for rows.Next() {
		q, err := scanQueue(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan queue")
		}
		queues = append(queues, q)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate queues")
	}
	return queues, nil
}

// UpdateQueue persists the queue's mutable fields.
func (s *Store) UpdateQueue(q *Queue) error {
	result, err := s.db.Exec(`
		UPDATE queues SET name = ?, queue_type = ?, status = ?, max_capacity = ?, access_token = ?
		WHERE id = ?`,
		q.Name, q.Type, q.Status, q.MaxCapacity, q.AccessToken, q.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update queue %d", q.ID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if affected == 0 {
		return errors.NewNotFound("queue %d not found", q.ID)
	}
	return nil
}

// DeleteQueue removes a queue; its tickets go with it via cascade.
func (s *Store) DeleteQueue(id int64) error {
	result, err := s.db.Exec("DELETE FROM queues WHERE id = ?", id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete queue %d", id)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if affected == 0 {
		return errors.NewNotFound("queue %d not found", id)
	}
	return nil
}

const ticketColumns = "id, queue_id, user_id, token_number, status, joined_at, called_at, served_at, waiting_time, join_hash"

// CreateTicket admits a requester in a single transaction: the duplicate
// check, the token claim, and the insert are atomic with respect to
// concurrent joins on the same queue. The partial unique index on active
// tickets backstops the check.
func (s *Store) CreateTicket(queueID int64, userID *int64, joinHash string, joinedAt time.Time) (*Ticket, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin join transaction")
	}
	defer tx.Rollback()

	if userID != nil {
		var exists bool
		err := tx.QueryRow(`
			SELECT EXISTS(
				SELECT 1 FROM tickets
				WHERE queue_id = ? AND user_id = ? AND status IN ('WAITING', 'BEING_SERVED')
			)`, queueID, *userID,
		).Scan(&exists)
		if err != nil {
			return nil, errors.Wrap(err, "failed to check for active ticket")
		}
		if exists {
			return nil, errors.NewConflict("user %d already holds an active ticket on queue %d", *userID, queueID)
		}
	}

	// Claim the next token. The counter only ever increases, so numbers
	// are never reused even after removals.
	if _, err := tx.Exec("UPDATE queues SET next_token = next_token + 1 WHERE id = ?", queueID); err != nil {
		return nil, errors.Wrap(err, "failed to claim token number")
	}
	var tokenNumber int
	if err := tx.QueryRow("SELECT next_token - 1 FROM queues WHERE id = ?", queueID).Scan(&tokenNumber); err != nil {
		return nil, errors.Wrap(err, "failed to read token number")
	}

	result, err := tx.Exec(`
		INSERT INTO tickets (queue_id, user_id, token_number, status, joined_at, join_hash)
		VALUES (?, ?, ?, ?, ?, ?)`,
		queueID, userID, tokenNumber, TicketWaiting, joinedAt, joinHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.NewConflict("requester already holds an active ticket on queue %d", queueID)
		}
		return nil, errors.Wrap(err, "failed to insert ticket")
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ticket id")
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit join")
	}

	return &Ticket{
		ID:          id,
		QueueID:     queueID,
		UserID:      userID,
		TokenNumber: tokenNumber,
		Status:      TicketWaiting,
		JoinedAt:    joinedAt,
		JoinHash:    joinHash,
	}, nil
}

// GetTicket retrieves a ticket scoped to its queue.
func (s *Store) GetTicket(queueID, ticketID int64) (*Ticket, error) {
	row := s.db.QueryRow("SELECT "+ticketColumns+" FROM tickets WHERE id = ? AND queue_id = ?", ticketID, queueID)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("ticket %d not found on queue %d", ticketID, queueID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get ticket %d", ticketID)
	}
	return t, nil
}

// ListTickets returns a queue's tickets in token order, optionally
// filtered by status.
func (s *Store) ListTickets(queueID int64, status *TicketStatus) ([]*Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM tickets WHERE queue_id = ?"
	args := []any{queueID}
	if status != nil {
		query += " AND status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY token_number ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list tickets for queue %d", queueID)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan ticket")
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate tickets")
	}
	return tickets, nil
}

// UpdateTicketStatus applies a guarded status update: the row changes
// only if it is still in the expected status. Returns false when the
// guard missed, meaning a concurrent transition got there first.
func (s *Store) UpdateTicketStatus(ticketID int64, from, to TicketStatus, calledAt, servedAt *time.Time, waitingTime *float64) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE tickets SET
			status = ?,
			called_at = COALESCE(?, called_at),
			served_at = COALESCE(?, served_at),
			waiting_time = COALESCE(?, waiting_time)
		WHERE id = ? AND status = ?`,
		to, calledAt, servedAt, waitingTime, ticketID, from,
	)
	if err != nil {
		return false, errors.Wrapf(err, "failed to transition ticket %d to %s", ticketID, to)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to read rows affected")
	}
	return affected > 0, nil
}

// ArchiveAndDeleteTicket snapshots a ticket into the history archive and
// deletes the live row, in one transaction. A non-terminal ticket is
// force-completed first so every removal leaves exactly one record. The
// returned ticket reflects the forced transition.
func (s *Store) ArchiveAndDeleteTicket(queueID, ticketID int64, removedAt time.Time) (*Ticket, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin removal transaction")
	}
	defer tx.Rollback()

	row := tx.QueryRow("SELECT "+ticketColumns+" FROM tickets WHERE id = ? AND queue_id = ?", ticketID, queueID)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("ticket %d not found on queue %d", ticketID, queueID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load ticket %d", ticketID)
	}

	if !t.Status.Terminal() {
		served := removedAt
		waiting := removedAt.Sub(t.JoinedAt).Minutes()
		t.Status = TicketCompleted
		t.ServedAt = &served
		t.WaitingTime = &waiting
	}

	archivedWaiting := 0.0
	if t.WaitingTime != nil {
		archivedWaiting = *t.WaitingTime
	}

	if _, err := tx.Exec(`
		INSERT INTO queue_history (queue_id, user_id, joined_at, removed_at, waiting_time)
		VALUES (?, ?, ?, ?, ?)`,
		t.QueueID, t.UserID, t.JoinedAt, removedAt, archivedWaiting,
	); err != nil {
		return nil, errors.Wrapf(err, "failed to archive ticket %d", ticketID)
	}

	if _, err := tx.Exec("DELETE FROM tickets WHERE id = ?", ticketID); err != nil {
		return nil, errors.Wrapf(err, "failed to delete ticket %d", ticketID)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit removal")
	}
	return t, nil
}

// ServiceSample is one completed serving with both timestamps set.
type ServiceSample struct {
	CalledAt time.Time
	ServedAt time.Time
}

// ServiceSamples returns completed servings whose called_at falls after
// the cutoff, for service-time averaging.
func (s *Store) ServiceSamples(queueID int64, since time.Time) ([]ServiceSample, error) {
	rows, err := s.db.Query(`
		SELECT called_at, served_at FROM tickets
		WHERE queue_id = ? AND status = 'COMPLETED'
			AND called_at IS NOT NULL AND served_at IS NOT NULL
			AND called_at > ?`,
		queueID, since,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load service samples for queue %d", queueID)
	}
	defer rows.Close()

	var samples []ServiceSample
	for rows.Next() {
		var sample ServiceSample
		if err := rows.Scan(&sample.CalledAt, &sample.ServedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan service sample")
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate service samples")
	}
	return samples, nil
}

// AverageWaitingTime returns the mean stored waiting_time over tickets
// joined after the cutoff, or nil when no ticket qualifies.
func (s *Store) AverageWaitingTime(queueID int64, since time.Time) (*float64, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT AVG(waiting_time) FROM tickets
		WHERE queue_id = ? AND joined_at > ? AND waiting_time IS NOT NULL`,
		queueID, since,
	).Scan(&avg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to average waiting time for queue %d", queueID)
	}
	if !avg.Valid {
		return nil, nil
	}
	return &avg.Float64, nil
}

// CountWaitingAhead counts WAITING tickets with a smaller token number.
func (s *Store) CountWaitingAhead(queueID int64, tokenNumber int) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM tickets WHERE queue_id = ? AND status = 'WAITING' AND token_number < ?",
		queueID, tokenNumber,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count waiting tickets for queue %d", queueID)
	}
	return count, nil
}

// CountBeingServed counts tickets currently at a service point.
func (s *Store) CountBeingServed(queueID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM tickets WHERE queue_id = ? AND status = 'BEING_SERVED'",
		queueID,
	).Scan(&count)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to count served tickets for queue %d", queueID)
	}
	return count, nil
}

// ListHistory returns a queue's archive, most recently removed first.
func (s *Store) ListHistory(queueID int64) ([]*HistoryRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, queue_id, user_id, joined_at, removed_at, waiting_time
		FROM queue_history WHERE queue_id = ? ORDER BY removed_at DESC, id DESC`,
		queueID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list history for queue %d", queueID)
	}
	defer rows.Close()

	var records []*HistoryRecord
	for rows.Next() {
		var r HistoryRecord
		var userID sql.NullInt64
		if err := rows.Scan(&r.ID, &r.QueueID, &userID, &r.JoinedAt, &r.RemovedAt, &r.WaitingTime); err != nil {
			return nil, errors.Wrap(err, "failed to scan history record")
		}
		if userID.Valid {
			r.UserID = &userID.Int64
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate history")
	}
	return records, nil
}

// HistoryStats aggregates archived waiting times for records removed
// after the cutoff.
func (s *Store) HistoryStats(queueID int64, since time.Time) (*HistoryStats, error) {
	var avg, min, max sql.NullFloat64
	var count int
	err := s.db.QueryRow(`
		SELECT AVG(waiting_time), MIN(waiting_time), MAX(waiting_time), COUNT(*)
		FROM queue_history WHERE queue_id = ? AND removed_at > ?`,
		queueID, since,
	).Scan(&avg, &min, &max, &count)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to aggregate history for queue %d", queueID)
	}

	stats := &HistoryStats{TotalServed: count}
	if avg.Valid {
		stats.AverageWaitTime = &avg.Float64
	}
	if min.Valid {
		stats.MinWaitTime = &min.Float64
	}
	if max.Valid {
		stats.MaxWaitTime = &max.Float64
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueue(row rowScanner) (*Queue, error) {
	var q Queue
	var maxCapacity sql.NullInt64
	var accessToken sql.NullString
	var ownerUser, ownerService, ownerOrg sql.NullInt64
	err := row.Scan(
		&q.ID, &q.Name, &q.Type, &q.Status,
		&maxCapacity, &accessToken,
		&ownerUser, &ownerService, &ownerOrg,
		&q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if maxCapacity.Valid {
		capacity := int(maxCapacity.Int64)
		q.MaxCapacity = &capacity
	}
	if accessToken.Valid {
		q.AccessToken = &accessToken.String
	}
	if ownerUser.Valid {
		q.OwnerUserID = &ownerUser.Int64
	}
	if ownerService.Valid {
		q.OwnerServiceID = &ownerService.Int64
	}
	if ownerOrg.Valid {
		q.OwnerOrgID = &ownerOrg.Int64
	}
	return &q, nil
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var t Ticket
	var userID sql.NullInt64
	var calledAt, servedAt sql.NullTime
	var waitingTime sql.NullFloat64
	err := row.Scan(
		&t.ID, &t.QueueID, &userID, &t.TokenNumber, &t.Status,
		&t.JoinedAt, &calledAt, &servedAt, &waitingTime, &t.JoinHash,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		t.UserID = &userID.Int64
	}
	if calledAt.Valid {
		t.CalledAt = &calledAt.Time
	}
	if servedAt.Valid {
		t.ServedAt = &servedAt.Time
	}
	if waitingTime.Valid {
		t.WaitingTime = &waitingTime.Float64
	}
	return &t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
