package queue

import "time"

// History reads the immutable archive written on ticket removal.
// Records are created by the removal path only; nothing here mutates.
type History struct {
	store    *Store
	lookback time.Duration
}

// NewHistory creates a history reader with the given lookback window.
// A non-positive lookback falls back to the default.
func NewHistory(store *Store, lookback time.Duration) *History {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &History{store: store, lookback: lookback}
}

// List returns the queue's archive, most recently removed first.
func (h *History) List(queueID int64) ([]*HistoryRecord, error) {
	return h.store.ListHistory(queueID)
}

// Stats aggregates average, min, and max waiting time plus the served
// count over records removed within the lookback window. A non-positive
// lookback uses the configured window.
func (h *History) Stats(queueID int64, lookback time.Duration) (*HistoryStats, error) {
	if lookback <= 0 {
		lookback = h.lookback
	}
	return h.store.HistoryStats(queueID, time.Now().UTC().Add(-lookback))
}
