package queue

import (
	"math"
	"time"
)

// DefaultLookback is the trailing window over which historical averages
// are computed when no other window is configured.
const DefaultLookback = 24 * time.Hour

// Estimator derives live and historical wait estimates from stored
// tickets. A missing estimate is a normal cold-start condition, reported
// as nil, never as an error.
type Estimator struct {
	store    *Store
	lookback time.Duration
}

// NewEstimator creates an estimator with the given lookback window.
// A non-positive lookback falls back to the default.
func NewEstimator(store *Store, lookback time.Duration) *Estimator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Estimator{store: store, lookback: lookback}
}

// AverageServiceTime returns the mean minutes between called_at and
// served_at over completed tickets called within the lookback window,
// or nil when no ticket qualifies.
func (e *Estimator) AverageServiceTime(queueID int64) (*float64, error) {
	samples, err := e.store.ServiceSamples(queueID, time.Now().UTC().Add(-e.lookback))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	var total float64
	for _, sample := range samples {
		total += sample.ServedAt.Sub(sample.CalledAt).Minutes()
	}
	avg := total / float64(len(samples))
	return &avg, nil
}

// AverageWaitingTime returns the mean stored waiting_time in minutes
// over tickets joined within the lookback window, or nil when none
// qualify.
func (e *Estimator) AverageWaitingTime(queueID int64) (*float64, error) {
	return e.store.AverageWaitingTime(queueID, time.Now().UTC().Add(-e.lookback))
}

// EstimateWait predicts the wait in whole minutes for the holder of the
// given token number. Without a service-time history the estimate is nil
// and only the historical average is reported. Rounding is half away
// from zero. The server count never divides by zero: an idle queue
// counts as one server.
func (e *Estimator) EstimateWait(queueID int64, tokenNumber int) (*int, *float64, error) {
	avgWait, err := e.AverageWaitingTime(queueID)
	if err != nil {
		return nil, nil, err
	}

	avgService, err := e.AverageServiceTime(queueID)
	if err != nil {
		return nil, nil, err
	}
	if avgService == nil {
		return nil, avgWait, nil
	}

	peopleAhead, err := e.store.CountWaitingAhead(queueID, tokenNumber)
	if err != nil {
		return nil, nil, err
	}

	activeServers, err := e.store.CountBeingServed(queueID)
	if err != nil {
		return nil, nil, err
	}
	if activeServers < 1 {
		activeServers = 1
	}

	estimate := int(math.Round(float64(peopleAhead) / float64(activeServers) * *avgService))
	return &estimate, avgWait, nil
}
