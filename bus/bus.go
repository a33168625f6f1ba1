package bus

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/waitline/waitline/errors"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
	// fanoutConsumer is the cursor name of the in-process delivery loop
	fanoutConsumer = "fanout"
	// pollBatchSize caps how many events one poll drains from the log
	pollBatchSize = 256
)

// Bus appends events to the durable log and fans them out to subscribers.
type Bus struct {
	store        *Store
	logger       *zap.SugaredLogger
	pollInterval time.Duration
	sendTimeout  time.Duration

	mu          sync.RWMutex
	subscribers map[int64]chan *Event
	nextSubID   int64

	nudge  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bus over the given database.
func New(db *sql.DB, logger *zap.SugaredLogger, pollInterval, sendTimeout time.Duration) *Bus {
	return &Bus{
		store:        NewStore(db),
		logger:       logger,
		pollInterval: pollInterval,
		sendTimeout:  sendTimeout,
		subscribers:  make(map[int64]chan *Event),
		nudge:        make(chan struct{}, 1),
	}
}

// Publish marshals the payload and appends the event to the log. The event
// is delivered asynchronously by the consumer loop; Publish never blocks on
// slow subscribers.
func (b *Bus) Publish(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s payload", eventType)
	}

	id, err := b.store.Append(eventType, data)
	if err != nil {
		return err
	}

	if b.logger != nil {
		b.logger.Debugw("Event published",
			"event_type", eventType,
			"event_id", id,
		)
	}

	// Wake the consumer loop without waiting for the next tick.
	select {
	case b.nudge <- struct{}{}:
	default:
	}

	return nil
}

// Subscribe registers a new subscriber and returns its id and channel.
// The channel is buffered; a subscriber that stays full past the send
// timeout misses events (they remain in the log).
func (b *Bus) Subscribe() (int64, <-chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	id := b.nextSubID
	ch := make(chan *Event, SubscriberChannelBufferSize)
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Start launches the consumer loop. It resumes from the persisted cursor,
// so events published while the bus was down are delivered on startup.
func (b *Bus) Start(ctx context.Context) error {
	if b.done != nil {
		return errors.New("bus already started")
	}

	cursor, err := b.store.Cursor(fanoutConsumer)
	if err != nil {
		return err
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	if b.logger != nil {
		b.logger.Infow("Event bus started",
			"cursor", cursor,
			"poll_interval", b.pollInterval,
		)
	}

	go b.run(ctx, cursor)
	return nil
}

// Stop halts the consumer loop and waits for it to exit. Subscriber
// channels stay open; events published after Stop are delivered on the
// next Start.
func (b *Bus) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
	b.cancel = nil
	b.done = nil
}

func (b *Bus) run(ctx context.Context, cursor int64) {
	defer close(b.done)

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		cursor = b.drain(cursor)

		select {
		case <-ctx.Done():
			return
		case <-b.nudge:
		case <-ticker.C:
		}
	}
}

// drain delivers every event past the cursor and returns the new cursor.
// The cursor is persisted only after a batch has been handed to all
// subscribers, so a crash mid-batch redelivers rather than drops.
func (b *Bus) drain(cursor int64) int64 {
	for {
		events, err := b.store.ListAfter(cursor, pollBatchSize)
		if err != nil {
			if b.logger != nil {
				b.logger.Errorw("Failed to poll event log", "error", err)
			}
			return cursor
		}
		if len(events) == 0 {
			return cursor
		}

		for _, event := range events {
			b.deliver(event)
			cursor = event.ID
		}

		if err := b.store.SetCursor(fanoutConsumer, cursor); err != nil && b.logger != nil {
			b.logger.Errorw("Failed to persist cursor",
				"cursor", cursor,
				"error", err,
			)
		}
	}
}

// deliver hands one event to every subscriber. The read lock is held for
// the duration so Unsubscribe cannot close a channel mid-send.
func (b *Bus) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		case <-time.After(b.sendTimeout):
			if b.logger != nil {
				b.logger.Warnw("Subscriber too slow, skipping event",
					"event_type", event.Type,
					"event_id", event.ID,
				)
			}
		}
	}
}
