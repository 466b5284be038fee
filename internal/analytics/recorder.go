package analytics

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"go-upstream-guard/internal/interfaces"
	"go-upstream-guard/internal/metrics"
	"go-upstream-guard/internal/models"
)

// Collection holds one counter document per event and UTC day
const Collection = "analytics"

// Event names a counted occurrence
type Event string

const (
	EventPhotoServed   Event = "photo_served"
	EventPlaceLookup   Event = "place_lookup"
	EventScoreComputed Event = "score_computed"
)

type counter struct {
	Event string `json:"event"`
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// Recorder counts events on a background worker. Recording never blocks the
// caller: events are dropped when the buffer is full or the recorder is
// closed, and write failures are only logged. A nil Recorder records nothing.
type Recorder struct {
	store  interfaces.DocumentStore
	clock  clock.Clock
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	events chan Event
	done   chan struct{}
}

// NewRecorder creates a recorder buffering up to bufferSize events and starts its worker
func NewRecorder(store interfaces.DocumentStore, bufferSize int, clk clock.Clock, logger *zap.Logger) *Recorder {
	r := &Recorder{
		store:  store,
		clock:  clk,
		logger: logger,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// Record counts one occurrence of event
func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		metrics.RecordAnalyticsDropped()
		return
	}

	select {
	case r.events <- event:
	default:
		metrics.RecordAnalyticsDropped()
	}
}

// Close stops accepting events and waits until the buffered ones are written or ctx ends
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for event := range r.events {
		if err := r.write(event); err != nil {
			r.logger.Warn("Failed to record analytics event",
				zap.String("event", string(event)),
				zap.Error(err))
		}
	}
}

func (r *Recorder) write(event Event) error {
	day := r.clock.Now().UTC().Format("2006-01-02")
	id := string(event) + ":" + day

	return r.store.RunTransaction(context.Background(), func(ctx context.Context, tx interfaces.Transaction) error {
		current := counter{Event: string(event), Day: day}

		doc, found, err := tx.Get(Collection, id)
		if err != nil {
			return err
		}
		if found {
			if err := doc.Decode(&current); err != nil {
				r.logger.Warn("Resetting malformed analytics counter", zap.String("id", id), zap.Error(err))
				current = counter{Event: string(event), Day: day}
			}
		}

		current.Count++
		updated, err := models.ToDocument(current)
		if err != nil {
			return err
		}
		tx.Set(Collection, id, updated, false)
		return nil
	})
}
