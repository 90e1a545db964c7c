package tracklog

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sendergui/groundstation/events"
	"github.com/sendergui/groundstation/logging"
	"github.com/sendergui/groundstation/metrics"
)

const (
	maxBatch      = 64
	flushInterval = time.Second
)

type record struct {
	sample *Sample
	entry  *Entry
}

// Recorder queues records from the listener goroutines and writes them
// from Run. A full queue drops the record rather than stall the caller.
type Recorder struct {
	store   *Store
	queue   chan record
	dropped atomic.Uint64
	now     func() time.Time
	log     zerolog.Logger
}

func NewRecorder(store *Store, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		store: store,
		queue: make(chan record, buffer),
		now:   time.Now,
		log:   logging.Component("tracklog"),
	}
}

// RecordPosition queues one fix.
func (r *Recorder) RecordPosition(lat, lon float64) {
	r.enqueue(record{sample: &Sample{RecordedAt: r.now(), Latitude: lat, Longitude: lon}})
}

// RecordEvent queues a journal event.
func (r *Recorder) RecordEvent(e events.Event) {
	at := e.Timestamp
	if at.IsZero() {
		at = r.now()
	}
	r.enqueue(record{entry: &Entry{RecordedAt: at, Type: e.Type, Source: e.Source, Detail: e.Detail}})
}

func (r *Recorder) enqueue(rec record) {
	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		metrics.TrackRecords.WithLabelValues("dropped").Inc()
	}
}

// Dropped counts records lost to a full queue.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Run writes queued records until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch []Sample
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := r.store.InsertPositions(ctx, batch); err != nil {
			r.log.Error().Err(err).Int("count", len(batch)).Msg("failed to write positions")
			metrics.TrackRecords.WithLabelValues("error").Add(float64(len(batch)))
		} else {
			metrics.TrackRecords.WithLabelValues("ok").Add(float64(len(batch)))
		}
		batch = batch[:0]
	}
	write := func(ctx context.Context, rec record) {
		if rec.sample != nil {
			batch = append(batch, *rec.sample)
			if len(batch) >= maxBatch {
				flush(ctx)
			}
			return
		}
		if err := r.store.InsertEntry(ctx, *rec.entry); err != nil {
			r.log.Error().Err(err).Str("type", rec.entry.Type).Msg("failed to write event")
			metrics.TrackRecords.WithLabelValues("error").Inc()
			return
		}
		metrics.TrackRecords.WithLabelValues("ok").Inc()
	}

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case rec := <-r.queue:
					write(final, rec)
				default:
					flush(final)
					r.log.Info().Uint64("dropped", r.Dropped()).Msg("track log closed")
					return nil
				}
			}
		case rec := <-r.queue:
			write(ctx, rec)
		case <-ticker.C:
			flush(ctx)
		}
	}
}

// Summary reports the session and its record counts.
func (r *Recorder) Summary(ctx context.Context) (Summary, error) {
	positions, evts, err := r.store.Counts(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Session:   r.store.Session(),
		Path:      r.store.Path(),
		StartedAt: r.store.StartedAt(),
		Positions: positions,
		Events:    evts,
		Dropped:   r.Dropped(),
	}, nil
}

func (r *Recorder) Store() *Store { return r.store }
