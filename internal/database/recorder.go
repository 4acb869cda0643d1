package database

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RecorderConfig tunes batching of journal writes.
type RecorderConfig struct {
	// BatchSize is the maximum number of items to buffer before flushing.
	BatchSize int
	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultRecorderConfig commits every 500ms or 256 records, whichever
// comes first.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{BatchSize: 256, FlushInterval: 500 * time.Millisecond}
}

// RecorderMetrics counts journal throughput.
type RecorderMetrics struct {
	EventsWritten    int64 `json:"events_written"`
	FramesWritten    int64 `json:"frames_written"`
	Dropped          int64 `json:"dropped"`
	ErrorCount       int64 `json:"error_count"`
	BatchesCommitted int64 `json:"batches_committed"`
}

// Recorder buffers journal writes off the caller's goroutine. Enqueueing
// never blocks; when the buffer is full the record is dropped and counted.
type Recorder struct {
	store Store
	cfg   RecorderConfig
	log   *slog.Logger

	events chan *RegionEvent
	frames chan *FrameRecord

	metrics RecorderMetrics
	wg      sync.WaitGroup
	stop    chan struct{}
	once    sync.Once
}

// NewRecorder creates a recorder writing to store. Call Run to start it.
func NewRecorder(store Store, cfg RecorderConfig, log *slog.Logger) *Recorder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRecorderConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultRecorderConfig().FlushInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		store:  store,
		cfg:    cfg,
		log:    log,
		events: make(chan *RegionEvent, cfg.BatchSize*2),
		frames: make(chan *FrameRecord, cfg.BatchSize*2),
		stop:   make(chan struct{}),
	}
}

// RecordEvent queues a region event.
func (r *Recorder) RecordEvent(ev *RegionEvent) {
	select {
	case r.events <- ev:
	default:
		atomic.AddInt64(&r.metrics.Dropped, 1)
	}
}

// RecordFrame queues a frame outcome.
func (r *Recorder) RecordFrame(f *FrameRecord) {
	select {
	case r.frames <- f:
	default:
		atomic.AddInt64(&r.metrics.Dropped, 1)
	}
}

// Metrics returns a snapshot of the recorder counters.
func (r *Recorder) Metrics() RecorderMetrics {
	return RecorderMetrics{
		EventsWritten:    atomic.LoadInt64(&r.metrics.EventsWritten),
		FramesWritten:    atomic.LoadInt64(&r.metrics.FramesWritten),
		Dropped:          atomic.LoadInt64(&r.metrics.Dropped),
		ErrorCount:       atomic.LoadInt64(&r.metrics.ErrorCount),
		BatchesCommitted: atomic.LoadInt64(&r.metrics.BatchesCommitted),
	}
}

// Run flushes buffered records until ctx is done or Close is called, then
// writes whatever is still queued.
func (r *Recorder) Run(ctx context.Context) error {
	r.wg.Add(1)
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	evBuf := make([]*RegionEvent, 0, r.cfg.BatchSize)
	frBuf := make([]*FrameRecord, 0, r.cfg.BatchSize)

	flush := func() {
		if len(evBuf) > 0 {
			if err := r.store.BatchInsertRegionEvents(evBuf); err != nil {
				r.log.Error("journal_flush_failed", "kind", "region_events", "count", len(evBuf), "err", err)
				atomic.AddInt64(&r.metrics.ErrorCount, 1)
			} else {
				atomic.AddInt64(&r.metrics.EventsWritten, int64(len(evBuf)))
				atomic.AddInt64(&r.metrics.BatchesCommitted, 1)
			}
			evBuf = evBuf[:0]
		}
		if len(frBuf) > 0 {
			if err := r.store.BatchInsertFrames(frBuf); err != nil {
				r.log.Error("journal_flush_failed", "kind", "frames", "count", len(frBuf), "err", err)
				atomic.AddInt64(&r.metrics.ErrorCount, 1)
			} else {
				atomic.AddInt64(&r.metrics.FramesWritten, int64(len(frBuf)))
				atomic.AddInt64(&r.metrics.BatchesCommitted, 1)
			}
			frBuf = frBuf[:0]
		}
	}

	drain := func() {
		for {
			select {
			case ev := <-r.events:
				evBuf = append(evBuf, ev)
			case f := <-r.frames:
				frBuf = append(frBuf, f)
			default:
				flush()
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			drain()
			return nil

		case <-r.stop:
			drain()
			return nil

		case ev := <-r.events:
			evBuf = append(evBuf, ev)
			if len(evBuf) >= r.cfg.BatchSize {
				flush()
			}

		case f := <-r.frames:
			frBuf = append(frBuf, f)
			if len(frBuf) >= r.cfg.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// Close stops Run after a final flush and waits for it.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.stop) })
	r.wg.Wait()
}
