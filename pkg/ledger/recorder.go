package ledger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"aurora-hq/nexus/pkg/proxy"
)

// DefaultWriteTimeout bounds a single storage write in the worker.
const DefaultWriteTimeout = 5 * time.Second

// Recorder turns forwarder exchange outcomes into stored records through a
// buffered channel and a single writer goroutine. Record never blocks: when
// the queue is full the record is dropped and counted.
type Recorder struct {
	storage Storage
	logger  *slog.Logger

	// OnDrop, if set, is called once per dropped record.
	OnDrop func()

	queue   chan *Record
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewRecorder starts the writer goroutine over storage. buffer is the queue
// depth.
func NewRecorder(storage Storage, buffer int, logger *slog.Logger) *Recorder {
	if buffer <= 0 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		storage: storage,
		logger:  logger,
		queue:   make(chan *Record, buffer),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Record enqueues one exchange outcome. Shaped to plug directly into the
// forwarder's OnExchange hook.
func (r *Recorder) Record(ex proxy.Exchange) {
	rec := &Record{
		ID:          uuid.NewString(),
		RequestID:   ex.RequestID,
		Kind:        ex.Kind.String(),
		InstanceID:  ex.InstanceID,
		InstanceURL: ex.InstanceURL,
		Method:      ex.Method,
		Path:        ex.Path,
		Status:      ex.Status,
		Streamed:    ex.Streamed,
		BytesOut:    ex.BytesOut,
		Duration:    ex.Duration,
		Failure:     ex.FailureKind,
		RecordedAt:  time.Now().UTC(),
	}

	select {
	case r.queue <- rec:
	default:
		n := r.dropped.Add(1)
		if r.OnDrop != nil {
			r.OnDrop()
		}
		// Log the first drop and then every 1000th so a sustained
		// overload doesn't flood the log.
		if n == 1 || n%1000 == 0 {
			r.logger.Warn("ledger queue full, dropping records",
				slog.Int64("dropped_total", n))
		}
	}
}

// Dropped returns how many records have been discarded so far.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close drains the queue, stops the worker, and closes storage.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
	return r.storage.Close()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultWriteTimeout)
		if err := r.storage.Store(ctx, rec); err != nil {
			r.logger.Error("ledger write failed",
				slog.String("record_id", rec.ID),
				slog.Any("error", err))
		}
		cancel()
	}
}
