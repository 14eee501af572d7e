// Async run metrics recording
package advisor

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/groupmix/smartsort/internal/models"
)

const (
	defaultRingSize   = 64
	defaultBufferSize = 256
	persistTimeout    = 5 * time.Second
)

// MetricsWriter persists one run's metrics.
type MetricsWriter interface {
	AppendRunMetrics(ctx context.Context, m models.RunMetrics) error
}

// Recorder keeps a bounded in-memory window of recent run metrics and
// persists each record in the background. Record never blocks the sort
// path; when the persistence queue is full the record is kept in memory
// and the write is dropped with a warning.
type Recorder struct {
	writer MetricsWriter
	logger *log.Logger

	queue chan models.RunMetrics
	done  chan struct{}

	mu   sync.RWMutex
	ring []models.RunMetrics // newest first
	size int
}

// NewRecorder creates a recorder and starts its persistence worker.
// writer may be nil, which keeps recording in-memory only.
func NewRecorder(writer MetricsWriter, logger *log.Logger) *Recorder {
	r := &Recorder{
		writer: writer,
		logger: logger,
		queue:  make(chan models.RunMetrics, defaultBufferSize),
		done:   make(chan struct{}),
		size:   defaultRingSize,
	}
	go r.run()
	return r
}

// Record captures one run's metrics. The in-memory window updates
// immediately; the database write happens on the worker goroutine.
func (r *Recorder) Record(m models.RunMetrics) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	r.mu.Lock()
	r.ring = append([]models.RunMetrics{m}, r.ring...)
	if len(r.ring) > r.size {
		r.ring = r.ring[:r.size]
	}
	r.mu.Unlock()

	select {
	case r.queue <- m:
	default:
		r.logger.Warn("metrics queue full, dropping persisted record",
			"group", m.GroupID, "sequence", m.Sequence)
	}
}

// Recent returns up to limit records, newest first. Implements [History].
func (r *Recorder) Recent(limit int) []models.RunMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.ring) {
		limit = len(r.ring)
	}
	out := make([]models.RunMetrics, limit)
	copy(out, r.ring[:limit])
	return out
}

// RecentFailureRate reports the failed fraction of the last limit runs,
// zero when there is no history.
func (r *Recorder) RecentFailureRate(limit int) float64 {
	recent := r.Recent(limit)
	if len(recent) == 0 {
		return 0
	}

	failed := 0
	for _, m := range recent {
		if !m.Success {
			failed++
		}
	}
	return float64(failed) / float64(len(recent))
}

// Close drains the persistence queue and stops the worker.
func (r *Recorder) Close() {
	close(r.queue)
	<-r.done
}

// run is the persistence worker. Write failures are logged and dropped;
// metrics persistence must never surface into sort results.
func (r *Recorder) run() {
	defer close(r.done)

	for m := range r.queue {
		if r.writer == nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := r.writer.AppendRunMetrics(ctx, m); err != nil {
			r.logger.Error("failed to persist run metrics",
				"group", m.GroupID, "sequence", m.Sequence, "error", err)
		}
		cancel()
	}
}
