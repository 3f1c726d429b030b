package base

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/parallaxworks/parallax/pkg/metrics"
	"go.uber.org/zap"
)

// progressLogInterval is the minimum gap between progress log lines.
const progressLogInterval = 10 * time.Second

// ProgressReporter tracks how far a connector has advanced and logs progress
// at most once per interval. Counters update on every call; only the log and
// gauge output is rate limited.
type ProgressReporter struct {
	log       *zap.Logger
	collector *metrics.Collector

	processed int64
	total     int64

	started time.Time

	mu       sync.Mutex
	lastEmit time.Time
	interval time.Duration
}

// NewProgressReporter creates a reporter bound to the given logger and
// metrics collector.
func NewProgressReporter(logger *zap.Logger, collector *metrics.Collector) *ProgressReporter {
	now := time.Now()
	return &ProgressReporter{
		log:       logger,
		collector: collector,
		started:   now,
		lastEmit:  now,
		interval:  progressLogInterval,
	}
}

// ReportProgress records the current position. A zero or negative total
// leaves the previously reported total in place.
func (pr *ProgressReporter) ReportProgress(processed, total int64) {
	atomic.StoreInt64(&pr.processed, processed)
	if total > 0 {
		atomic.StoreInt64(&pr.total, total)
	}

	pr.mu.Lock()
	if time.Since(pr.lastEmit) < pr.interval {
		pr.mu.Unlock()
		return
	}
	pr.lastEmit = time.Now()
	pr.mu.Unlock()

	pr.emit()
}

// Progress returns the last reported position.
func (pr *ProgressReporter) Progress() (processed, total int64) {
	return atomic.LoadInt64(&pr.processed), atomic.LoadInt64(&pr.total)
}

// Elapsed returns the time since the reporter was created.
func (pr *ProgressReporter) Elapsed() time.Duration {
	return time.Since(pr.started)
}

// Rate returns the average records per second since the start.
func (pr *ProgressReporter) Rate() float64 {
	elapsed := pr.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&pr.processed)) / elapsed
}

// ETA estimates the remaining time at the average rate. Returns zero when
// the total is unknown or already reached.
func (pr *ProgressReporter) ETA() time.Duration {
	processed, total := pr.Progress()
	if processed == 0 || total == 0 || processed >= total {
		return 0
	}

	rate := pr.Rate()
	if rate == 0 {
		return 0
	}

	return time.Duration(float64(total-processed)/rate) * time.Second
}

func (pr *ProgressReporter) emit() {
	processed, total := pr.Progress()
	rate := pr.Rate()

	fields := []zap.Field{
		zap.Int64("processed", processed),
		zap.Float64("records_per_second", rate),
		zap.Duration("elapsed", pr.Elapsed()),
	}

	pr.collector.RecordGauge("records_processed", float64(processed))
	pr.collector.RecordGauge("records_per_second", rate)

	if total > 0 {
		percent := float64(processed) / float64(total) * 100
		fields = append(fields,
			zap.Int64("total", total),
			zap.Float64("percent", percent),
			zap.Duration("eta", pr.ETA()),
		)
		pr.collector.RecordGauge("progress_percent", percent)
	}

	pr.log.Info("progress", fields...)
}
