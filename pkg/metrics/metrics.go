// Package metrics exposes the Prometheus metrics shared by the
// pipeline and the connectors, plus small local helpers for values
// that never leave a component.
//
// # Basic Usage
//
//	// Record processed records
//	metrics.RecordsProcessed.WithLabelValues("source-amazon-ads", "destination-jsonl", "success").Inc()
//
//	// Track processing latency
//	timer := metrics.NewTimer()
//	fetchPage(stream)
//	metrics.ProcessingLatency.WithLabelValues("read", "source-amazon-ads", "destination-jsonl").
//	    Observe(float64(timer.Stop().Nanoseconds()))
//
//	// Track throughput
//	tracker := metrics.NewThroughputTracker("source-amazon-ads", "destination-jsonl")
//	for record := range records {
//	    process(record)
//	    tracker.Increment(1)
//	}
//	throughput := tracker.GetAndReset()
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsProcessed counts records moved end to end.
	// Labels: source, destination, status (success/failure).
	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parallax_records_processed_total",
			Help: "Total number of records processed",
		},
		[]string{"source", "destination", "status"},
	)

	// ProcessingLatency is the per-record latency distribution of a
	// pipeline stage, in nanoseconds.
	// Labels: operation (read/transform/write), source, destination.
	ProcessingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parallax_processing_latency_nanoseconds",
			Help:    "Processing latency in nanoseconds",
			Buckets: []float64{100, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9},
		},
		[]string{"operation", "source", "destination"},
	)

	// PagesFetched counts list-endpoint pages fetched per stream.
	// Labels: stream, status (success/skipped/failure).
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parallax_pages_fetched_total",
			Help: "Total number of API pages fetched",
		},
		[]string{"stream", "status"},
	)

	// RecordsSkipped counts records dropped by tolerated API statuses.
	// Labels: stream, reason (http status class).
	RecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parallax_records_skipped_total",
			Help: "Total number of records skipped due to tolerated API responses",
		},
		[]string{"stream", "reason"},
	)

	// Throughput is the most recent records-per-second reading per
	// pipeline.
	// Labels: source, destination.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "parallax_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"source", "destination"},
	)
)

// Collector holds a component's local metric values for Metrics()
// snapshots. Counters accumulate, gauges overwrite. Each component
// owns one collector; the shared Prometheus metrics live separately.
type Collector struct {
	name      string
	startTime time.Time

	mu       sync.RWMutex
	counters map[string]float64
	gauges   map[string]float64
}

// NewCollector creates a collector labeled with the component name.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
		counters:  make(map[string]float64),
		gauges:    make(map[string]float64),
	}
}

// StartTime returns when the collector was created.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// RecordCounter adds value to the named counter.
func (c *Collector) RecordCounter(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += value
}

// RecordGauge sets the named gauge.
func (c *Collector) RecordGauge(name string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[name] = value
}

// GetAll returns a flat snapshot of every local value. Counter and
// gauge names share one namespace.
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.counters)+len(c.gauges)+3)
	out["component"] = c.name
	out["start_time"] = c.startTime
	out["uptime"] = time.Since(c.startTime).Seconds()

	for k, v := range c.counters {
		out[k] = v
	}
	for k, v := range c.gauges {
		out[k] = v
	}
	return out
}

// Timer measures elapsed time from its creation.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the time elapsed since creation. Calling it again
// returns the new total.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker accumulates a record count and converts it to
// records per second on demand. Safe for concurrent use.
type ThroughputTracker struct {
	mu          sync.Mutex
	count       int64
	since       time.Time
	source      string
	destination string
}

// NewThroughputTracker creates a tracker whose readings are published
// under the given pipeline labels.
func NewThroughputTracker(source, destination string) *ThroughputTracker {
	return &ThroughputTracker{
		since:       time.Now(),
		source:      source,
		destination: destination,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset converts the accumulated count into records per second,
// publishes it to the Throughput gauge, and restarts the window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.since).Seconds()
	if elapsed == 0 {
		return 0
	}
	throughput := float64(t.count) / elapsed

	t.count = 0
	t.since = time.Now()

	Throughput.WithLabelValues(t.source, t.destination).Set(throughput)
	return throughput
}

// LatencyTracker keeps the most recent latency samples for percentile
// queries. Older samples fall off once the window is full.
type LatencyTracker struct {
	mu      sync.Mutex
	values  []time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker holding up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	return &LatencyTracker{
		values:  make([]time.Duration, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record adds a sample, evicting the oldest when the window is full.
func (l *LatencyTracker) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.values) >= l.maxSize {
		l.values = l.values[1:]
	}
	l.values = append(l.values, d)
}

// GetPercentile returns the given percentile (0-100) of the window, or
// zero when no samples have been recorded.
func (l *LatencyTracker) GetPercentile(p float64) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.values) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(l.values))
	copy(sorted, l.values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)) * p / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
