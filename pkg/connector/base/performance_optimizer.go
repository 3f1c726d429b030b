package base

import (
	"sync"

	"github.com/parallaxworks/parallax/pkg/metrics"
)

const (
	maxPerfSamples = 100
	minBatchSize   = 100
	maxBatchSize   = 50000
)

// perfSample is one observation of connector behavior at a given batch size.
type perfSample struct {
	batchSize  int
	throughput float64
	latencyMS  float64
	errorRate  float64
}

// PerformanceOptimizer recommends batch sizes and concurrency levels from
// observed runtime metrics. Batch size recommendations move gradually toward
// the historically best-scoring size rather than jumping to it.
type PerformanceOptimizer struct {
	collector *metrics.Collector

	mu      sync.Mutex
	samples []perfSample
}

// NewPerformanceOptimizer creates an optimizer reporting its decisions to
// the given collector.
func NewPerformanceOptimizer(collector *metrics.Collector) *PerformanceOptimizer {
	return &PerformanceOptimizer{
		collector: collector,
		samples:   make([]perfSample, 0, maxPerfSamples),
	}
}

// OptimizeBatchSize records the current observation and recommends the next
// batch size. Until enough history accumulates the current size is kept.
func (po *PerformanceOptimizer) OptimizeBatchSize(current int, m map[string]interface{}) int {
	po.mu.Lock()
	defer po.mu.Unlock()

	po.samples = append(po.samples, perfSample{
		batchSize:  current,
		throughput: metricFloat(m, "throughput", 0),
		latencyMS:  metricFloat(m, "latency_ms", 0),
		errorRate:  metricFloat(m, "error_rate", 0),
	})
	if len(po.samples) > maxPerfSamples {
		po.samples = po.samples[len(po.samples)-maxPerfSamples:]
	}

	if len(po.samples) < 5 {
		return current
	}

	// Average score per batch size. Throughput wins, latency and errors lose.
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, s := range po.samples {
		score := s.throughput / (1 + s.latencyMS/1000) * (1 - s.errorRate)
		sums[s.batchSize] += score
		counts[s.batchSize]++
	}

	best, bestScore := current, 0.0
	for size, sum := range sums {
		if avg := sum / float64(counts[size]); avg > bestScore {
			best, bestScore = size, avg
		}
	}

	// Step 30% of the way toward the best size, at least one unit.
	next := current
	if best != current {
		step := (best - current) * 3 / 10
		if step == 0 {
			if best > current {
				step = 1
			} else {
				step = -1
			}
		}
		next = current + step
	}

	if next < minBatchSize {
		next = minBatchSize
	} else if next > maxBatchSize {
		next = maxBatchSize
	}

	if po.collector != nil {
		po.collector.RecordGauge("optimized_batch_size", float64(next))
	}

	return next
}

// OptimizeConcurrency recommends a concurrency level from CPU usage, error
// rate and queue depth.
func (po *PerformanceOptimizer) OptimizeConcurrency(current int, m map[string]interface{}) int {
	cpu := metricFloat(m, "cpu_usage", 0.5)
	errRate := metricFloat(m, "error_rate", 0)
	queued := metricInt(m, "queue_depth", 0)

	next := current
	switch {
	case cpu < 0.6 && queued > current*100:
		// Headroom and a growing backlog: scale out.
		next = current * 12 / 10
	case cpu > 0.9 || errRate > 0.05:
		// Saturated or erroring: back off.
		next = current * 8 / 10
	}

	if next < 1 {
		next = 1
	} else if next > 100 {
		next = 100
	}

	if po.collector != nil {
		po.collector.RecordGauge("optimized_concurrency", float64(next))
	}

	return next
}

// metricFloat reads a numeric metric, tolerating the common numeric types.
func metricFloat(m map[string]interface{}, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

func metricInt(m map[string]interface{}, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}
