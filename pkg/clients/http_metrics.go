package clients

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// latencySampleSize is how many recent request latencies are kept
	// for average and percentile calculations.
	latencySampleSize = 1000

	// errorKeyLen caps error strings used as error-count map keys.
	errorKeyLen = 50
)

// errorKey derives an error-count map key from an error, capped at
// errorKeyLen bytes.
func errorKey(err error) string {
	s := err.Error()
	if len(s) > errorKeyLen {
		s = s[:errorKeyLen]
	}
	return s
}

// HTTPMetrics tracks request counts, latency percentiles, connection
// reuse, and error rates for an HTTP client. Safe for concurrent use.
type HTTPMetrics struct {
	totalRequests      int64
	successfulRequests int64
	failedRequests     int64
	connectionsCreated int64
	connectionsReused  int64

	mu        sync.RWMutex
	recent    *latencyRing
	endpoints map[string]*endpointBucket
	errCounts map[string]int64
}

// NewHTTPMetrics creates an empty metrics tracker.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		recent:    newLatencyRing(latencySampleSize),
		endpoints: make(map[string]*endpointBucket),
		errCounts: make(map[string]int64),
	}
}

// RecordRequest records the outcome and latency of one request.
func (hm *HTTPMetrics) RecordRequest(method, host string, latency time.Duration, err error) {
	atomic.AddInt64(&hm.totalRequests, 1)
	if err != nil {
		atomic.AddInt64(&hm.failedRequests, 1)
	} else {
		atomic.AddInt64(&hm.successfulRequests, 1)
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.recent.add(latency)
	hm.endpoint(method, host).observe(latency)
	if err != nil {
		hm.errCounts[errorKey(err)]++
	}
}

// RecordConnectionReuse tracks whether a connection was reused or
// newly created.
func (hm *HTTPMetrics) RecordConnectionReuse(reused bool) {
	if reused {
		atomic.AddInt64(&hm.connectionsReused, 1)
	} else {
		atomic.AddInt64(&hm.connectionsCreated, 1)
	}
}

// endpoint returns the bucket for a method and host pair, creating it
// on first use. Called with the lock held.
func (hm *HTTPMetrics) endpoint(method, host string) *endpointBucket {
	key := method + ":" + host
	b := hm.endpoints[key]
	if b == nil {
		b = &endpointBucket{method: method, host: host}
		hm.endpoints[key] = b
	}
	return b
}

// GetAverageLatency returns the mean of recent request latencies.
func (hm *HTTPMetrics) GetAverageLatency() time.Duration {
	hm.mu.RLock()
	samples := hm.recent.snapshot()
	hm.mu.RUnlock()

	if len(samples) == 0 {
		return 0
	}

	var total time.Duration
	for _, s := range samples {
		total += s
	}
	return total / time.Duration(len(samples))
}

// GetP95Latency returns the 95th percentile of recent latencies.
func (hm *HTTPMetrics) GetP95Latency() time.Duration {
	return hm.percentile(0.95)
}

// GetP99Latency returns the 99th percentile of recent latencies.
func (hm *HTTPMetrics) GetP99Latency() time.Duration {
	return hm.percentile(0.99)
}

func (hm *HTTPMetrics) percentile(p float64) time.Duration {
	hm.mu.RLock()
	samples := hm.recent.snapshot()
	hm.mu.RUnlock()

	if len(samples) == 0 {
		return 0
	}
	slices.Sort(samples)
	return samples[int(float64(len(samples)-1)*p)]
}

// GetEndpointMetrics returns aggregated latency for one method and
// host pair.
func (hm *HTTPMetrics) GetEndpointMetrics(method, host string) EndpointMetrics {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	b := hm.endpoints[method+":"+host]
	if b == nil {
		return EndpointMetrics{}
	}

	m := EndpointMetrics{
		Host:         host,
		Method:       method,
		RequestCount: b.count,
		MinLatency:   b.min,
		MaxLatency:   b.max,
	}
	if b.count > 0 {
		m.AverageLatency = b.total / time.Duration(b.count)
	}
	return m
}

// GetConnectionReuseRate returns the percentage of connections that
// were reused.
func (hm *HTTPMetrics) GetConnectionReuseRate() float64 {
	created := atomic.LoadInt64(&hm.connectionsCreated)
	reused := atomic.LoadInt64(&hm.connectionsReused)

	total := created + reused
	if total == 0 {
		return 0
	}
	return float64(reused) / float64(total) * 100
}

// GetErrorStats returns a copy of the per-error counts.
func (hm *HTTPMetrics) GetErrorStats() map[string]int64 {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	out := make(map[string]int64, len(hm.errCounts))
	for k, v := range hm.errCounts {
		out[k] = v
	}
	return out
}

// Reset clears all metrics.
func (hm *HTTPMetrics) Reset() {
	atomic.StoreInt64(&hm.totalRequests, 0)
	atomic.StoreInt64(&hm.successfulRequests, 0)
	atomic.StoreInt64(&hm.failedRequests, 0)
	atomic.StoreInt64(&hm.connectionsCreated, 0)
	atomic.StoreInt64(&hm.connectionsReused, 0)

	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.recent = newLatencyRing(latencySampleSize)
	hm.endpoints = make(map[string]*endpointBucket)
	hm.errCounts = make(map[string]int64)
}

// EndpointMetrics is aggregated latency for one endpoint.
type EndpointMetrics struct {
	Host           string        `json:"host"`
	Method         string        `json:"method"`
	RequestCount   int64         `json:"request_count"`
	AverageLatency time.Duration `json:"average_latency"`
	MinLatency     time.Duration `json:"min_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
}

// endpointBucket aggregates latency for one method and host pair.
type endpointBucket struct {
	method string
	host   string
	count  int64
	total  time.Duration
	min    time.Duration
	max    time.Duration
}

func (b *endpointBucket) observe(latency time.Duration) {
	if b.count == 0 || latency < b.min {
		b.min = latency
	}
	if latency > b.max {
		b.max = latency
	}
	b.count++
	b.total += latency
}

// latencyRing keeps the most recent latency samples in a fixed-size
// buffer.
type latencyRing struct {
	buf  []time.Duration
	next int
	full bool
}

func newLatencyRing(n int) *latencyRing {
	return &latencyRing{buf: make([]time.Duration, n)}
}

func (r *latencyRing) add(d time.Duration) {
	r.buf[r.next] = d
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot copies out the currently held samples.
func (r *latencyRing) snapshot() []time.Duration {
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]time.Duration, n)
	copy(out, r.buf[:n])
	return out
}
