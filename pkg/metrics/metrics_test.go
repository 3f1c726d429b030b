package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCountersAccumulate(t *testing.T) {
	c := NewCollector("source-amazon-ads")

	c.RecordCounter("pages_fetched", 1)
	c.RecordCounter("pages_fetched", 1)
	c.RecordCounter("records_extracted", 150)

	all := c.GetAll()
	assert.Equal(t, "source-amazon-ads", all["component"])
	assert.Equal(t, float64(2), all["pages_fetched"])
	assert.Equal(t, float64(150), all["records_extracted"])
}

func TestCollectorGaugeOverwrites(t *testing.T) {
	c := NewCollector("destination-jsonl")

	c.RecordGauge("queue_depth", 10)
	c.RecordGauge("queue_depth", 3)

	all := c.GetAll()
	assert.Equal(t, float64(3), all["queue_depth"])
}

func TestTimerMeasuresElapsed(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	elapsed := timer.Stop()

	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
}

func TestThroughputTracker(t *testing.T) {
	tracker := NewThroughputTracker("source-amazon-ads", "destination-jsonl")
	tracker.Increment(100)
	time.Sleep(10 * time.Millisecond)

	throughput := tracker.GetAndReset()
	assert.Greater(t, throughput, float64(0))

	// Counter resets after read.
	time.Sleep(time.Millisecond)
	assert.Equal(t, float64(0), tracker.GetAndReset())
}

func TestLatencyTrackerPercentiles(t *testing.T) {
	tracker := NewLatencyTracker(100)

	// Record out of order; percentiles must reflect sorted values.
	for _, ms := range []int{90, 10, 50, 30, 70, 20, 80, 40, 100, 60} {
		tracker.Record(time.Duration(ms) * time.Millisecond)
	}

	p50 := tracker.GetPercentile(50)
	p99 := tracker.GetPercentile(99)

	assert.Equal(t, 60*time.Millisecond, p50)
	assert.Equal(t, 100*time.Millisecond, p99)
}

func TestLatencyTrackerWindowEviction(t *testing.T) {
	tracker := NewLatencyTracker(3)

	tracker.Record(time.Second)
	tracker.Record(2 * time.Second)
	tracker.Record(3 * time.Second)
	tracker.Record(4 * time.Second)

	// Oldest value evicted; max percentile is the newest.
	assert.Equal(t, 4*time.Second, tracker.GetPercentile(100))
	assert.Equal(t, 2*time.Second, tracker.GetPercentile(0))
}
