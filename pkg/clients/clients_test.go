package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPClientGet(t *testing.T) {
	var gotHeader atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("Amazon-Advertising-API-Scope"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"campaigns":[]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(nil, zap.NewNop())
	defer client.Close()

	resp, err := client.Get(context.Background(), server.URL, map[string]string{
		"Amazon-Advertising-API-Scope": "12345",
	})
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "12345", gotHeader.Load())

	stats := client.GetStats()
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(0), stats.FailedRequests)
}

func TestHTTPClientCircuitBreakerOpens(t *testing.T) {
	config := DefaultHTTPConfig()
	config.RateLimit = 0 // No throttling in this test
	config.FailureThreshold = 2
	config.Timeout = time.Minute
	config.RequestTimeout = 200 * time.Millisecond
	config.DialTimeout = 200 * time.Millisecond

	client := NewHTTPClient(config, zap.NewNop())
	defer client.Close()

	ctx := context.Background()
	// Unroutable address; both attempts fail and trip the breaker.
	for i := 0; i < 2; i++ {
		_, err := client.Get(ctx, "http://127.0.0.1:1", nil)
		assert.Error(t, err)
	}

	_, err := client.Get(ctx, "http://127.0.0.1:1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
}

func TestTokenBucketAllow(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(10, 2)

	assert.True(t, limiter.Allow())
	assert.True(t, limiter.Allow())
	// Burst exhausted.
	assert.False(t, limiter.Allow())

	stats := limiter.GetStats()
	assert.Equal(t, int64(2), stats.AllowedRequests)
	assert.Equal(t, int64(1), stats.BlockedRequests)
}

func TestTokenBucketWaitRefills(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(100, 1)

	require.True(t, limiter.Allow())

	start := time.Now()
	err := limiter.Wait(context.Background())
	require.NoError(t, err)
	// One token at 100/s refills within ~10ms.
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestTokenBucketWaitContextCanceled(t *testing.T) {
	limiter := NewTokenBucketRateLimiter(0.001, 1)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCircuitBreakerTransitions(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          50 * time.Millisecond,
	})

	assert.True(t, cb.Allow())

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	assert.Equal(t, "open", cb.GetState().State)
	assert.False(t, cb.Allow())

	// After the timeout the breaker admits probe requests.
	time.Sleep(60 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, "half_open", cb.GetState().State)

	cb.RecordSuccess()
	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.GetState().State)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Millisecond,
	})

	cb.RecordFailure()
	assert.Equal(t, "open", cb.GetState().State)

	time.Sleep(15 * time.Millisecond)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, "open", cb.GetState().State)
}

func TestHTTPMetricsPercentiles(t *testing.T) {
	m := NewHTTPMetrics()

	for i := 1; i <= 100; i++ {
		m.RecordRequest(http.MethodPost, "advertising-api.amazon.com", time.Duration(i)*time.Millisecond, nil)
	}

	assert.Equal(t, 95*time.Millisecond, m.GetP95Latency())
	assert.Equal(t, 99*time.Millisecond, m.GetP99Latency())

	ep := m.GetEndpointMetrics(http.MethodPost, "advertising-api.amazon.com")
	assert.Equal(t, int64(100), ep.RequestCount)
	assert.Equal(t, time.Millisecond, ep.MinLatency)
	assert.Equal(t, 100*time.Millisecond, ep.MaxLatency)
}
