// Package clients provides the outbound HTTP stack shared by the API
// connectors: a pooled client with HTTP/2 support, token-bucket rate
// limiting, circuit breaking, and per-endpoint latency metrics.
package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const defaultUserAgent = "parallax/1.0"

// HTTPConfig tunes the transport, rate limiter, and circuit breaker of
// an HTTPClient. Pass nil to NewHTTPClient to get DefaultHTTPConfig.
type HTTPConfig struct {
	// Connection pool
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `json:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	KeepAlive           time.Duration `json:"keep_alive"`
	DisableKeepAlives   bool          `json:"disable_keep_alives"`
	DisableCompression  bool          `json:"disable_compression"`
	EnableHTTP2         bool          `json:"enable_http2"`

	// Timeouts. RequestTimeout bounds the whole exchange including the
	// body read; the others bound individual phases.
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	RequestTimeout        time.Duration `json:"request_timeout"`

	// TLS
	TLSMinVersion      uint16 `json:"tls_min_version"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`

	// Throttling. RateLimit <= 0 disables the limiter.
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// Circuit breaker. Timeout is how long an open breaker waits
	// before admitting probe requests.
	CircuitBreakerEnabled bool          `json:"circuit_breaker_enabled"`
	FailureThreshold      int           `json:"failure_threshold"`
	SuccessThreshold      int           `json:"success_threshold"`
	Timeout               time.Duration `json:"timeout"`
}

// DefaultHTTPConfig returns defaults suitable for REST API traffic.
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		KeepAlive:             30 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		RequestTimeout:        60 * time.Second,
		TLSMinVersion:         tls.VersionTLS12,
		RateLimit:             10.0,
		RateBurst:             20,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      3,
		Timeout:               30 * time.Second,
	}
}

// HTTPClient wraps net/http with rate limiting, circuit breaking, and
// request metrics. Safe for concurrent use.
type HTTPClient struct {
	client  *http.Client
	limiter RateLimiter
	breaker *HTTPCircuitBreaker
	metrics *HTTPMetrics

	totalRequests  int64
	failedRequests int64
}

// NewHTTPClient builds a client from config. A nil config uses
// DefaultHTTPConfig.
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	transport := newTransport(config)
	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("http/2 unavailable, staying on HTTP/1.1", zap.Error(err))
		}
	}

	c := &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.RequestTimeout,
		},
		metrics: NewHTTPMetrics(),
	}
	if config.RateLimit > 0 {
		c.limiter = NewTokenBucketRateLimiter(config.RateLimit, config.RateBurst)
	}
	if config.CircuitBreakerEnabled {
		c.breaker = NewHTTPCircuitBreaker(config, logger)
	}
	return c
}

func newTransport(cfg *HTTPConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAlive,
	}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		DisableKeepAlives:     cfg.DisableKeepAlives,
		DisableCompression:    cfg.DisableCompression,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         cfg.TLSMinVersion,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
}

// Get issues a GET request with the given headers.
func (c *HTTPClient) Get(ctx context.Context, url string, headers map[string]string) (*http.Response, error) {
	return c.roundTrip(ctx, http.MethodGet, url, nil, headers)
}

// Post issues a POST request with the given body and headers.
func (c *HTTPClient) Post(ctx context.Context, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	return c.roundTrip(ctx, http.MethodPost, url, body, headers)
}

func (c *HTTPClient) roundTrip(ctx context.Context, method, url string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}
	return c.Do(req)
}

// Do sends req, subject to the client's rate limit and circuit
// breaker. Transport failures count against the breaker; HTTP error
// statuses do not, status handling belongs to the caller.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			atomic.AddInt64(&c.failedRequests, 1)
			return nil, fmt.Errorf("rate limit exceeded: %w", err)
		}
	}
	if c.breaker != nil && !c.breaker.Allow() {
		atomic.AddInt64(&c.failedRequests, 1)
		return nil, fmt.Errorf("circuit breaker open")
	}

	atomic.AddInt64(&c.totalRequests, 1)
	start := time.Now()
	resp, err := c.client.Do(req)
	c.metrics.RecordRequest(req.Method, req.URL.Host, time.Since(start), err)

	if err != nil {
		atomic.AddInt64(&c.failedRequests, 1)
		if c.breaker != nil {
			c.breaker.RecordFailure()
		}
		return nil, err
	}

	if c.breaker != nil {
		c.breaker.RecordSuccess()
	}
	if resp.TLS != nil {
		// Session resumption is the closest signal the transport
		// exposes for connection reuse over TLS.
		c.metrics.RecordConnectionReuse(resp.TLS.DidResume)
	}
	return resp, nil
}

// GetStats returns cumulative request counts and latency percentiles.
func (c *HTTPClient) GetStats() HTTPStats {
	total := atomic.LoadInt64(&c.totalRequests)
	failed := atomic.LoadInt64(&c.failedRequests)

	stats := HTTPStats{
		TotalRequests:   total,
		FailedRequests:  failed,
		ConnectionReuse: c.metrics.GetConnectionReuseRate(),
		AverageLatency:  c.metrics.GetAverageLatency(),
		P95Latency:      c.metrics.GetP95Latency(),
		P99Latency:      c.metrics.GetP99Latency(),
	}
	if total > 0 {
		stats.SuccessRate = float64(total-failed) / float64(total) * 100
	}
	return stats
}

// Close releases idle connections. In-flight requests are unaffected.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// HTTPStats is a snapshot of client activity for reporting.
type HTTPStats struct {
	TotalRequests   int64         `json:"total_requests"`
	FailedRequests  int64         `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	ConnectionReuse float64       `json:"connection_reuse_rate"`
	AverageLatency  time.Duration `json:"average_latency"`
	P95Latency      time.Duration `json:"p95_latency"`
	P99Latency      time.Duration `json:"p99_latency"`
}
