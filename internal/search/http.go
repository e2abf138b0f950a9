package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/observability"
)

const defaultTimeout = 5 * time.Second

// maxResponseSize bounds how much of a search response is read.
const maxResponseSize = 4 << 20

// BreakerConfig tunes the circuit breaker around the remote search service.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the stock breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          20 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

// HTTPClient queries a remote search service: GET {base}/search?q=...
// returning either a JSON array of Result or {"results": [...]}.
type HTTPClient struct {
	base    string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewHTTPClient returns a client for baseURL. timeout <= 0 uses 5s.
func NewHTTPClient(baseURL string, timeout time.Duration, bc BreakerConfig, logger *zap.Logger, metrics *observability.Collector) *HTTPClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger = observability.OrNop(logger)
	c := &HTTPClient{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "search",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// A cancelled request is the caller moving on, not a service failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

type resultsEnvelope struct {
	Results []Result `json:"results"`
}

// Search runs the query through the circuit breaker.
func (c *HTTPClient) Search(ctx context.Context, query string) ([]Result, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		return c.do(ctx, query)
	})
	switch {
	case err == nil:
		c.metrics.ObserveSearch("ok")
		return out.([]Result), nil
	case errors.Is(err, context.Canceled):
		c.metrics.ObserveSearch("cancelled")
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.ObserveSearch("rejected")
		return nil, fmt.Errorf("search unavailable: %w", err)
	default:
		c.metrics.ObserveSearch("error")
		return nil, err
	}
}

func (c *HTTPClient) do(ctx context.Context, query string) ([]Result, error) {
	u := c.base + "/search?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET /search: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET /search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return decodeResults(data)
}

func decodeResults(data []byte) ([]Result, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var rs []Result
		if err := json.Unmarshal(data, &rs); err != nil {
			return nil, fmt.Errorf("decode search results: %w", err)
		}
		return rs, nil
	}
	var env resultsEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}
	return env.Results, nil
}

// State reports the breaker state, for health output.
func (c *HTTPClient) State() string {
	return c.cb.State().String()
}
