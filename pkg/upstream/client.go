// Package upstream fetches the todos resource from the upstream HTTP API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream requests.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "todos_upstream_requests_total",
		Help: "Total upstream requests by HTTP status",
	}, []string{"status"})

	upstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "todos_upstream_request_duration_seconds",
		Help:    "Upstream fetch duration in seconds, including retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

// Defaults for the upstream client.
const (
	DefaultURL          = "https://jsonplaceholder.typicode.com/todos"
	DefaultTimeout      = 30 * time.Second
	DefaultUserAgent    = "todos-proxy/0.1.0"
	DefaultMaxBodyBytes = 10 << 20
)

// Config holds the client configuration.
type Config struct {
	// URL of the upstream resource.
	URL string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds one Fetch, retries included. Zero disables it.
	Timeout time.Duration

	// MaxBodyBytes limits how much of the response body is read.
	MaxBodyBytes int64

	Retry RetryConfig

	// HTTPClient overrides the transport (tests).
	HTTPClient *http.Client
}

// DefaultConfig returns the default configuration for rawURL.
func DefaultConfig(rawURL, userAgent string) Config {
	return Config{
		URL:          rawURL,
		UserAgent:    userAgent,
		Timeout:      DefaultTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
		Retry:        DefaultRetryConfig(),
	}
}

// Client fetches the upstream resource.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("upstream url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url must be http or https (got %q)", cfg.URL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream url has no host: %q", cfg.URL)
	}

	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     log.With().Str("component", "upstream").Logger(),
	}, nil
}

// URL returns the upstream URL.
func (c *Client) URL() string {
	return c.config.URL
}

// Fetch GETs the upstream resource and returns its body as compact JSON.
// Server and network failures are retried according to Config.Retry.
func (c *Client) Fetch(ctx context.Context) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.Observe(time.Since(startTime).Seconds())
	}()

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var payload []byte
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func() error {
		var fetchErr error
		payload, fetchErr = c.fetchOnce(ctx)
		return fetchErr
	}, ClassOf)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.config.URL).Msg("Executing upstream request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues("network_error").Inc()
		return nil, &UpstreamError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	upstreamRequestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, c.config.MaxBodyBytes))
		ue := statusError(resp.StatusCode)
		c.logger.Warn().
			Int("status_code", resp.StatusCode).
			Str("error_class", string(ue.ErrorClass)).
			Msg("Upstream request error")
		return nil, ue
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.config.MaxBodyBytes))
	if err != nil {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read body",
			Err:        err,
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "decode body",
			Err:        fmt.Errorf("%w: %v", ErrInvalidPayload, err),
		}
	}

	return compact.Bytes(), nil
}
