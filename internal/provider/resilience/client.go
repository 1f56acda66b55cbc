package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// Predefined errors for resilient operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrMaxRetriesExceeded is returned when all retry attempts have been exhausted.
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)

// DefaultRetryableStatuses are the gateway-style statuses worth retrying.
var DefaultRetryableStatuses = []int{
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies this client for circuit breaker naming.
	Name string

	// Timeout is the request timeout for individual HTTP calls.
	// Default: 30 seconds
	Timeout time.Duration

	// MaxRetries is the maximum number of retry attempts.
	// Default: 5
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 1s
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 30 seconds
	MaxInterval time.Duration

	// RetryableStatuses lists the response codes that are retried.
	// Any other status is handed back to the caller untouched.
	// Default: DefaultRetryableStatuses
	RetryableStatuses []int

	// CircuitBreaker is the circuit breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, receives the client and the outcome of every call.
	Registry *Registry
}

// DefaultClientConfig returns sensible defaults for the resilient client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:              name,
		Timeout:           30 * time.Second,
		MaxRetries:        5,
		InitialInterval:   time.Second,
		MaxInterval:       30 * time.Second,
		RetryableStatuses: DefaultRetryableStatuses,
		CircuitBreaker:    &cbConfig,
	}
}

// Client is a resilient HTTP client with circuit breaker and retry logic.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	retryable      map[int]bool
	registry       *Registry
	config         ClientConfig
	trips          atomic.Int64
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	defaults := DefaultClientConfig(cfg.Name)
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = defaults.InitialInterval
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = defaults.MaxInterval
	}
	if len(cfg.RetryableStatuses) == 0 {
		cfg.RetryableStatuses = defaults.RetryableStatuses
	}

	cbConfig := defaults.CircuitBreaker
	if cfg.CircuitBreaker != nil {
		cbConfig = cfg.CircuitBreaker
	}

	retryable := make(map[int]bool, len(cfg.RetryableStatuses))
	for _, code := range cfg.RetryableStatuses {
		retryable[code] = true
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retryable: retryable,
		registry:  cfg.Registry,
		config:    cfg,
	}
	client.circuitBreaker = NewCircuitBreaker[*http.Response](*cbConfig, client.countTrip) //nolint:bodyclose // type param, not response
	if cfg.Registry != nil {
		cfg.Registry.Register(cfg.Name, client)
	}
	return client
}

// Name returns the client name.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes an HTTP request with circuit breaker protection and retry logic.
// Network errors and retryable statuses are retried with exponential backoff.
// When retries run out the returned error wraps ErrMaxRetriesExceeded.
// Returns immediately with ErrCircuitOpen if the circuit breaker is open.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with the given context.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, req)
	if c.registry != nil {
		c.registry.Record(c.config.Name, time.Since(start), err)
	}
	return resp, err
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries are bounded by WithMaxRetries

	backoffWithRetries := backoff.WithMaxRetries(bo, c.config.MaxRetries)
	backoffWithContext := backoff.WithContext(backoffWithRetries, ctx)

	var lastResp *http.Response

	operation := func() error {
		// 5xx responses are returned as errors to trip the circuit breaker
		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
			r, err := c.httpClient.Do(req.Clone(ctx))
			if err != nil {
				return nil, err
			}
			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}
			return r, nil
		})

		if lastResp != nil && lastResp != resp {
			drain(lastResp)
		}
		lastResp = resp

		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		var serverErr *ServerError
		if errors.As(err, &serverErr) && !c.retryable[serverErr.StatusCode] {
			// Non-retryable server errors are the caller's to interpret.
			return nil
		}
		return err
	}

	err := backoff.Retry(operation, backoffWithContext)
	if err == nil {
		return lastResp, nil
	}

	if lastResp != nil {
		drain(lastResp)
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %w", ErrMaxRetriesExceeded, err)
}

// ServerError represents an HTTP 5xx server error.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// IsTransient reports whether err is worth trying again on a later run:
// exhausted retries, an open circuit, a gateway-style server status or a
// network failure. An ended caller context is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMaxRetriesExceeded) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return slices.Contains(DefaultRetryableStatuses, serverErr.StatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitTrips returns how many times the circuit has opened.
func (c *Client) CircuitTrips() int64 {
	return c.trips.Load()
}

func (c *Client) countTrip(_ string, _, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		c.trips.Add(1)
	}
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
