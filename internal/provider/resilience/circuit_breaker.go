// Package resilience wraps outbound HTTP calls to the remote data sources in
// retries with exponential backoff and a per-provider circuit breaker.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// StateObserver is notified of circuit breaker transitions. It runs while the
// breaker holds its lock and must not call back into the breaker.
type StateObserver func(name string, from, to gobreaker.State)

// CircuitBreakerConfig configures the breaker guarding one provider.
type CircuitBreakerConfig struct {
	Name string

	// MaxRequests is the number of probes let through while half-open.
	// Default: 1
	MaxRequests uint32

	// Interval clears the counts while closed; zero keeps them for the run.
	Interval time.Duration

	// Timeout is how long the circuit stays open.
	// Default: 60 seconds
	Timeout time.Duration

	// ReadyToTrip decides when to open. Default: DefaultReadyToTrip
	ReadyToTrip func(counts gobreaker.Counts) bool

	OnStateChange StateObserver
}

const (
	tripMinRequests  = 5
	tripFailureRatio = 0.5
)

// DefaultCircuitBreakerConfig returns the breaker used for every provider.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip opens the circuit once at least half of five or more
// calls have failed.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < tripMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= tripFailureRatio
}

// NewCircuitBreaker builds a breaker from cfg. Observers are called after
// cfg.OnStateChange on every transition.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig, observers ...StateObserver) *gobreaker.CircuitBreaker[T] {
	if cfg.ReadyToTrip == nil {
		cfg.ReadyToTrip = DefaultReadyToTrip
	}
	if cfg.OnStateChange != nil {
		observers = append([]StateObserver{cfg.OnStateChange}, observers...)
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}
	if len(observers) > 0 {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			for _, observe := range observers {
				observe(name, from, to)
			}
		}
	}
	return gobreaker.NewCircuitBreaker[T](settings)
}
