package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ProviderStats describes how one remote source behaved during a run.
type ProviderStats struct {
	Name  string
	State gobreaker.State
	Trips int64

	// Requests counts calls to Do, each including its retries.
	Requests  int64
	Failures  int64
	Transient int64

	// Elapsed is the wall time spent inside Do, backoff included.
	Elapsed      time.Duration
	FirstRequest time.Time
	LastRequest  time.Time
	LastError    string
}

// Healthy reports whether the circuit is closed and never opened.
func (s ProviderStats) Healthy() bool {
	return s.State == gobreaker.StateClosed && s.Trips == 0
}

// Registry collects request outcomes per provider for the end-of-run
// summary. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	providers map[string]*providerEntry
}

type providerEntry struct {
	client *Client
	stats  ProviderStats
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*providerEntry)}
}

// Register adds client under name, replacing an earlier registration.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = &providerEntry{client: client, stats: ProviderStats{Name: name}}
}

// Record adds the outcome of one call. Unknown names are ignored.
func (r *Registry) Record(name string, elapsed time.Duration, err error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[name]
	if !ok {
		return
	}

	s := &p.stats
	s.Requests++
	s.Elapsed += elapsed
	if s.FirstRequest.IsZero() {
		s.FirstRequest = now
	}
	s.LastRequest = now
	if err != nil {
		s.Failures++
		if IsTransient(err) {
			s.Transient++
		}
		s.LastError = err.Error()
	}
}

// Stats returns the statistics of one provider.
func (r *Registry) Stats(name string) (ProviderStats, bool) {
	r.mu.Lock()
	p, ok := r.providers[name]
	r.mu.Unlock()
	if !ok {
		return ProviderStats{}, false
	}
	return r.snapshot(p), true
}

// All returns the statistics of every provider ordered by name.
func (r *Registry) All() []ProviderStats {
	r.mu.Lock()
	entries := make([]*providerEntry, 0, len(r.providers))
	for _, p := range r.providers {
		entries = append(entries, p)
	}
	r.mu.Unlock()

	out := make([]ProviderStats, len(entries))
	for i, p := range entries {
		out[i] = r.snapshot(p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// snapshot copies p's counters, then reads the breaker outside the registry
// lock: breaker observers run under the breaker's own lock.
func (r *Registry) snapshot(p *providerEntry) ProviderStats {
	r.mu.Lock()
	s := p.stats
	r.mu.Unlock()

	s.State = p.client.CircuitBreakerState()
	s.Trips = p.client.CircuitTrips()
	return s
}

// ProviderCount returns the number of registered providers.
func (r *Registry) ProviderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.providers)
}

// LogSummary writes one line per provider; unhealthy or failing providers
// are logged at warn level.
func (r *Registry) LogSummary(logger zerolog.Logger) {
	for _, s := range r.All() {
		event := logger.Info()
		if !s.Healthy() || s.Failures > 0 {
			event = logger.Warn()
		}
		event.
			Str("provider", s.Name).
			Str("circuit", s.State.String()).
			Int64("circuit_trips", s.Trips).
			Int64("requests", s.Requests).
			Int64("failures", s.Failures).
			Int64("transient_failures", s.Transient).
			Dur("time_in_requests", s.Elapsed).
			Str("last_error", s.LastError).
			Msg("provider summary")
	}
}
