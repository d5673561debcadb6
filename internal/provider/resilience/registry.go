package resilience

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Health states reported by Health.Status.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Breaker is a provider client guarded by a circuit breaker.
type Breaker interface {
	Name() string
	CircuitBreakerState() gobreaker.State
	CircuitBreakerCounts() gobreaker.Counts
}

// Health is a snapshot of one provider. Zero times mean "never".
type Health struct {
	Name          string
	State         gobreaker.State
	Counts        gobreaker.Counts
	Requests      uint64
	Failures      uint64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	LastError     string
}

// Status maps the circuit state: closed is healthy, half-open degraded and
// open unhealthy. Client errors never open the circuit, so a provider that
// answers 4xx stays healthy.
func (h Health) Status() string {
	switch h.State {
	case gobreaker.StateOpen:
		return StatusUnhealthy
	case gobreaker.StateHalfOpen:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}

// Registry collects request outcomes per provider for the status endpoint.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
	now     func() time.Time
}

type registryEntry struct {
	breaker  Breaker
	requests uint64
	failures uint64
	success  time.Time
	failure  time.Time
	lastErr  string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry), now: time.Now}
}

// Register adds b under its name, replacing any provider of the same name.
func (r *Registry) Register(b Breaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[b.Name()] = &registryEntry{breaker: b}
}

// Observe records the outcome of one request. A nil err is a success.
// Unknown names are ignored.
func (r *Registry) Observe(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return
	}
	e.requests++
	if err == nil {
		e.success = r.now()
		return
	}
	e.failures++
	e.failure = r.now()
	e.lastErr = err.Error()
}

// Health returns the snapshot of one provider.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Health{}, false
	}
	return e.snapshot(name), true
}

// Snapshot returns every provider, sorted by name.
func (r *Registry) Snapshot() []Health {
	r.mu.RLock()
	out := make([]Health, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, e.snapshot(name))
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Health) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	health := r.Snapshot()
	names := make([]string, len(health))
	for i, h := range health {
		names[i] = h.Name
	}
	return names
}

func (e *registryEntry) snapshot(name string) Health {
	return Health{
		Name:          name,
		State:         e.breaker.CircuitBreakerState(),
		Counts:        e.breaker.CircuitBreakerCounts(),
		Requests:      e.requests,
		Failures:      e.failures,
		LastSuccessAt: e.success,
		LastFailureAt: e.failure,
		LastError:     e.lastErr,
	}
}
