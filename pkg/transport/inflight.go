package transport

import (
	"context"
	"sync"

	"github.com/rhuss/codexec/pkg/observability"
)

// InFlight caps the number of concurrent executions and keeps the cancel
// function of each one, so a shutting down server can abort runs that
// outlive the grace period.
//
// All methods are safe for concurrent access.
type InFlight struct {
	mu      sync.Mutex
	max     int
	entries map[string]context.CancelFunc
}

// NewInFlight creates a registry admitting at most max executions; max <= 0
// means unbounded.
func NewInFlight(max int) *InFlight {
	return &InFlight{
		max:     max,
		entries: make(map[string]context.CancelFunc),
	}
}

// TryAcquire registers an execution under id. It returns false without
// registering when the registry is full.
func (r *InFlight) TryAcquire(id string, cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 && len(r.entries) >= r.max {
		return false
	}
	r.entries[id] = cancel
	observability.ExecutionsInFlight.Set(float64(len(r.entries)))
	return true
}

// Release removes an execution that finished on its own.
func (r *InFlight) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
	observability.ExecutionsInFlight.Set(float64(len(r.entries)))
}

// Cancel aborts one execution. It reports whether id was registered.
func (r *InFlight) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[id]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, id)
	observability.ExecutionsInFlight.Set(float64(len(r.entries)))
	return true
}

// CancelAll aborts every registered execution and returns how many there
// were.
func (r *InFlight) CancelAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	for id, cancel := range r.entries {
		cancel()
		delete(r.entries, id)
	}
	observability.ExecutionsInFlight.Set(0)
	return n
}

// Len returns the number of executions in flight.
func (r *InFlight) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
