// Package history implements the bounded per-source rate rings that sit
// between the pollers (C1) and the aggregator (C2). Each ring is
// protected by its own short-critical-section mutex: writers (the owning
// poller) are the only mutators, readers (the aggregator) take a
// point-in-time snapshot and release the lock before doing any
// arithmetic, mirroring the pattern circuitbreaker.CircuitBreaker uses
// for its bounded metricsHistory.
package history

import (
	"sync"
	"time"

	"github.com/concordium/eur2ccd-service/internal/model"
)

// Ring is a fixed-capacity, insertion-ordered buffer of valid rates for
// one source, plus health counters. Oldest entries are evicted first
// once the ring is full (spec.md invariant 2: monotone eviction). The
// bounded history itself is model.SourceHistory; Ring adds the mutex
// and the eviction policy around it.
type Ring struct {
	mu       sync.Mutex
	capacity int
	history  model.SourceHistory
}

// NewRing constructs an empty ring for the given source with the
// configured maximum number of retained rates (spec.md's
// max-rates-saved, default 60).
func NewRing(source string, capacity int) *Ring {
	if capacity <= 0 {
		capacity = 60
	}
	return &Ring{
		capacity: capacity,
		history: model.SourceHistory{
			Source: source,
			Rates:  make([]model.Rate, 0, capacity),
		},
	}
}

// Push records a successful reading. Two consecutive identical readings
// both get recorded, since the ring is a time series, not a set
// (spec.md 4.1 contract).
func (r *Ring) Push(rate model.Rate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.history.Rates) == r.capacity {
		copy(r.history.Rates, r.history.Rates[1:])
		r.history.Rates = r.history.Rates[:len(r.history.Rates)-1]
	}
	r.history.Rates = append(r.history.Rates, rate)
	r.history.LastSuccessAt = time.Now()
	r.history.ConsecutiveErrors = 0
}

// RecordFailure leaves the history untouched and bumps the failure
// counters (spec.md invariant 3 and the C1 failure path).
func (r *Ring) RecordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history.ConsecutiveErrors++
	r.history.TotalErrors++
}

// Snapshot returns a defensive copy of the current rates. Callers must
// not retain a reference into the ring's internal slice.
func (r *Ring) Snapshot() []model.Rate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Rate, len(r.history.Rates))
	copy(out, r.history.Rates)
	return out
}

// Len reports the current number of stored rates.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history.Rates)
}

// Source returns the ring's owning source identifier.
func (r *Ring) Source() string { return r.history.Source }

// Health returns the last-success timestamp and failure counters,
// consumed by the per-source Prometheus gauges.
func (r *Ring) Health() (lastSuccessAt time.Time, consecutiveErrors, totalErrors int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.history.LastSuccessAt, r.history.ConsecutiveErrors, r.history.TotalErrors
}

// Store is the fixed-size mapping from source identifier to its ring,
// constructed once at startup and never resized (spec.md design note
// "shared history without a central registry").
type Store struct {
	rings map[string]*Ring
}

// NewStore builds a Store with one ring per named source, all sharing the
// same capacity.
func NewStore(sources []string, capacity int) *Store {
	rings := make(map[string]*Ring, len(sources))
	for _, s := range sources {
		rings[s] = NewRing(s, capacity)
	}
	return &Store{rings: rings}
}

// Ring returns the ring for a source, or nil if the source was never
// registered.
func (s *Store) Ring(source string) *Ring {
	return s.rings[source]
}

// Sources returns the registered source identifiers.
func (s *Store) Sources() []string {
	out := make([]string, 0, len(s.rings))
	for k := range s.rings {
		out = append(out, k)
	}
	return out
}
