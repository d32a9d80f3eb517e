package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFailureThreshold is the number of consecutive failures after which
// an instance is marked unhealthy.
const DefaultFailureThreshold = 3

// Config contains registry tuning knobs.
type Config struct {
	// FailureThreshold is the number of consecutive failed probes or
	// exchanges before an instance is flipped unhealthy.
	// Default: 3
	FailureThreshold int
}

// Registry is the concurrent store of backend instances grouped by kind.
//
// A single mutex serializes all mutations (register, unregister, health
// updates) so that SelectHealthy never observes a torn record. The lock is
// held only for the duration of the mutation, never across upstream I/O.
type Registry struct {
	mu sync.RWMutex

	// buckets preserves registration order per kind for deterministic
	// round-robin.
	buckets map[Kind][]*record
	byID    map[string]*record

	// cursors hold the per-kind round-robin position used to break ties
	// between equally loaded instances.
	cursors map[Kind]uint64

	failureThreshold int
}

// New creates an empty registry.
func New(cfg Config) *Registry {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}

	return &Registry{
		buckets:          make(map[Kind][]*record),
		byID:             make(map[string]*record),
		cursors:          make(map[Kind]uint64),
		failureThreshold: threshold,
	}
}

// Register adds a backend instance under the given kind and returns its
// snapshot. The URL is validated and normalized first; a malformed URL yields
// an InvalidURLError and an invalid kind an UnknownKindError.
//
// Registration is idempotent: registering an already-present (kind, baseURL)
// pair returns the existing instance with its original id rather than an
// error, so retry-happy operators converge on a single record.
//
// New instances start healthy. They are eligible for traffic immediately and
// stay that way until the first probe or exchange disproves it.
func (r *Registry) Register(kind Kind, rawURL string) (Instance, error) {
	if !kind.Valid() {
		return Instance{}, &UnknownKindError{Value: string(kind)}
	}

	baseURL, err := NormalizeBaseURL(rawURL)
	if err != nil {
		return Instance{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.buckets[kind] {
		if rec.baseURL == baseURL {
			return rec.snapshot(), nil
		}
	}

	rec := &record{
		id:      kind.instanceID(uuid.NewString()),
		kind:    kind,
		baseURL: baseURL,
		healthy: true,
	}
	r.buckets[kind] = append(r.buckets[kind], rec)
	r.byID[rec.id] = rec

	slog.Info("backend registered",
		"id", rec.id,
		"kind", kind,
		"url", baseURL,
	)

	return rec.snapshot(), nil
}

// Unregister removes the instance registered under (kind, rawURL).
// It returns a NotFoundError when no such instance exists.
//
// Removal does not disturb requests already dispatched to the instance;
// the in-flight count is informational, not a barrier.
func (r *Registry) Unregister(kind Kind, rawURL string) error {
	baseURL, err := NormalizeBaseURL(rawURL)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.buckets[kind] {
		if rec.baseURL == baseURL {
			r.removeLocked(rec)
			return nil
		}
	}
	return &NotFoundError{Kind: kind, BaseURL: baseURL}
}

// UnregisterByID removes the instance with the given id regardless of kind.
func (r *Registry) UnregisterByID(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	r.removeLocked(rec)
	return nil
}

func (r *Registry) removeLocked(rec *record) {
	bucket := r.buckets[rec.kind]
	for i, candidate := range bucket {
		if candidate == rec {
			r.buckets[rec.kind] = append(bucket[:i:i], bucket[i+1:]...)
			break
		}
	}
	delete(r.byID, rec.id)

	slog.Info("backend unregistered",
		"id", rec.id,
		"kind", rec.kind,
		"url", rec.baseURL,
	)
}

// List returns snapshots of every instance of the given kind in registration
// order. The slice is a copy; callers may keep it.
func (r *Registry) List(kind Kind) []Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(kind)
}

func (r *Registry) listLocked(kind Kind) []Instance {
	bucket := r.buckets[kind]
	out := make([]Instance, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, rec.snapshot())
	}
	return out
}

// ListAll returns snapshots for every known kind, including kinds with no
// registered instances (empty, non-nil slices).
func (r *Registry) ListAll() map[Kind][]Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Kind][]Instance, len(AllKinds()))
	for _, kind := range AllKinds() {
		out[kind] = r.listLocked(kind)
	}
	return out
}

// SelectHealthy picks one healthy instance of the given kind and increments
// its in-flight count. Every successful call must be paired with a Release
// once the forwarded exchange finishes.
//
// Selection policy: the instance with the fewest in-flight requests wins;
// ties are broken by a per-kind round-robin cursor so that equally loaded
// instances share traffic instead of starving high-index entries.
//
// Returns a NoHealthyBackendError when the healthy subset is empty.
func (r *Registry) SelectHealthy(kind Kind) (Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.buckets[kind]

	var candidates []*record
	minInFlight := 0
	for _, rec := range bucket {
		if !rec.healthy {
			continue
		}
		switch {
		case len(candidates) == 0 || rec.inFlight < minInFlight:
			candidates = candidates[:0]
			candidates = append(candidates, rec)
			minInFlight = rec.inFlight
		case rec.inFlight == minInFlight:
			candidates = append(candidates, rec)
		}
	}

	if len(candidates) == 0 {
		return Instance{}, &NoHealthyBackendError{Kind: kind, Registered: len(bucket)}
	}

	cursor := r.cursors[kind]
	r.cursors[kind] = cursor + 1

	chosen := candidates[cursor%uint64(len(candidates))]
	chosen.inFlight++
	return chosen.snapshot(), nil
}

// Release decrements the in-flight count taken by SelectHealthy.
// Releasing an instance that was unregistered mid-flight is a no-op.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.byID[id]; ok && rec.inFlight > 0 {
		rec.inFlight--
	}
}

// ReportOutcome records the result of one forwarded exchange.
//
// On failure the consecutive-failure counter is incremented and, once it
// reaches the configured threshold, the instance is flipped unhealthy. On
// success the counter resets and the instance is marked healthy again, so a
// transiently failing backend self-heals without waiting for the next probe.
func (r *Registry) ReportOutcome(id string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.byID[id]; ok {
		r.applyOutcomeLocked(rec, success)
	}
}

// ReportProbe records the result of one health probe and returns the updated
// consecutive-failure count, which the health monitor uses for eviction
// decisions. Latency is recorded for observability on success.
func (r *Registry) ReportProbe(id string, success bool, latency time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return 0, &NotFoundError{ID: id}
	}

	r.applyOutcomeLocked(rec, success)
	rec.lastCheckedAt = time.Now()
	if success {
		rec.lastLatency = latency
	}
	return rec.consecutiveFailures, nil
}

func (r *Registry) applyOutcomeLocked(rec *record, success bool) {
	if success {
		if !rec.healthy || rec.consecutiveFailures > 0 {
			slog.Info("backend recovered",
				"id", rec.id,
				"kind", rec.kind,
				"previous_failures", rec.consecutiveFailures,
			)
		}
		rec.healthy = true
		rec.consecutiveFailures = 0
		return
	}

	rec.consecutiveFailures++
	if rec.consecutiveFailures >= r.failureThreshold && rec.healthy {
		rec.healthy = false
		slog.Warn("backend marked unhealthy",
			"id", rec.id,
			"kind", rec.kind,
			"url", rec.baseURL,
			"consecutive_failures", rec.consecutiveFailures,
		)
	}
}

// KindStats summarizes registry membership for one kind.
type KindStats struct {
	Registered int
	Healthy    int
	InFlight   int
}

// Stats returns per-kind membership counts for metrics and readiness checks.
func (r *Registry) Stats() map[Kind]KindStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Kind]KindStats, len(AllKinds()))
	for _, kind := range AllKinds() {
		stats := KindStats{}
		for _, rec := range r.buckets[kind] {
			stats.Registered++
			if rec.healthy {
				stats.Healthy++
			}
			stats.InFlight += rec.inFlight
		}
		out[kind] = stats
	}
	return out
}
