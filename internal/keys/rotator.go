package keys

import (
	"context"
	"sync"
	"time"

	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/metrics"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/telemetry"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/util"
)

const (
	// DefaultQuota is a conservative margin below the provider's published
	// daily request cap per key.
	DefaultQuota = 1450

	// WindowDuration is the rolling period after which a key's counter resets.
	WindowDuration = 24 * time.Hour
)

// Rotator owns the key pool and the usage ledger. It hands out the next key
// with remaining quota, round-robin, and persists the ledger after every
// mutation. All access is serialized: an acquisition is an atomic
// read-check-increment-persist unit.
type Rotator struct {
	mu     sync.Mutex
	pool   []string
	quota  int
	cursor int
	ledger Ledger
	store  Store
	now    func() time.Time
}

// NewRotator constructs a Rotator over the given pool, restoring the ledger
// from the store. An empty pool is a configuration error and fails fast.
func NewRotator(ctx context.Context, pool []string, quota int, store Store) (*Rotator, error) {
	if len(pool) == 0 {
		return nil, ErrNoKeys
	}
	if quota <= 0 {
		quota = DefaultQuota
	}
	if store == nil {
		store = NewMemoryStore()
	}

	ledger, err := store.Load(ctx)
	if err != nil {
		telemetry.Warn("keys.ledger.load_failed", map[string]any{"error": err.Error()})
		ledger = Ledger{}
	}
	if ledger == nil {
		ledger = Ledger{}
	}

	return &Rotator{
		pool:   append([]string(nil), pool...),
		quota:  quota,
		ledger: ledger,
		store:  store,
		now:    time.Now,
	}, nil
}

// PoolSize returns the number of keys in the pool.
func (r *Rotator) PoolSize() int {
	return len(r.pool)
}

// Quota returns the per-key call limit per window.
func (r *Rotator) Quota() int {
	return r.quota
}

// Acquire returns the next key with remaining quota, charging one call
// against it. The scan starts at the cursor and visits at most the whole
// pool; the cursor sticks to the serving key so consecutive calls drain one
// key before moving on, and advances past exhausted entries. Returns
// ErrNoCapacity when every key has reached its quota.
func (r *Rotator) Acquire(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for attempts := 0; attempts < len(r.pool); attempts++ {
		key := r.pool[r.cursor]
		rec := r.ledger[key]
		if rec.WindowStart.IsZero() {
			rec.WindowStart = now
		}
		if now.Sub(rec.WindowStart) > WindowDuration {
			rec.CallsUsed = 0
			rec.WindowStart = now
		}
		if rec.CallsUsed < r.quota {
			rec.CallsUsed++
			r.ledger[key] = rec
			r.persist(ctx)
			return key, nil
		}
		r.ledger[key] = rec
		r.cursor = (r.cursor + 1) % len(r.pool)
		metrics.IncKeyRotations()
	}
	return "", ErrNoCapacity
}

// MarkExhausted forces the key's counter to the quota for the current
// window, excluding it from rotation until the window rolls over. Used when
// the provider reports a quota error the local accounting did not predict;
// the provider's view is authoritative.
func (r *Rotator) MarkExhausted(ctx context.Context, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := r.ledger[key]
	if rec.WindowStart.IsZero() {
		rec.WindowStart = r.now()
	}
	rec.CallsUsed = r.quota
	r.ledger[key] = rec
	metrics.IncKeysExhausted()
	telemetry.Warn("keys.exhausted", map[string]any{
		"key":        util.KeyFingerprint(key),
		"calls_used": rec.CallsUsed,
	})
	r.persist(ctx)
}

// Usage returns a fingerprinted snapshot of every pool key's ledger state.
func (r *Rotator) Usage() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]Snapshot, 0, len(r.pool))
	for _, key := range r.pool {
		rec := r.ledger[key]
		used := rec.CallsUsed
		start := rec.WindowStart
		if start.IsZero() {
			start = now
			used = 0
		}
		if now.Sub(start) > WindowDuration {
			start = now
			used = 0
		}
		out = append(out, Snapshot{
			Key:       util.KeyFingerprint(key),
			CallsUsed: used,
			Limit:     r.quota,
			ResetsAt:  start.Add(WindowDuration),
		})
	}
	return out
}

// persist writes through to the store. A failed save is logged and ignored:
// quota accounting is a safety margin, not a hard guarantee, and must never
// abort in-flight processing. Caller holds r.mu.
func (r *Rotator) persist(ctx context.Context) {
	if err := r.store.Save(ctx, r.ledger.Clone()); err != nil {
		telemetry.Warn("keys.ledger.save_failed", map[string]any{"error": err.Error()})
	}
}
