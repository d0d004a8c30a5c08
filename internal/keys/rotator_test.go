package keys

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestRotator(t *testing.T, pool []string, quota int, store Store) *Rotator {
	t.Helper()
	r, err := NewRotator(context.Background(), pool, quota, store)
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}
	return r
}

func TestNewRotatorEmptyPoolFails(t *testing.T) {
	_, err := NewRotator(context.Background(), nil, 10, NewMemoryStore())
	if !errors.Is(err, ErrNoKeys) {
		t.Fatalf("expected ErrNoKeys, got %v", err)
	}
}

func TestAcquireChargesAndPersists(t *testing.T) {
	store := NewMemoryStore()
	r := newTestRotator(t, []string{"key-a"}, 10, store)

	for i := 0; i < 3; i++ {
		key, err := r.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if key != "key-a" {
			t.Fatalf("expected key-a, got %q", key)
		}
	}

	ledger, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := ledger["key-a"].CallsUsed; got != 3 {
		t.Fatalf("expected 3 calls persisted, got %d", got)
	}
}

func TestAcquireSticksToServingKey(t *testing.T) {
	r := newTestRotator(t, []string{"key-a", "key-b"}, 10, NewMemoryStore())

	for i := 0; i < 5; i++ {
		key, err := r.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if key != "key-a" {
			t.Fatalf("expected key-a on call %d, got %q", i, key)
		}
	}
}

func TestAcquireRotatesPastExhaustedKey(t *testing.T) {
	r := newTestRotator(t, []string{"key-a", "key-b"}, 2, NewMemoryStore())

	want := []string{"key-a", "key-a", "key-b", "key-b"}
	for i, expected := range want {
		key, err := r.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		if key != expected {
			t.Fatalf("call %d: expected %q, got %q", i, expected, key)
		}
	}

	if _, err := r.Acquire(context.Background()); !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity, got %v", err)
	}
}

func TestAcquireFullPoolCapacity(t *testing.T) {
	pool := []string{"key-a", "key-b", "key-c"}
	quota := 4
	r := newTestRotator(t, pool, quota, NewMemoryStore())

	for i := 0; i < len(pool)*quota; i++ {
		if _, err := r.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d of %d: %v", i+1, len(pool)*quota, err)
		}
	}
	if _, err := r.Acquire(context.Background()); !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity after capacity, got %v", err)
	}
}

func TestAcquireWindowResetRestoresCapacity(t *testing.T) {
	r := newTestRotator(t, []string{"key-a"}, 1, NewMemoryStore())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	if _, err := r.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := r.Acquire(context.Background()); !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity, got %v", err)
	}

	r.now = func() time.Time { return base.Add(WindowDuration + time.Minute) }
	key, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after window: %v", err)
	}
	if key != "key-a" {
		t.Fatalf("expected key-a, got %q", key)
	}

	usage := r.Usage()
	if len(usage) != 1 || usage[0].CallsUsed != 1 {
		t.Fatalf("expected fresh window with 1 call, got %+v", usage)
	}
}

func TestMarkExhaustedExcludesKey(t *testing.T) {
	r := newTestRotator(t, []string{"key-a", "key-b"}, 100, NewMemoryStore())

	r.MarkExhausted(context.Background(), "key-a")

	key, err := r.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if key != "key-b" {
		t.Fatalf("expected key-b after exhausting key-a, got %q", key)
	}
}

func TestRotatorRestoresLedgerFromStore(t *testing.T) {
	store := NewMemoryStore()
	first := newTestRotator(t, []string{"key-a", "key-b"}, 2, store)
	for i := 0; i < 2; i++ {
		if _, err := first.Acquire(context.Background()); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}

	second := newTestRotator(t, []string{"key-a", "key-b"}, 2, store)
	key, err := second.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire after restore: %v", err)
	}
	if key != "key-b" {
		t.Fatalf("expected restored rotator to skip drained key-a, got %q", key)
	}
}

func TestUsageReportsFingerprintsNotKeys(t *testing.T) {
	r := newTestRotator(t, []string{"secret-key-material"}, 5, NewMemoryStore())
	if _, err := r.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	usage := r.Usage()
	if len(usage) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(usage))
	}
	snap := usage[0]
	if snap.Key == "secret-key-material" {
		t.Fatalf("raw key leaked into snapshot")
	}
	if snap.CallsUsed != 1 || snap.Limit != 5 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestAcquireConcurrentNeverOversells(t *testing.T) {
	pool := []string{"key-a", "key-b"}
	quota := 25
	r := newTestRotator(t, pool, quota, NewMemoryStore())

	total := len(pool) * quota
	var wg sync.WaitGroup
	errs := make(chan error, total)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Acquire(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Acquire within capacity failed: %v", err)
		}
	}
	if _, err := r.Acquire(context.Background()); !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("expected ErrNoCapacity once capacity is spent, got %v", err)
	}
}
