package outreach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/yahyamohmuedpro99/csv-formater/internal/gemini"
	"github.com/yahyamohmuedpro99/csv-formater/internal/keys"
)

type fakeClient struct {
	mu    sync.Mutex
	calls []string
	fn    func(record map[string]string, apiKey string) (gemini.Result, error)
}

func (f *fakeClient) Generate(ctx context.Context, record map[string]string, apiKey string) (gemini.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, apiKey)
	f.mu.Unlock()
	return f.fn(record, apiKey)
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestRotator(t *testing.T, pool []string, quota int) *keys.Rotator {
	t.Helper()
	r, err := keys.NewRotator(context.Background(), pool, quota, keys.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}
	return r
}

func noSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return ctx.Err()
	}
}

func TestProcessQuotaFailureRotatesToNextKey(t *testing.T) {
	client := &fakeClient{fn: func(record map[string]string, apiKey string) (gemini.Result, error) {
		if apiKey == "key-a" {
			return gemini.Result{}, fmt.Errorf("%w: status 429", gemini.ErrQuotaExceeded)
		}
		return gemini.Result{Email: record["email"], Name: record["name"], Message: "Hello"}, nil
	}}

	var delays []time.Duration
	retrier := NewRetrier(newTestRotator(t, []string{"key-a", "key-b"}, 100), client)
	retrier.sleep = noSleep(&delays)

	res, ok := retrier.Process(context.Background(), map[string]string{"email": "a@b.c", "name": "A"})
	if !ok {
		t.Fatal("expected success on second key")
	}
	if res.Email != "a@b.c" {
		t.Fatalf("unexpected result %+v", res)
	}
	if client.callCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", client.callCount())
	}
	if len(delays) != 1 || delays[0] != time.Second {
		t.Fatalf("expected one 1s backoff, got %v", delays)
	}
}

func TestProcessQuotaBackoffDoubles(t *testing.T) {
	client := &fakeClient{fn: func(record map[string]string, apiKey string) (gemini.Result, error) {
		return gemini.Result{}, fmt.Errorf("%w: status 429", gemini.ErrQuotaExceeded)
	}}

	var delays []time.Duration
	retrier := NewRetrier(newTestRotator(t, []string{"key-a", "key-b", "key-c"}, 100), client)
	retrier.sleep = noSleep(&delays)

	if _, ok := retrier.Process(context.Background(), map[string]string{"email": "a@b.c"}); ok {
		t.Fatal("expected failure when every key hits quota")
	}
	if client.callCount() != DefaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultMaxAttempts, client.callCount())
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d backoffs, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("backoff %d: expected %s, got %s", i, want[i], delays[i])
		}
	}
}

func TestProcessParseFailureDoesNotRetry(t *testing.T) {
	client := &fakeClient{fn: func(record map[string]string, apiKey string) (gemini.Result, error) {
		return gemini.Result{}, &gemini.ParseError{Segments: 2}
	}}

	retrier := NewRetrier(newTestRotator(t, []string{"key-a"}, 100), client)
	retrier.sleep = noSleep(nil)

	if _, ok := retrier.Process(context.Background(), map[string]string{"email": "a@b.c"}); ok {
		t.Fatal("expected parse failure to skip the record")
	}
	if client.callCount() != 1 {
		t.Fatalf("expected a single call, got %d", client.callCount())
	}
}

func TestProcessTransientRetriesImmediately(t *testing.T) {
	var n int
	client := &fakeClient{fn: func(record map[string]string, apiKey string) (gemini.Result, error) {
		n++
		if n < 3 {
			return gemini.Result{}, errors.New("gemini status 500")
		}
		return gemini.Result{Email: record["email"], Name: "A", Message: "Hello"}, nil
	}}

	var delays []time.Duration
	retrier := NewRetrier(newTestRotator(t, []string{"key-a"}, 100), client)
	retrier.sleep = noSleep(&delays)

	if _, ok := retrier.Process(context.Background(), map[string]string{"email": "a@b.c"}); !ok {
		t.Fatal("expected third attempt to succeed")
	}
	if len(delays) != 0 {
		t.Fatalf("transient retries should not back off, got %v", delays)
	}
}

func TestProcessTransientExhaustsAttempts(t *testing.T) {
	client := &fakeClient{fn: func(record map[string]string, apiKey string) (gemini.Result, error) {
		return gemini.Result{}, errors.New("gemini status 500")
	}}

	retrier := NewRetrier(newTestRotator(t, []string{"key-a"}, 100), client)
	retrier.sleep = noSleep(nil)

	if _, ok := retrier.Process(context.Background(), map[string]string{"email": "a@b.c"}); ok {
		t.Fatal("expected failure after attempt budget")
	}
	if client.callCount() != DefaultMaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultMaxAttempts, client.callCount())
	}
}

func TestProcessPoolExhaustedFailsWithoutCalling(t *testing.T) {
	client := &fakeClient{fn: func(record map[string]string, apiKey string) (gemini.Result, error) {
		return gemini.Result{Email: record["email"]}, nil
	}}

	rotator := newTestRotator(t, []string{"key-a"}, 100)
	rotator.MarkExhausted(context.Background(), "key-a")

	retrier := NewRetrier(rotator, client)
	retrier.sleep = noSleep(nil)

	if _, ok := retrier.Process(context.Background(), map[string]string{"email": "a@b.c"}); ok {
		t.Fatal("expected failure with no capacity")
	}
	if client.callCount() != 0 {
		t.Fatalf("expected no generation calls, got %d", client.callCount())
	}
}
