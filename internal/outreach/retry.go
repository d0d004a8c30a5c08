package outreach

import (
	"context"
	"errors"
	"time"

	"github.com/yahyamohmuedpro99/csv-formater/internal/gemini"
	"github.com/yahyamohmuedpro99/csv-formater/internal/keys"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/telemetry"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/util"
)

// Retry policy for one record.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Retrier drives one record through generation with bounded retries. Quota
// failures exhaust the serving key and back off before retrying on the next
// key; transient failures retry immediately; parse failures never retry.
type Retrier struct {
	Rotator     *keys.Rotator
	Client      gemini.Client
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier builds a Retrier with the default attempt budget.
func NewRetrier(rotator *keys.Rotator, client gemini.Client) *Retrier {
	return &Retrier{
		Rotator:     rotator,
		Client:      client,
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
	}
}

// Process attempts to generate a message for one record. The second return
// reports whether a result was produced; a false return means the record was
// skipped after the attempt budget, a parse failure, or pool exhaustion.
func (r *Retrier) Process(ctx context.Context, record map[string]string) (gemini.Result, bool) {
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	baseDelay := r.BaseDelay
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return gemini.Result{}, false
		}

		key, err := r.Rotator.Acquire(ctx)
		if err != nil {
			if errors.Is(err, keys.ErrNoCapacity) {
				telemetry.Warn("outreach.pool_exhausted", map[string]any{
					"email": record["email"],
				})
			} else {
				telemetry.Error("outreach.acquire_failed", map[string]any{
					"email": record["email"],
					"err":   err.Error(),
				})
			}
			return gemini.Result{}, false
		}

		res, err := r.Client.Generate(ctx, record, key)
		if err == nil {
			return res, true
		}

		switch {
		case gemini.IsQuota(err):
			r.Rotator.MarkExhausted(ctx, key)
			delay := baseDelay << (attempt - 1)
			telemetry.Warn("outreach.quota_backoff", map[string]any{
				"email":    record["email"],
				"key":      util.KeyFingerprint(key),
				"attempt":  attempt,
				"delay_ms": delay.Milliseconds(),
			})
			if attempt < maxAttempts {
				if sleepErr := r.wait(ctx, delay); sleepErr != nil {
					return gemini.Result{}, false
				}
			}
		case gemini.IsParse(err):
			telemetry.Warn("outreach.parse_failed", map[string]any{
				"email": record["email"],
				"error": err.Error(),
			})
			return gemini.Result{}, false
		default:
			telemetry.Warn("outreach.transient_failure", map[string]any{
				"email":   record["email"],
				"attempt": attempt,
				"error":   err.Error(),
			})
			// Transient errors retry immediately on the loop.
		}
	}

	telemetry.Warn("outreach.record_skipped", map[string]any{
		"email":    record["email"],
		"attempts": maxAttempts,
	})
	return gemini.Result{}, false
}

func (r *Retrier) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
