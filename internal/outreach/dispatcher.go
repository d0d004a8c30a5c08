package outreach

import (
	"context"
	"fmt"
	"time"

	"github.com/yahyamohmuedpro99/csv-formater/internal/contacts"
	"github.com/yahyamohmuedpro99/csv-formater/internal/gemini"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/metrics"
	"github.com/yahyamohmuedpro99/csv-formater/internal/shared/telemetry"
)

// Pacing for the sequential dispatch loop.
const (
	DefaultBatchSize = 5
	recordPacing     = 500 * time.Millisecond
	interBatchPacing = time.Second
)

// Sink receives accepted results chunk by chunk as the run progresses.
type Sink interface {
	Append(ctx context.Context, results []gemini.Result) error
}

// Outcome summarizes one dispatch run.
type Outcome struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
}

// Dispatcher walks records in fixed-size chunks, processing each record
// sequentially with pacing between calls and between chunks. Each chunk's
// accepted results are flushed to the sink before the next chunk starts, so a
// crash mid-run loses at most one chunk of output.
type Dispatcher struct {
	Retrier   *Retrier
	Sink      Sink
	BatchSize int

	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds a Dispatcher with the default chunk size.
func NewDispatcher(retrier *Retrier, sink Sink) *Dispatcher {
	return &Dispatcher{
		Retrier:   retrier,
		Sink:      sink,
		BatchSize: DefaultBatchSize,
	}
}

// Run processes every record and returns counts of attempts and successes.
// Cancellation between chunks stops the run and returns the partial outcome;
// a panic inside a chunk is contained to that chunk and counted as zero
// successes for its records.
func (d *Dispatcher) Run(ctx context.Context, records []contacts.Record) (Outcome, error) {
	batchSize := d.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var out Outcome
	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			telemetry.Warn("outreach.run_cancelled", map[string]any{
				"attempted": out.Attempted,
				"succeeded": out.Succeeded,
			})
			return out, err
		}

		end := start + batchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		accepted := d.processChunk(ctx, chunk, start/batchSize)
		out.Attempted += len(chunk)
		out.Succeeded += len(accepted)

		metrics.IncRecordsAttempted(len(chunk))
		metrics.IncRecordsSucceeded(len(accepted))
		metrics.IncRecordsFailed(len(chunk) - len(accepted))

		if len(accepted) > 0 {
			if err := d.Sink.Append(ctx, accepted); err != nil {
				telemetry.Error("outreach.sink_append_failed", map[string]any{
					"chunk": start / batchSize,
					"err":   err.Error(),
				})
				return out, err
			}
		}

		if end < len(records) {
			if err := d.wait(ctx, interBatchPacing); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// processChunk runs each record in the chunk through the retrier. The
// recover keeps one poisoned record from killing the whole run.
func (d *Dispatcher) processChunk(ctx context.Context, chunk []contacts.Record, index int) (accepted []gemini.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			telemetry.Error("outreach.chunk_panic", map[string]any{
				"chunk": index,
				"panic": fmt.Sprint(rec),
			})
			accepted = nil
		}
	}()

	for i, record := range chunk {
		res, ok := d.Retrier.Process(ctx, record)
		if ok {
			accepted = append(accepted, res)
		}
		if i < len(chunk)-1 {
			if err := d.wait(ctx, recordPacing); err != nil {
				return accepted
			}
		}
	}
	return accepted
}

func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) error {
	if d.sleep != nil {
		return d.sleep(ctx, delay)
	}
	return sleepCtx(ctx, delay)
}
