package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	recordsAttemptedTotal atomic.Uint64
	recordsSucceededTotal atomic.Uint64
	recordsFailedTotal    atomic.Uint64
	keyRotationsTotal     atomic.Uint64
	keysExhaustedTotal    atomic.Uint64

	generationDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncRecordsAttempted adds n to the attempted-record counter.
func IncRecordsAttempted(n int) {
	if n > 0 {
		recordsAttemptedTotal.Add(uint64(n))
	}
}

// IncRecordsSucceeded adds n to the succeeded-record counter.
func IncRecordsSucceeded(n int) {
	if n > 0 {
		recordsSucceededTotal.Add(uint64(n))
	}
}

// IncRecordsFailed adds n to the failed-record counter.
func IncRecordsFailed(n int) {
	if n > 0 {
		recordsFailedTotal.Add(uint64(n))
	}
}

// IncKeyRotations increments the counter of quota-forced key rotations.
func IncKeyRotations() {
	keyRotationsTotal.Add(1)
}

// IncKeysExhausted increments the counter of keys marked exhausted.
func IncKeysExhausted() {
	keysExhaustedTotal.Add(1)
}

// ObserveGenerationDurationMs records a generation call duration in milliseconds.
func ObserveGenerationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	generationDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "records_attempted_total", "Total contact records attempted", recordsAttemptedTotal.Load())
	writeCounter(&buf, "records_succeeded_total", "Total contact records with a generated message", recordsSucceededTotal.Load())
	writeCounter(&buf, "records_failed_total", "Total contact records dropped", recordsFailedTotal.Load())
	writeCounter(&buf, "key_rotations_total", "Total quota-forced API key rotations", keyRotationsTotal.Load())
	writeCounter(&buf, "keys_exhausted_total", "Total API keys marked exhausted", keysExhaustedTotal.Load())
	writeHistogram(&buf, "generation_duration_ms", "Generation call duration in milliseconds", generationDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
