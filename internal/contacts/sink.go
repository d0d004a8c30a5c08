package contacts

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/yahyamohmuedpro99/csv-formater/internal/gemini"
)

var sinkHeader = []string{"email", "name", "message"}

// CSVSink appends accepted results to a CSV file, creating it with a header
// row on first write. Appends only, never truncates: a rerun over the same
// output file extends it.
type CSVSink struct {
	path string
}

// NewCSVSink constructs a sink writing to path.
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Path returns the output file path.
func (s *CSVSink) Path() string {
	return s.path
}

// Append writes the results as CSV rows in email, name, message order.
func (s *CSVSink) Append(ctx context.Context, results []gemini.Result) error {
	if len(results) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	info, statErr := os.Stat(s.path)
	needHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needHeader {
		if err := w.Write(sinkHeader); err != nil {
			return fmt.Errorf("write sink header: %w", err)
		}
	}
	for _, res := range results {
		if err := w.Write([]string{res.Email, res.Name, res.Message}); err != nil {
			return fmt.Errorf("write sink row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush sink: %w", err)
	}
	return nil
}
