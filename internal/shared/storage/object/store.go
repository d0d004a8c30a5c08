package object

import (
	"context"
	"io"
)

// ObjectStore defines the contract for saving and retrieving run artifacts.
type ObjectStore interface {
	Save(ctx context.Context, runID string, fileName string, r io.Reader) (storageKey string, sizeBytes int64, err error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
}
