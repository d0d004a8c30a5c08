package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileStore persists the ledger as a JSON document on disk, one entry per
// key: {"<key>": {"callsUsed": n, "windowStart": "<RFC 3339>"}}.
type FileStore struct {
	path string
}

// NewFileStore constructs a file-backed ledger store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the ledger from disk. A missing or corrupt file yields an empty
// ledger and a nil error: quota accounting restarts from zero rather than
// blocking the run.
func (s *FileStore) Load(ctx context.Context) (Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Ledger{}, nil
		}
		return Ledger{}, nil
	}

	var ledger Ledger
	if err := json.Unmarshal(data, &ledger); err != nil {
		return Ledger{}, nil
	}
	if ledger == nil {
		ledger = Ledger{}
	}
	return ledger, nil
}

// Save writes the ledger to disk, replacing the previous contents via a
// temp-file rename so a crash mid-write never corrupts the store.
func (s *FileStore) Save(ctx context.Context, ledger Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename ledger: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
