package keys

import (
	"context"
	"sync"
)

// MemoryStore keeps the ledger in memory. Used in tests and when no durable
// store is configured.
type MemoryStore struct {
	mu     sync.Mutex
	ledger Ledger
}

// NewMemoryStore constructs an empty in-memory ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ledger: Ledger{}}
}

func (s *MemoryStore) Load(ctx context.Context) (Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, ledger Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger = ledger.Clone()
	return nil
}

var _ Store = (*MemoryStore)(nil)
