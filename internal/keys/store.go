package keys

import "context"

// Store persists the usage ledger. Implementations must tolerate concurrent
// calls being serialized by the Rotator; they are never called concurrently.
type Store interface {
	Load(ctx context.Context) (Ledger, error)
	Save(ctx context.Context, ledger Ledger) error
}
