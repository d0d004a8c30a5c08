package keys

import "time"

// UsageRecord tracks one API key's consumption within its current quota window.
type UsageRecord struct {
	CallsUsed   int       `json:"callsUsed"`
	WindowStart time.Time `json:"windowStart"`
}

// Ledger maps an API key to its usage record. It is the only persisted state
// of the rotation core.
type Ledger map[string]UsageRecord

// Clone returns an independent copy of the ledger.
func (l Ledger) Clone() Ledger {
	out := make(Ledger, len(l))
	for k, v := range l {
		out[k] = v
	}
	return out
}

// Snapshot is a read-only view of one key's usage, safe to expose over HTTP.
// Key is a fingerprint, never the raw key material.
type Snapshot struct {
	Key       string    `json:"key"`
	CallsUsed int       `json:"callsUsed"`
	Limit     int       `json:"limit"`
	ResetsAt  time.Time `json:"resetsAt"`
}
