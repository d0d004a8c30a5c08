package keys

import "errors"

// ErrNoKeys indicates the rotator was constructed with an empty key pool.
var ErrNoKeys = errors.New("no API keys configured")

// ErrNoCapacity indicates every key in the pool has reached its quota for
// the current window. Callers must not retry immediately.
var ErrNoCapacity = errors.New("all API keys exhausted")
