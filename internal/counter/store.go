// Package counter holds the shared expiring counters behind rate limiting and
// deduplication. Every operation is an atomic read-modify-write on the store,
// so concurrent retransmissions of one event cannot both pass a check.
package counter

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidTTL = errors.New("ttl must be positive")

type Store interface {
	// Incr adds one to key and returns the new count. A key that does not
	// exist or has expired starts a new window of length ttl at 1.
	Incr(ctx context.Context, key string, ttl time.Duration) (Count, error)
	// SetNX stores a presence marker for ttl and reports whether this call
	// created it.
	SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}

type Count struct {
	Value     int64
	ExpiresAt time.Time
}
