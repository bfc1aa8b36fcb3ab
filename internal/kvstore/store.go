// Package kvstore provides the key-value primitive the result cache persists
// through. Implementations must be safe for concurrent use.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("kv store is closed")

// Store is a byte-oriented key-value store with per-key expiry. A ttl <= 0
// means the value does not expire. Get reports ok=false for missing or
// expired keys.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and returns how many
	// were removed.
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	// PurgeExpired drops entries whose TTL has passed and returns how many
	// were removed.
	PurgeExpired(ctx context.Context) (int64, error)
	Close() error
}

func expiryFor(now time.Time, ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	at := now.Add(ttl).UTC()
	return &at
}
