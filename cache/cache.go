// Package cache is the best-effort key/value layer in front of the store.
// Backend failures are logged and swallowed here; callers treat every miss as "go to the store".
package cache

import (
	"context"
	"time"
)

type Cache interface {
	// Get decodes the cached value into dest. Returns false on miss, expiry or backend failure.
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	// SetNX stores value only if key is absent or expired, and reports whether it did.
	// A backend failure reports true so a broken cache never blocks the caller.
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) bool
	Del(ctx context.Context, keys ...string)
	Close() error
}
