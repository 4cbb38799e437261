// Package cache provides the short-TTL key/value store used for metadata lookups.
package cache

import (
	"context"
	"time"
)

// Cache is a string key/value store with per-entry expiry.
// Get reports ok=false for absent or expired keys.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
