package cache

import (
	"context"
	"time"

	"github.com/zeebo/errs"
)

// ErrUnavailable wraps failures talking to the cache backend. The entity
// store never surfaces it to callers; it exists so internal code can log a
// recognizable class at low severity before degrading to a miss.
var ErrUnavailable = errs.Class("cache unavailable")

// Backend is the minimal contract a cache implementation must satisfy.
// The zero requirement is deliberate: the backing relational store is the
// source of truth and callers must keep working (slower) when the cache is
// absent, partitioned, or timing out.
type Backend interface {
	// Get returns the stored value and whether the key was present.
	// A missing key is (nil, false, nil), not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value under key. A ttl of zero or less means the
	// backend's default expiry applies.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}

// PrefixDeleter is an optional Backend capability: dropping a whole key
// namespace at once. Backends built by NewBackend implement it. It is the
// out-of-band invalidation hook for writes that bypass the entity store,
// such as bulk imports or manual fixes, where the entity-type prefix of
// the affected keys is known but the individual keys are not.
type PrefixDeleter interface {
	DeleteByPrefix(ctx context.Context, prefix string) error
}
