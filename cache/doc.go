// Package cache provides the cache key codec and the backend contract used
// by the entity store.
//
// # Overview
//
// This package exports two main interfaces and their default implementations:
//
//   - KeyCodec: renders (entity type, key columns, key values) tuples into
//     canonical cache key strings
//   - Backend: the get/set/delete contract a cache implementation must satisfy
//
// # Key Encoding Strategy
//
// The default codec sorts key columns lexically, renders each value, and
// joins the segments with "::", prefixed by the normalized entity type:
//
//	codec := cache.NewDefaultKeyCodec()
//	key, err := codec.EncodeKey("Fave", []string{"notice_id", "user_id"}, []any{5, 7})
//	// "fave::notice_id=5::user_id=7"
//
// Sorting makes the key canonical: a compound key-set encodes to the same
// string no matter how the caller ordered its columns. Values that contain
// the separator, and nil values, are rejected with ErrInvalidKey; a lookup
// keyed on a NULL column is not cacheable and must go to the backing store
// with an IS NULL predicate instead.
//
// # Backends
//
// NewBackend builds the default in-process backend (a sturdyc client, see
// internal/cacheinfra). Any store that can get, set, and delete byte slices
// by string key can be plugged in instead: Redis, memcache, or a test fake.
// The cache is strictly an accelerator. Callers of Backend must treat every
// backend error as a miss; correctness never depends on the cache layer.
package cache
