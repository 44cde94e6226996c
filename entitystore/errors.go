package entitystore

import "github.com/zeebo/errs"

// Error classes returned by Store operations. Callers are expected to branch
// on the class: absence is routine, a write failure is not, and an invalid
// key (see cache.ErrInvalidKey) is a caller bug.
var (
	// ErrNoResult reports that the requested entity does not exist. It is
	// an expected, common outcome; Lookup exposes the same condition as a
	// plain bool for callers with optional-lookup semantics.
	ErrNoResult = errs.Class("no result")

	// ErrStoreWrite reports that a backing-store write failed: constraint
	// violation, connection loss mid-transaction, or a previous-snapshot
	// mismatch. The transaction is rolled back and the cache is left either
	// untouched or invalidated-only, never stale-positive.
	ErrStoreWrite = errs.Class("store write")
)
