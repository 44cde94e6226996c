// Package entitystore implements a write-through cache-coherent store for
// typed entities backed by a relational table.
//
// # Overview
//
// One Store[T] serves one entity type, described as data by a Schema[T]:
// table name, primary key-set, unique key-sets, and a column-value extractor.
// Entity-specific behavior is composed on via post-commit hooks, not
// inheritance.
//
//	store, err := entitystore.New(db, backend, codec, entitystore.Schema[Notice]{
//		Type:          "Notice",
//		Table:         "notice",
//		Primary:       entitystore.KeySet{Name: "id", Columns: []string{"id"}},
//		Unique:        []entitystore.KeySet{{Name: "uri", Columns: []string{"uri"}}},
//		Columns:       []string{"id", "uri", "content"},
//		AutoIncrement: true,
//		Values: func(n *Notice) map[string]any {
//			return map[string]any{"id": n.ID, "uri": n.URI, "content": n.Content}
//		},
//	}, entitystore.DefaultConfig(), logger)
//
// # Coherency Protocol
//
// Reads consult the cache first and fall back to the backing store; a row
// fetched from the store is written back under every key-set, and a
// confirmed miss is remembered with a TTL-bounded negative marker under the
// requested key only. Inserts and updates populate fresh snapshots after
// commit; updates invalidate the previous snapshot's keys before writing;
// deletes invalidate before the row is removed. No code path leaves a stale
// positive entry behind a committed write.
//
// # Failure Semantics
//
// Backing-store errors propagate (ErrStoreWrite for writes); retries belong
// to the caller. Cache errors never propagate: the store degrades to
// always-miss and logs at debug level.
package entitystore
