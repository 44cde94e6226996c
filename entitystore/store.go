package entitystore

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"time"

	"github.com/uptrace/bun"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-store/cache"
)

// Hook runs after a mutation's transaction has committed. The row is already
// durable when a hook sees it; a hook error propagates to the caller but
// does not undo the write.
type Hook[T any] func(ctx context.Context, record *T) error

// Store is a write-through cache-coherent store for one entity type.
// The backing relational store is the single source of truth; the cache is a
// best-effort accelerator that may be absent or unreachable without breaking
// correctness, only latency.
//
// Every mutation keeps the cache entries of every key-set coherent: inserts
// and updates populate known-fresh snapshots, deletes invalidate before the
// row is removed, and confirmed misses are remembered with a bounded-TTL
// negative marker.
type Store[T any] struct {
	db     bun.IDB
	cache  cache.Backend
	codec  cache.KeyCodec
	schema Schema[T]
	cfg    Config
	log    *zap.Logger

	afterInsert []Hook[T]
}

// New builds a Store from its collaborators. backend may be nil, in which
// case every read goes to the backing store. A nil codec selects the default
// key codec and a nil logger discards log output.
func New[T any](db bun.IDB, backend cache.Backend, codec cache.KeyCodec, schema Schema[T], cfg Config, log *zap.Logger) (*Store[T], error) {
	if db == nil {
		return nil, errs.New("entitystore: nil database")
	}
	if err := schema.Validate(); err != nil {
		return nil, errs.Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(err)
	}
	if codec == nil {
		codec = cache.NewDefaultKeyCodec()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Store[T]{
		db:     db,
		cache:  backend,
		codec:  codec,
		schema: schema,
		cfg:    cfg,
		log:    log.Named("entitystore").With(zap.String("entity", schema.Type)),
	}, nil
}

// Schema returns the descriptor the store was built around.
func (s *Store[T]) Schema() Schema[T] {
	return s.schema
}

// OnInsert registers a post-commit hook for successful inserts. This is how
// per-entity side effects (e.g. fanning a new notice out to subscriber
// inboxes) are composed onto the generic store.
func (s *Store[T]) OnInsert(hook Hook[T]) {
	s.afterInsert = append(s.afterInsert, hook)
}

// EnsureTable creates the entity's table if it does not exist yet.
func (s *Store[T]) EnsureTable(ctx context.Context) error {
	_, err := s.db.NewCreateTable().Model((*T)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return ErrStoreWrite.Wrap(err)
	}
	return nil
}

// Lookup fetches the entity identified by the named key-set. values must be
// given in the key-set's declared column order. Absence is reported as
// found=false, not as an error; callers wanting mandatory-existence
// semantics use GetByKey.
//
// The cache is consulted first. On a confirmed miss the absence is cached
// under the requested key only, with the configured negative TTL. On a hit
// from the backing store every key-set entry of the entity is populated,
// since the snapshot is known fresh.
func (s *Store[T]) Lookup(ctx context.Context, keySet string, values ...any) (*T, bool, error) {
	ks, ok := s.schema.keySet(keySet)
	if !ok {
		return nil, false, cache.ErrInvalidKey.New("%s: unknown key-set %q", s.schema.Type, keySet)
	}

	key, err := s.codec.EncodeKey(s.schema.Type, ks.Columns, values)
	if err != nil {
		return nil, false, err
	}

	if buf, hit := s.cacheGet(ctx, key); hit {
		record, negative, err := decodeSnapshot[T](buf)
		switch {
		case err != nil:
			// Unreadable entry, likely from an older snapshot format.
			s.log.Debug("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
			s.cacheDelete(ctx, key)
		case negative:
			return nil, false, nil
		default:
			return record, true, nil
		}
	}

	var record T
	q := s.db.NewSelect().Model(&record)
	for i, col := range ks.Columns {
		q = q.Where("? = ?", bun.Ident(col), values[i])
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.cacheSet(ctx, key, negativeMarker(), s.cfg.NegativeTTL)
			return nil, false, nil
		}
		return nil, false, errs.Wrap(err)
	}

	s.populate(ctx, &record)
	return &record, true, nil
}

// GetByKey is Lookup with mandatory-existence semantics: absence becomes an
// ErrNoResult error.
func (s *Store[T]) GetByKey(ctx context.Context, keySet string, values ...any) (*T, error) {
	record, found, err := s.Lookup(ctx, keySet, values...)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNoResult.New("%s: no row for key-set %q", s.schema.Type, keySet)
	}
	return record, nil
}

// Insert writes a new entity inside a transaction, assigning the generated
// identity when the schema declares an auto-increment primary key. On
// success the cache entries for every key-set are populated with the fresh
// snapshot; this also overwrites any negative marker the new row satisfies.
// On failure the cache is left untouched and ErrStoreWrite is returned.
func (s *Store[T]) Insert(ctx context.Context, record *T) (*T, error) {
	if record == nil {
		return nil, cache.ErrInvalidKey.New("%s: nil record", s.schema.Type)
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(record).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, ErrStoreWrite.Wrap(err)
	}

	s.populate(ctx, record)

	for _, hook := range s.afterInsert {
		if err := hook(ctx, record); err != nil {
			// The row is committed; the hook failure is the caller's to
			// retry or compensate.
			return record, errs.Wrap(err)
		}
	}
	return record, nil
}

// Update writes a modified entity. previous must be the caller's in-memory
// snapshot from before the modification: it drives which cache keys get
// invalidated and pins the UPDATE to the row's old primary key, so two
// concurrent updaters of different columns never clobber each other's
// key-derived cache entries.
//
// When any key-set column changed, the write is split in two phases inside
// one transaction: non-key columns first, then the key columns, both against
// the old primary key. Either both phases commit or neither does; a partial
// key rewrite is never visible.
func (s *Store[T]) Update(ctx context.Context, record, previous *T) (*T, error) {
	if record == nil || previous == nil {
		return nil, cache.ErrInvalidKey.New("%s: record and previous snapshot required", s.schema.Type)
	}

	// Old-key entries go first so a crash mid-operation leaves at worst an
	// extra miss, never a stale positive hit.
	s.invalidate(ctx, previous)

	prevValues := s.schema.Values(previous)
	nextValues := s.schema.Values(record)
	keyCols := s.schema.keyColumns()

	keyChanged := false
	for col := range keyCols {
		if !reflect.DeepEqual(prevValues[col], nextValues[col]) {
			keyChanged = true
			break
		}
	}

	var nonKeyCols, allKeyCols []string
	for _, col := range s.schema.Columns {
		if keyCols[col] {
			allKeyCols = append(allKeyCols, col)
		} else {
			nonKeyCols = append(nonKeyCols, col)
		}
	}

	prevPK, err := s.schema.keyValues(previous, s.schema.Primary)
	if err != nil {
		return nil, cache.ErrInvalidKey.Wrap(err)
	}

	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		wherePrevPK := func(q *bun.UpdateQuery) *bun.UpdateQuery {
			for i, col := range s.schema.Primary.Columns {
				q = q.Where("? = ?", bun.Ident(col), prevPK[i])
			}
			return q
		}

		if len(nonKeyCols) > 0 {
			res, err := wherePrevPK(tx.NewUpdate().Model(record).Column(nonKeyCols...)).Exec(ctx)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return errs.New("no row matched previous snapshot")
			}
		}

		if keyChanged {
			// Column() would skip pk-tagged fields in the SET list, so the
			// key assignments are spelled out; a primary-key rewrite must
			// reach the row itself.
			q := tx.NewUpdate().Model(record)
			for _, col := range allKeyCols {
				q = q.Set("? = ?", bun.Ident(col), nextValues[col])
			}
			res, err := wherePrevPK(q).Exec(ctx)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return errs.New("no row matched previous snapshot")
			}
		}
		return nil
	})
	if err != nil {
		return nil, ErrStoreWrite.Wrap(err)
	}

	s.populate(ctx, record)
	return record, nil
}

// Delete removes the entity. All of its cache entries are invalidated before
// the row delete is issued: a crash in between costs an extra cache miss,
// never a stale positive hit serving a deleted row. Deleting an already
// absent row is a no-op.
func (s *Store[T]) Delete(ctx context.Context, record *T) error {
	if record == nil {
		return cache.ErrInvalidKey.New("%s: nil record", s.schema.Type)
	}

	s.invalidate(ctx, record)

	pk, err := s.schema.keyValues(record, s.schema.Primary)
	if err != nil {
		return cache.ErrInvalidKey.Wrap(err)
	}

	q := s.db.NewDelete().Model(record)
	for i, col := range s.schema.Primary.Columns {
		q = q.Where("? = ?", bun.Ident(col), pk[i])
	}
	if _, err := q.Exec(ctx); err != nil {
		return ErrStoreWrite.Wrap(err)
	}
	return nil
}

// populate stores a known-fresh snapshot under every key-set of the record.
// Key-sets containing nil values are skipped: they are not indexable, so
// there is no cache entry to keep coherent.
func (s *Store[T]) populate(ctx context.Context, record *T) {
	buf, err := encodeSnapshot(record)
	if err != nil {
		s.log.Debug("snapshot encode failed, skipping cache populate", zap.Error(err))
		return
	}
	s.forEachKey(record, func(key string) {
		s.cacheSet(ctx, key, buf, s.cfg.SnapshotTTL)
	})
}

// invalidate drops every key-set entry derived from the record's values.
func (s *Store[T]) invalidate(ctx context.Context, record *T) {
	s.forEachKey(record, func(key string) {
		s.cacheDelete(ctx, key)
	})
}

func (s *Store[T]) forEachKey(record *T, fn func(key string)) {
	for _, ks := range s.schema.KeySets() {
		values, err := s.schema.keyValues(record, ks)
		if err != nil {
			s.log.Debug("key-set values unavailable", zap.String("key_set", ks.Name), zap.Error(err))
			continue
		}
		key, err := s.codec.EncodeKey(s.schema.Type, ks.Columns, values)
		if err != nil {
			// Nil key values: the key-set is not indexable for this row.
			continue
		}
		fn(key)
	}
}

// Cache accessors. Backend failures never propagate: they degrade to miss
// behavior and are logged at debug for operational visibility.

func (s *Store[T]) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	buf, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Debug("cache get degraded to miss", zap.String("key", key), zap.Error(cache.ErrUnavailable.Wrap(err)))
		return nil, false
	}
	return buf, ok
}

func (s *Store[T]) cacheSet(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.Debug("cache set skipped", zap.String("key", key), zap.Error(cache.ErrUnavailable.Wrap(err)))
	}
}

func (s *Store[T]) cacheDelete(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Debug("cache delete skipped", zap.String("key", key), zap.Error(cache.ErrUnavailable.Wrap(err)))
	}
}
