// Package feed implements bounded per-recipient inboxes: fixed-capacity,
// newest-first lists of entity references, persisted as one packed row per
// recipient and served cache-first through the entity store.
//
// References are fixed-width big-endian 32-bit integers packed contiguously,
// so a 1024-capacity feed is a 4 KB blob that is cheap to fetch and cheap to
// rewrite wholesale on every prepend. The O(N) write cost buys O(1) bulk
// reads, the right trade when N is small and reads vastly outnumber writes.
package feed

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-store/cache"
	"github.com/goliatone/go-entity-store/entitystore"
)

// refWidth is the packed size of one reference in bytes.
const refWidth = 4

// Row is the persisted form of one recipient's inbox.
type Row struct {
	bun.BaseModel `bun:"table:feed_inbox"`

	Recipient string    `bun:"recipient,pk"`
	Refs      []byte    `bun:"refs"`
	UpdatedAt time.Time `bun:"updated_at"`
}

// Service maintains bounded feeds on top of an entity store, inheriting its
// cache discipline: reads are cache-first, every write invalidates and then
// repopulates the recipient's entry.
type Service struct {
	store *entitystore.Store[Row]
	cfg   Config
	log   *zap.Logger
	now   func() time.Time
}

// New builds a feed service. backend may be nil; reads then always hit the
// backing store.
func New(db bun.IDB, backend cache.Backend, codec cache.KeyCodec, cfg Config, log *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errs.Wrap(err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	store, err := entitystore.New(db, backend, codec, rowSchema(), entitystore.Config{
		SnapshotTTL: cfg.SnapshotTTL,
		NegativeTTL: cfg.NegativeTTL,
	}, log)
	if err != nil {
		return nil, err
	}

	return &Service{
		store: store,
		cfg:   cfg,
		log:   log.Named("feed"),
		now:   time.Now,
	}, nil
}

func rowSchema() entitystore.Schema[Row] {
	return entitystore.Schema[Row]{
		Type:    "feed_inbox",
		Table:   "feed_inbox",
		Primary: entitystore.KeySet{Name: "recipient", Columns: []string{"recipient"}},
		Columns: []string{"recipient", "refs", "updated_at"},
		Values: func(r *Row) map[string]any {
			return map[string]any{
				"recipient":  r.Recipient,
				"refs":       r.Refs,
				"updated_at": r.UpdatedAt,
			}
		},
	}
}

// EnsureTable creates the inbox table if it does not exist yet.
func (s *Service) EnsureTable(ctx context.Context) error {
	return s.store.EnsureTable(ctx)
}

// Prepend pushes ref onto the front of the recipient's feed and reports
// whether anything changed.
//
// Prepend is idempotent under retry: a ref already at the head is a silent
// no-op returning false. A ref present deeper in the feed is moved to the
// front, keeping the no-duplicates invariant while still recording recency.
// The feed is truncated to capacity; references that fall off the end are
// dropped silently.
func (s *Service) Prepend(ctx context.Context, recipient string, ref uint32) (bool, error) {
	if recipient == "" {
		return false, cache.ErrInvalidKey.New("empty recipient")
	}

	prev, found, err := s.store.Lookup(ctx, "recipient", recipient)
	if err != nil {
		return false, err
	}

	var refs []uint32
	if found {
		refs, err = unpackRefs(prev.Refs)
		if err != nil {
			return false, errs.Wrap(err)
		}
	}

	if len(refs) > 0 && refs[0] == ref {
		return false, nil
	}

	next := make([]uint32, 0, len(refs)+1)
	next = append(next, ref)
	for _, r := range refs {
		if r != ref {
			next = append(next, r)
		}
	}
	if len(next) > s.cfg.Capacity {
		next = next[:s.cfg.Capacity]
	}

	row := &Row{
		Recipient: recipient,
		Refs:      packRefs(next),
		UpdatedAt: s.now().UTC(),
	}

	if found {
		_, err = s.store.Update(ctx, row, prev)
	} else {
		_, err = s.store.Insert(ctx, row)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns an iterator over the recipient's references, newest first,
// sliced by offset and limit. A negative limit means "to the end". The
// whole bounded list lives in one row, so the slice happens in memory; the
// iterator is lazy and cannot be restarted after exhaustion.
func (s *Service) List(ctx context.Context, recipient string, offset, limit int) (*Iterator, error) {
	if recipient == "" {
		return nil, cache.ErrInvalidKey.New("empty recipient")
	}
	if offset < 0 {
		offset = 0
	}

	row, found, err := s.store.Lookup(ctx, "recipient", recipient)
	if err != nil {
		return nil, err
	}
	if !found {
		return newIterator(nil), nil
	}

	refs, err := unpackRefs(row.Refs)
	if err != nil {
		return nil, errs.Wrap(err)
	}

	if offset >= len(refs) {
		return newIterator(nil), nil
	}
	refs = refs[offset:]
	if limit >= 0 && limit < len(refs) {
		refs = refs[:limit]
	}
	return newIterator(refs), nil
}

// packRefs encodes references as contiguous big-endian 32-bit integers.
func packRefs(refs []uint32) []byte {
	buf := make([]byte, len(refs)*refWidth)
	for i, ref := range refs {
		binary.BigEndian.PutUint32(buf[i*refWidth:], ref)
	}
	return buf
}

// unpackRefs decodes a packed reference blob.
func unpackRefs(buf []byte) ([]uint32, error) {
	if len(buf)%refWidth != 0 {
		return nil, fmt.Errorf("packed feed length %d is not a multiple of %d", len(buf), refWidth)
	}
	refs := make([]uint32, len(buf)/refWidth)
	for i := range refs {
		refs[i] = binary.BigEndian.Uint32(buf[i*refWidth:])
	}
	return refs, nil
}
