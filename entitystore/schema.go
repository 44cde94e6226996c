package entitystore

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// KeySet is a named, ordered set of columns that uniquely identifies an
// entity row: the primary key or one of the declared unique keys.
type KeySet struct {
	Name    string
	Columns []string
}

// Schema describes one entity type as data: its canonical type name, table,
// key-sets, and how to read key column values out of a record. Entity types
// are composed from a generic Store plus one of these descriptors; there is
// no per-entity subclassing.
//
// The record type T carries bun struct tags for column mapping, so the
// schema only needs to know about the columns that participate in keys and
// in partial updates.
type Schema[T any] struct {
	// Type is the canonical entity type name, used as the cache key
	// namespace. Conventionally the Go type name, e.g. "Notice".
	Type string

	// Table is the relational table the records map to. Must agree with
	// the record's bun table tag.
	Table string

	// Primary identifies the row. Its values are immutable after insert
	// except through Update's explicit two-phase key rewrite.
	Primary KeySet

	// Unique lists additional key-sets whose cache entries must be kept
	// coherent alongside the primary.
	Unique []KeySet

	// Columns lists every column of the table, keys included. Update uses
	// it to split key from non-key column writes.
	Columns []string

	// AutoIncrement marks the single-column integer primary key as
	// database-assigned on insert.
	AutoIncrement bool

	// Values extracts column values from a record, keyed by column name.
	// It must cover at least every column named in a key-set.
	Values func(record *T) map[string]any
}

// Validate checks the descriptor for structural mistakes before a Store is
// built around it.
func (s *Schema[T]) Validate() error {
	err := validation.ValidateStruct(s,
		validation.Field(&s.Type, validation.Required),
		validation.Field(&s.Table, validation.Required),
		validation.Field(&s.Columns, validation.Required),
	)
	if err != nil {
		return err
	}

	if s.Values == nil {
		return fmt.Errorf("schema %q: Values extractor is required", s.Type)
	}
	if len(s.Primary.Columns) == 0 {
		return fmt.Errorf("schema %q: primary key-set has no columns", s.Type)
	}
	if s.AutoIncrement && len(s.Primary.Columns) != 1 {
		return fmt.Errorf("schema %q: auto-increment requires a single-column primary key", s.Type)
	}

	known := make(map[string]bool, len(s.Columns))
	for _, col := range s.Columns {
		known[col] = true
	}
	for _, ks := range s.KeySets() {
		if ks.Name == "" {
			return fmt.Errorf("schema %q: unnamed key-set", s.Type)
		}
		for _, col := range ks.Columns {
			if !known[col] {
				return fmt.Errorf("schema %q: key-set %q references unknown column %q", s.Type, ks.Name, col)
			}
		}
	}
	return nil
}

// KeySets returns every declared key-set, primary first.
func (s *Schema[T]) KeySets() []KeySet {
	sets := make([]KeySet, 0, len(s.Unique)+1)
	sets = append(sets, s.Primary)
	sets = append(sets, s.Unique...)
	return sets
}

// keySet resolves a key-set by name.
func (s *Schema[T]) keySet(name string) (KeySet, bool) {
	for _, ks := range s.KeySets() {
		if ks.Name == name {
			return ks, true
		}
	}
	return KeySet{}, false
}

// keyColumns returns the union of all key-set columns.
func (s *Schema[T]) keyColumns() map[string]bool {
	cols := make(map[string]bool)
	for _, ks := range s.KeySets() {
		for _, col := range ks.Columns {
			cols[col] = true
		}
	}
	return cols
}

// keyValues reads the values of a key-set's columns out of a record, in
// key-set column order.
func (s *Schema[T]) keyValues(record *T, ks KeySet) ([]any, error) {
	all := s.Values(record)
	values := make([]any, len(ks.Columns))
	for i, col := range ks.Columns {
		v, ok := all[col]
		if !ok {
			return nil, fmt.Errorf("schema %q: Values did not report column %q", s.Type, col)
		}
		values[i] = v
	}
	return values, nil
}
