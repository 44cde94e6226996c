package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/zeebo/errs"
)

// KeySeparator defines the delimiter used between cache key segments.
// Key values containing the separator are rejected so that distinct
// (type, columns, values) tuples can never collide.
const KeySeparator = "::"

// ErrInvalidKey marks caller mistakes in key construction: nil key values,
// column/value arity mismatches, or values that cannot be rendered into a
// canonical key segment. It is never worth retrying.
var ErrInvalidKey = errs.Class("invalid key")

// KeyCodec builds a canonical cache key from an entity type name and an
// ordered set of key columns with their values. Implementations must be
// deterministic: the same tuple always produces the same string.
type KeyCodec interface {
	EncodeKey(entityType string, columns []string, values []any) (string, error)
}

// defaultKeyCodec renders keys as entityType::col=val::col=val with columns
// sorted lexically, so callers may pass a key-set's columns in any order and
// still land on the same cache entry.
type defaultKeyCodec struct{}

// NewDefaultKeyCodec creates the standard key codec.
func NewDefaultKeyCodec() KeyCodec {
	return &defaultKeyCodec{}
}

// EncodeKey implements KeyCodec. It is a pure function; no state is kept
// between calls.
func (c *defaultKeyCodec) EncodeKey(entityType string, columns []string, values []any) (string, error) {
	if entityType == "" {
		return "", ErrInvalidKey.New("empty entity type")
	}
	if len(columns) == 0 {
		return "", ErrInvalidKey.New("no key columns for %q", entityType)
	}
	if len(columns) != len(values) {
		return "", ErrInvalidKey.New("%q: %d columns but %d values", entityType, len(columns), len(values))
	}

	type pair struct {
		column string
		value  string
	}

	pairs := make([]pair, len(columns))
	for i, col := range columns {
		if col == "" {
			return "", ErrInvalidKey.New("%q: empty column name", entityType)
		}
		rendered, err := renderKeyValue(values[i])
		if err != nil {
			return "", ErrInvalidKey.New("%q.%s: %v", entityType, col, err)
		}
		pairs[i] = pair{column: col, value: rendered}
	}

	// Lexical column order makes the key canonical regardless of how the
	// caller ordered the key-set.
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].column < pairs[j].column })

	parts := make([]string, 0, len(pairs)+1)
	parts = append(parts, normalizeType(entityType))
	for _, p := range pairs {
		parts = append(parts, p.column+"="+p.value)
	}
	return strings.Join(parts, KeySeparator), nil
}

// renderKeyValue turns a single key value into its key segment. Nil values
// are not indexable: a lookup on a NULL column must bypass the cache and use
// an IS NULL query instead.
func renderKeyValue(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("nil key value")
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "", fmt.Errorf("nil key value")
		}
		return renderKeyValue(rv.Elem().Interface())
	}

	var rendered string
	switch t := v.(type) {
	case string:
		rendered = t
	case []byte:
		rendered = fmt.Sprintf("%x", t)
	case fmt.Stringer:
		rendered = t.String()
	default:
		rendered = fmt.Sprintf("%v", v)
	}

	if strings.Contains(rendered, KeySeparator) {
		return "", fmt.Errorf("value %q contains the key separator", rendered)
	}
	return rendered, nil
}

// normalizeType lowercases the entity type and squashes non-alphanumeric runs
// to single underscores. Reflected Go type names can carry pointers and
// generic suffixes; leaving those in the namespace would produce keys some
// cache backends reject.
func normalizeType(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSep := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r - 'A' + 'a')
		default:
			pendingSep = b.Len() > 0
		}
	}
	return b.String()
}
