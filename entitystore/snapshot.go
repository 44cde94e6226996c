package entitystore

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Cache entry layout: one tag byte followed by an optional msgpack body.
// The negative tag is a confirmed "no such row" marker, distinct from a
// plain cache miss, and carries no body.
const (
	tagNegative byte = 0x00
	tagSnapshot byte = 0x01
)

// encodeSnapshot serializes a known-fresh record into a positive cache entry.
func encodeSnapshot[T any](record *T) ([]byte, error) {
	body, err := msgpack.Marshal(record)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(body)+1)
	buf = append(buf, tagSnapshot)
	return append(buf, body...), nil
}

// negativeMarker returns the cache entry meaning "row confirmed absent".
func negativeMarker() []byte {
	return []byte{tagNegative}
}

// decodeSnapshot parses a cache entry. negative reports a stored absence
// marker; in that case record is nil. A malformed entry is an error and the
// caller should drop the entry and fall through to the backing store.
func decodeSnapshot[T any](buf []byte) (record *T, negative bool, err error) {
	if len(buf) == 0 {
		return nil, false, fmt.Errorf("empty cache entry")
	}
	switch buf[0] {
	case tagNegative:
		return nil, true, nil
	case tagSnapshot:
		var rec T
		if err := msgpack.Unmarshal(buf[1:], &rec); err != nil {
			return nil, false, err
		}
		return &rec, false, nil
	default:
		return nil, false, fmt.Errorf("unknown cache entry tag 0x%02x", buf[0])
	}
}
