package feed

// Iterator walks a feed slice lazily, newest reference first. It follows the
// Next/Value/Err/Close shape so callers can range over results without
// knowing the backing representation. Once exhausted or closed it cannot be
// restarted.
type Iterator struct {
	refs   []uint32
	index  int
	value  uint32
	closed bool
}

func newIterator(refs []uint32) *Iterator {
	return &Iterator{refs: refs}
}

// Next advances the iterator and reports whether a value is available.
func (it *Iterator) Next() bool {
	if it.closed || it.index >= len(it.refs) {
		return false
	}
	it.value = it.refs[it.index]
	it.index++
	return true
}

// Value returns the reference produced by the last successful Next.
func (it *Iterator) Value() uint32 {
	return it.value
}

// Err reports a traversal error. The in-memory iterator cannot fail; the
// method exists so callers can treat all iterators uniformly.
func (it *Iterator) Err() error {
	return nil
}

// Close releases the iterator. Further Next calls return false.
func (it *Iterator) Close() error {
	it.closed = true
	return nil
}

// Collect drains the iterator into a slice. Convenience for callers and
// tests that want the whole window at once.
func (it *Iterator) Collect() []uint32 {
	var out []uint32
	for it.Next() {
		out = append(out, it.Value())
	}
	return out
}
