// Package testsupport provides shared fixtures for the module's tests: an
// in-memory bun database and cache backend doubles with failure injection.
package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/zeebo/errs"

	"github.com/goliatone/go-entity-store/pkg/dbconn"
)

// NewBunSQLite opens an in-memory SQLite database wrapped in bun and closes
// it when the test finishes.
func NewBunSQLite(t *testing.T) *bun.DB {
	t.Helper()

	db, err := dbconn.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close sqlite: %v", err)
		}
	})
	return db
}

// MemoryBackend is a map-backed cache.Backend for tests. It optionally
// fails every call (FailAll) to exercise the cache-degradation paths, and
// counts operations so tests can assert whether the cache or the backing
// store served a read.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string][]byte

	FailAll bool

	Gets    int
	Sets    int
	Deletes int
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

// Get implements cache.Backend.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.FailAll {
		return nil, false, errs.New("injected cache failure")
	}
	buf, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), buf...), true, nil
}

// Set implements cache.Backend. The ttl is recorded but not enforced; tests
// control entry lifetime explicitly via Drop.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.FailAll {
		return errs.New("injected cache failure")
	}
	m.entries[key] = append([]byte(nil), value...)
	return nil
}

// Delete implements cache.Backend.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	if m.FailAll {
		return errs.New("injected cache failure")
	}
	delete(m.entries, key)
	return nil
}

// Has reports whether a key is currently cached.
func (m *MemoryBackend) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

// Peek returns the raw cached entry without counting the access.
func (m *MemoryBackend) Peek(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.entries[key]
	return buf, ok
}

// Drop removes a key without counting the access. Simulates TTL expiry.
func (m *MemoryBackend) Drop(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len returns the number of cached entries.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
