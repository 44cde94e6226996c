package entitystore_test

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-store/cache"
	"github.com/goliatone/go-entity-store/entitystore"
	"github.com/goliatone/go-entity-store/pkg/testsupport"
)

// testUser is the entity exercised by the store tests: an auto-numbered
// primary key plus two unique key-sets, mirroring the user/nickname/email
// shape the store is designed around.
type testUser struct {
	bun.BaseModel `bun:"table:test_user"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Nick  string `bun:"nick"`
	Email string `bun:"email"`
	Name  string `bun:"name"`
}

func userSchema() entitystore.Schema[testUser] {
	return entitystore.Schema[testUser]{
		Type:    "User",
		Table:   "test_user",
		Primary: entitystore.KeySet{Name: "id", Columns: []string{"id"}},
		Unique: []entitystore.KeySet{
			{Name: "nick", Columns: []string{"nick"}},
			{Name: "email", Columns: []string{"email"}},
		},
		Columns:       []string{"id", "nick", "email", "name"},
		AutoIncrement: true,
		Values: func(u *testUser) map[string]any {
			return map[string]any{
				"id":    u.ID,
				"nick":  u.Nick,
				"email": u.Email,
				"name":  u.Name,
			}
		},
	}
}

func newUserStore(t *testing.T, backend cache.Backend) (*entitystore.Store[testUser], *bun.DB) {
	t.Helper()

	db := testsupport.NewBunSQLite(t)
	store, err := entitystore.New(db, backend, nil, userSchema(), entitystore.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.EnsureTable(context.Background()); err != nil {
		t.Fatalf("EnsureTable() error = %v", err)
	}
	return store, db
}

func TestStore_InsertAssignsIdentityAndPopulatesEveryKeySet(t *testing.T) {
	backend := testsupport.NewMemoryBackend()
	store, db := newUserStore(t, backend)
	ctx := context.Background()

	user, err := store.Insert(ctx, &testUser{Nick: "evan", Email: "evan@example.com", Name: "Evan"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if user.ID == 0 {
		t.Fatal("Insert() did not assign an identity")
	}
	if got := backend.Len(); got != 3 {
		t.Fatalf("Insert() cached %d entries, want one per key-set (3)", got)
	}

	// Remove the row behind the store's back. If the next lookups still
	// find the user, they were served from the populated cache entries.
	if _, err := db.NewDelete().Model((*testUser)(nil)).Where("id = ?", user.ID).Exec(ctx); err != nil {
		t.Fatalf("raw delete error = %v", err)
	}

	for _, lookup := range []struct {
		keySet string
		value  any
	}{
		{"id", user.ID},
		{"nick", "evan"},
		{"email", "evan@example.com"},
	} {
		got, found, err := store.Lookup(ctx, lookup.keySet, lookup.value)
		if err != nil {
			t.Fatalf("Lookup(%s) error = %v", lookup.keySet, err)
		}
		if !found {
			t.Fatalf("Lookup(%s) missed; key-set entry was not populated", lookup.keySet)
		}
		if got.Nick != "evan" {
			t.Errorf("Lookup(%s) = %+v, want nick evan", lookup.keySet, got)
		}
	}
}

func TestStore_LookupMissCachesNegativeMarker(t *testing.T) {
	backend := testsupport.NewMemoryBackend()
	store, _ := newUserStore(t, backend)
	ctx := context.Background()

	_, found, err := store.Lookup(ctx, "id", int64(404))
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if found {
		t.Fatal("Lookup() found a row in an empty table")
	}
	if got := backend.Len(); got != 1 {
		t.Fatalf("negative marker cached %d entries, want 1 (requested key only)", got)
	}

	// The second miss must be answered by the marker, not the database.
	gets := backend.Gets
	if _, found, _ = store.Lookup(ctx, "id", int64(404)); found {
		t.Fatal("second Lookup() found a row")
	}
	if backend.Gets != gets+1 {
		t.Errorf("second Lookup() did not consult the cache")
	}
}

func TestStore_InsertOverwritesNegativeMarker(t *testing.T) {
	backend := testsupport.NewMemoryBackend()
	store, _ := newUserStore(t, backend)
	ctx := context.Background()

	if _, found, _ := store.Lookup(ctx, "nick", "brion"); found {
		t.Fatal("unexpected row before insert")
	}

	if _, err := store.Insert(ctx, &testUser{Nick: "brion", Email: "brion@example.com", Name: "Brion"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, found, err := store.Lookup(ctx, "nick", "brion")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if !found {
		t.Fatal("Lookup() after insert still reports absent; negative marker survived the write")
	}
	if got.Name != "Brion" {
		t.Errorf("Lookup() = %+v, want the inserted row", got)
	}
}

func TestStore_UpdateServesFreshSnapshot(t *testing.T) {
	backend := testsupport.NewMemoryBackend()
	store, _ := newUserStore(t, backend)
	ctx := context.Background()

	user, err := store.Insert(ctx, &testUser{Nick: "mira", Email: "mira@example.com", Name: "a"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	// Warm the cache with the pre-update snapshot.
	if _, err := store.GetByKey(ctx, "id", user.ID); err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}

	previous := *user
	updated := *user
	updated.Name = "b"
	if _, err := store.Update(ctx, &updated, &previous); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := store.GetByKey(ctx, "id", user.ID)
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if got.Name != "b" {
		t.Errorf("GetByKey() after update = %q, want %q (stale snapshot served)", got.Name, "b")
	}
}

func TestStore_UpdateRewritesKeys(t *testing.T) {
	backend := testsupport.NewMemoryBackend()
	store, db := newUserStore(t, backend)
	ctx := context.Background()

	user, err := store.Insert(ctx, &testUser{Nick: "old", Email: "old@example.com", Name: "n"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	previous := *user
	updated := *user
	updated.ID = user.ID + 1000
	updated.Nick = "new"
	if _, err := store.Update(ctx, &updated, &previous); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if _, found, _ := store.Lookup(ctx, "id", previous.ID); found {
		t.Error("old primary key still resolves after key rewrite")
	}
	if _, found, _ := store.Lookup(ctx, "nick", "old"); found {
		t.Error("old nick still resolves after key rewrite")
	}

	got, found, err := store.Lookup(ctx, "id", updated.ID)
	if err != nil {
		t.Fatalf("Lookup(new id) error = %v", err)
	}
	if !found || got.Nick != "new" {
		t.Errorf("Lookup(new id) = %+v found=%v, want rewritten row", got, found)
	}

	// The populated cache entry must be backed by a real row: assert the
	// rewrite reached the table itself, not just the cache.
	var row testUser
	err = db.NewSelect().Model(&row).Where("id = ?", updated.ID).Scan(ctx)
	if err != nil {
		t.Fatalf("backing row with rewritten primary key missing: %v", err)
	}
	if row.Nick != "new" {
		t.Errorf("backing row nick = %q, want %q", row.Nick, "new")
	}
	n, err := db.NewSelect().Model((*testUser)(nil)).Where("id = ?", previous.ID).Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 0 {
		t.Errorf("backing store still holds %d row(s) under the old primary key", n)
	}
}

func TestStore_UpdateRejectsStaleSnapshot(t *testing.T) {
	backend := testsupport.NewMemoryBackend()
	store, _ := newUserStore(t, backend)
	ctx := context.Background()

	user, err := store.Insert(ctx, &testUser{Nick: "kim", Email: "kim@example.com", Name: "n"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	stale := *user
	stale.ID = user.ID + 999 // snapshot of a row that does not exist

	updated := *user
	updated.ID = stale.ID
	updated.Name = "changed"
	if _, err := store.Update(ctx, &updated, &stale); err == nil {
		t.Fatal("Update() with a non-matching previous snapshot succeeded")
	} else if !entitystore.ErrStoreWrite.Has(err) {
		t.Errorf("Update() error %v is not ErrStoreWrite", err)
	}

	// The real row must be untouched.
	got, err := store.GetByKey(ctx, "id", user.ID)
	if err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if got.Name != "n" {
		t.Errorf("row was modified by a rejected update: %+v", got)
	}
}

func TestStore_DeleteInvalidatesBeforeRowDelete(t *testing.T) {
	backend := testsupport.NewMemoryBackend()
	store, _ := newUserStore(t, backend)
	ctx := context.Background()

	user, err := store.Insert(ctx, &testUser{Nick: "gone", Email: "gone@example.com", Name: "n"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if backend.Len() == 0 {
		t.Fatal("insert did not populate the cache")
	}

	if err := store.Delete(ctx, user); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, found, _ := store.Lookup(ctx, "id", user.ID); found {
		t.Error("deleted row still resolves")
	}
	if _, err := store.GetByKey(ctx, "nick", "gone"); !entitystore.ErrNoResult.Has(err) {
		t.Errorf("GetByKey() after delete = %v, want ErrNoResult", err)
	}

	// Deleting an absent row is a no-op.
	if err := store.Delete(ctx, user); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestStore_GetByKeyDistinguishesAbsenceFromFailure(t *testing.T) {
	store, _ := newUserStore(t, testsupport.NewMemoryBackend())
	ctx := context.Background()

	_, err := store.GetByKey(ctx, "id", int64(12345))
	if err == nil {
		t.Fatal("GetByKey() on an absent row returned no error")
	}
	if !entitystore.ErrNoResult.Has(err) {
		t.Errorf("GetByKey() error %v is not ErrNoResult", err)
	}
	if entitystore.ErrStoreWrite.Has(err) {
		t.Errorf("absence was classified as a write failure: %v", err)
	}
}

func TestStore_CallerKeyMistakes(t *testing.T) {
	store, _ := newUserStore(t, testsupport.NewMemoryBackend())
	ctx := context.Background()

	if _, _, err := store.Lookup(ctx, "no_such_key_set", 1); !cache.ErrInvalidKey.Has(err) {
		t.Errorf("unknown key-set error = %v, want ErrInvalidKey", err)
	}
	if _, _, err := store.Lookup(ctx, "id", nil); !cache.ErrInvalidKey.Has(err) {
		t.Errorf("nil key value error = %v, want ErrInvalidKey", err)
	}
}

func TestStore_DegradesWhenCacheFails(t *testing.T) {
	backend := testsupport.NewMemoryBackend()
	backend.FailAll = true
	store, _ := newUserStore(t, backend)
	ctx := context.Background()

	user, err := store.Insert(ctx, &testUser{Nick: "sol", Email: "sol@example.com", Name: "a"})
	if err != nil {
		t.Fatalf("Insert() with failing cache error = %v", err)
	}

	got, err := store.GetByKey(ctx, "id", user.ID)
	if err != nil {
		t.Fatalf("GetByKey() with failing cache error = %v", err)
	}
	if got.Nick != "sol" {
		t.Errorf("GetByKey() = %+v, want the inserted row", got)
	}

	previous := *got
	updated := *got
	updated.Name = "b"
	if _, err := store.Update(ctx, &updated, &previous); err != nil {
		t.Fatalf("Update() with failing cache error = %v", err)
	}
	if err := store.Delete(ctx, &updated); err != nil {
		t.Fatalf("Delete() with failing cache error = %v", err)
	}
}

func TestStore_WorksWithoutCacheBackend(t *testing.T) {
	store, _ := newUserStore(t, nil)
	ctx := context.Background()

	user, err := store.Insert(ctx, &testUser{Nick: "nobody", Email: "nobody@example.com", Name: "n"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := store.GetByKey(ctx, "nick", "nobody"); err != nil {
		t.Fatalf("GetByKey() error = %v", err)
	}
	if err := store.Delete(ctx, user); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestStore_OnInsertHookSeesCommittedRow(t *testing.T) {
	store, db := newUserStore(t, testsupport.NewMemoryBackend())
	ctx := context.Background()

	var hookID int64
	var visible bool
	store.OnInsert(func(ctx context.Context, u *testUser) error {
		hookID = u.ID
		// The hook runs post-commit, so a raw query must see the row.
		n, err := db.NewSelect().Model((*testUser)(nil)).Where("id = ?", u.ID).Count(ctx)
		visible = err == nil && n == 1
		return nil
	})

	user, err := store.Insert(ctx, &testUser{Nick: "hooked", Email: "hooked@example.com", Name: "n"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if hookID != user.ID {
		t.Errorf("hook saw id %d, want %d", hookID, user.ID)
	}
	if !visible {
		t.Error("hook ran before the insert was committed")
	}
}

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*entitystore.Schema[testUser])
	}{
		{"missing type", func(s *entitystore.Schema[testUser]) { s.Type = "" }},
		{"missing table", func(s *entitystore.Schema[testUser]) { s.Table = "" }},
		{"missing values fn", func(s *entitystore.Schema[testUser]) { s.Values = nil }},
		{"empty primary", func(s *entitystore.Schema[testUser]) { s.Primary.Columns = nil }},
		{"autoincrement compound pk", func(s *entitystore.Schema[testUser]) {
			s.Primary.Columns = []string{"id", "nick"}
		}},
		{"key-set with unknown column", func(s *entitystore.Schema[testUser]) {
			s.Unique = append(s.Unique, entitystore.KeySet{Name: "bad", Columns: []string{"nope"}})
		}},
		{"unnamed key-set", func(s *entitystore.Schema[testUser]) {
			s.Unique = append(s.Unique, entitystore.KeySet{Columns: []string{"email"}})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := userSchema()
			tt.mutate(&schema)
			if err := schema.Validate(); err == nil {
				t.Error("Validate() accepted an invalid schema")
			}
		})
	}

	valid := userSchema()
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() rejected a valid schema: %v", err)
	}
}
