package di_test

import (
	"testing"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-entity-store/entitystore"
	"github.com/goliatone/go-entity-store/pkg/di"
	"github.com/goliatone/go-entity-store/pkg/testsupport"
)

func TestNewContainerWithDefaults(t *testing.T) {
	db := testsupport.NewBunSQLite(t)

	c, err := di.NewContainerWithDefaults(db, nil)
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() error = %v", err)
	}

	if c.Backend() == nil {
		t.Error("Backend() = nil")
	}
	if c.KeyCodec() == nil {
		t.Error("KeyCodec() = nil")
	}
	if c.Feeds() == nil {
		t.Error("Feeds() = nil")
	}
	if c.Distributor() == nil {
		t.Error("Distributor() = nil")
	}
	if got := c.Config().Feed.Capacity; got != di.DefaultConfig().Feed.Capacity {
		t.Errorf("Config().Feed.Capacity = %d, want default", got)
	}
}

func TestNewContainer_RejectsInvalidConfig(t *testing.T) {
	db := testsupport.NewBunSQLite(t)

	cfg := di.DefaultConfig()
	cfg.Cache.Capacity = 0
	if _, err := di.NewContainer(cfg, db, nil); err == nil {
		t.Error("NewContainer() accepted an invalid cache config")
	}

	cfg = di.DefaultConfig()
	cfg.Feed.Capacity = 0
	if _, err := di.NewContainer(cfg, db, nil); err == nil {
		t.Error("NewContainer() accepted an invalid feed config")
	}
}

type containerUser struct {
	bun.BaseModel `bun:"table:container_user"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Nick string `bun:"nick"`
}

func TestNewStore_SharesContainerCollaborators(t *testing.T) {
	db := testsupport.NewBunSQLite(t)

	c, err := di.NewContainerWithDefaults(db, nil)
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() error = %v", err)
	}

	store, err := di.NewStore(c, entitystore.Schema[containerUser]{
		Type:          "ContainerUser",
		Table:         "container_user",
		Primary:       entitystore.KeySet{Name: "id", Columns: []string{"id"}},
		Columns:       []string{"id", "nick"},
		AutoIncrement: true,
		Values: func(u *containerUser) map[string]any {
			return map[string]any{"id": u.ID, "nick": u.Nick}
		},
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	if store == nil {
		t.Fatal("NewStore() = nil")
	}

	badSchema := entitystore.Schema[containerUser]{}
	if _, err := di.NewStore(c, badSchema); err == nil {
		t.Error("NewStore() accepted an invalid schema")
	}
}
