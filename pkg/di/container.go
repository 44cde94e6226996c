package di

import (
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/goliatone/go-entity-store/cache"
	"github.com/goliatone/go-entity-store/delivery"
	"github.com/goliatone/go-entity-store/entitystore"
	"github.com/goliatone/go-entity-store/fanout"
	"github.com/goliatone/go-entity-store/feed"
)

// Config aggregates the per-component configurations the container wires
// together.
type Config struct {
	Cache cache.Config
	Store entitystore.Config
	Feed  feed.Config
	HTTP  delivery.HTTPConfig
}

// DefaultConfig returns the component defaults.
func DefaultConfig() Config {
	return Config{
		Cache: cache.DefaultConfig(),
		Store: entitystore.DefaultConfig(),
		Feed:  feed.DefaultConfig(),
		HTTP:  delivery.DefaultHTTPConfig(),
	}
}

// Container provides dependency injection for the entity store stack. It
// manages singleton instances of the cache backend, key codec, feed service,
// and fan-out distributor, and provides a factory for per-entity stores.
type Container struct {
	db          *bun.DB
	backend     cache.Backend
	codec       cache.KeyCodec
	log         *zap.Logger
	feeds       *feed.Service
	distributor *fanout.Distributor
	cfg         Config
}

// NewContainer creates a DI container around an opened database handle.
// The in-process sturdyc backend, the default key codec, the feed service,
// the HTTP deliverer, and the distributor are constructed eagerly so wiring
// mistakes surface at startup, not on first use.
func NewContainer(cfg Config, db *bun.DB, log *zap.Logger) (*Container, error) {
	if log == nil {
		log = zap.NewNop()
	}

	backend, err := cache.NewBackend(cfg.Cache)
	if err != nil {
		return nil, err
	}

	codec := cache.NewDefaultKeyCodec()

	feeds, err := feed.New(db, backend, codec, cfg.Feed, log)
	if err != nil {
		return nil, err
	}

	deliverer := delivery.NewHTTP(cfg.HTTP, nil, log)
	distributor := fanout.New(feeds, deliverer, log)

	return &Container{
		db:          db,
		backend:     backend,
		codec:       codec,
		log:         log,
		feeds:       feeds,
		distributor: distributor,
		cfg:         cfg,
	}, nil
}

// NewContainerWithDefaults creates a container using default configuration.
func NewContainerWithDefaults(db *bun.DB, log *zap.Logger) (*Container, error) {
	return NewContainer(DefaultConfig(), db, log)
}

// Backend returns the singleton cache backend instance.
func (c *Container) Backend() cache.Backend {
	return c.backend
}

// KeyCodec returns the singleton key codec instance.
func (c *Container) KeyCodec() cache.KeyCodec {
	return c.codec
}

// Feeds returns the bounded feed service.
func (c *Container) Feeds() *feed.Service {
	return c.feeds
}

// Distributor returns the fan-out distributor.
func (c *Container) Distributor() *fanout.Distributor {
	return c.distributor
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.cfg
}

// NewStore creates an entity store for one schema, sharing the container's
// database, cache backend, codec, and logger.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function: NewStore[Notice](container, noticeSchema).
func NewStore[T any](c *Container, schema entitystore.Schema[T]) (*entitystore.Store[T], error) {
	return entitystore.New(c.db, c.backend, c.codec, schema, c.cfg.Store, c.log)
}
