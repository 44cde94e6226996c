package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc cache adapter.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	// Must be greater than 0.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Higher values improve concurrency but increase memory overhead.
	// Must be greater than 0. Default: 256
	NumShards int

	// TTL is the default time-to-live for cached entries.
	// Must be greater than 0.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	// Default: 10 (evict 10% of entries)
	EvictionPercentage int

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the sturdyc default.
	EvictionInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EvictionInterval:   0,
	}
}

// ToSturdycOptions converts the Config to a sturdyc.Option slice.
// Capacity, NumShards, TTL, and EvictionPercentage are passed directly to
// sturdyc.New() and are not included in the options.
func (c Config) ToSturdycOptions() []sturdyc.Option {
	var options []sturdyc.Option

	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}

	return options
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return &ConfigError{Field: "Capacity", Message: "must be greater than 0"}
	}

	if c.NumShards <= 0 {
		return &ConfigError{Field: "NumShards", Message: "must be greater than 0"}
	}

	if c.TTL <= 0 {
		return &ConfigError{Field: "TTL", Message: "must be greater than 0"}
	}

	if c.EvictionPercentage < 1 || c.EvictionPercentage > 100 {
		return &ConfigError{Field: "EvictionPercentage", Message: "must be between 1 and 100"}
	}

	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// sturdycBackend adapts a sturdyc client to the cache.Backend contract.
// Values are stored as raw byte slices; the entity store owns the snapshot
// and negative-marker encoding, so the adapter stays oblivious to content.
type sturdycBackend struct {
	client *sturdyc.Client[[]byte]
}

// NewSturdycBackend creates a new sturdyc-backed cache adapter.
// It validates the configuration and initializes a sturdyc client with the
// provided settings.
//
// Version compatibility note: this implementation assumes the sturdyc v1.x
// API. Monitor sturdyc version upgrades for potential option mapping changes.
func NewSturdycBackend(cfg Config) (*sturdycBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[[]byte](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.ToSturdycOptions()...,
	)

	return &sturdycBackend{client: client}, nil
}

// Get implements cache.Backend.Get. A missing or expired key reports
// presence false with no error.
func (b *sturdycBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok := b.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

// Set implements cache.Backend.Set. sturdyc manages expiry client-wide, so
// the per-call ttl is ignored here; backends with per-key expiry (Redis,
// memcache) honor it.
func (b *sturdycBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	b.client.Set(key, value)
	return nil
}

// Delete implements cache.Backend.Delete. Removing an absent key is a no-op.
func (b *sturdycBackend) Delete(ctx context.Context, key string) error {
	b.client.Delete(key)
	return nil
}

// DeleteByPrefix removes all entries whose keys start with the given prefix.
// Operational escape hatch for invalidating a whole entity-type namespace,
// e.g. after a bulk import that bypassed the entity store.
func (b *sturdycBackend) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range b.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			b.client.Delete(key)
		}
	}
	return nil
}
