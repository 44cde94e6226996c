package feed

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config carries the feed service settings.
type Config struct {
	// Capacity is the fixed maximum number of references per recipient.
	// Prepends beyond it silently drop the oldest references.
	Capacity int

	// SnapshotTTL and NegativeTTL are passed through to the underlying
	// entity store's cache policy.
	SnapshotTTL time.Duration
	NegativeTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults: room for 1024
// references (a 4 KB packed row).
func DefaultConfig() Config {
	return Config{
		Capacity:    1024,
		SnapshotTTL: 5 * time.Minute,
		NegativeTTL: time.Minute,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1), validation.Max(1<<20)),
		validation.Field(&c.SnapshotTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.NegativeTTL, validation.Required, validation.Min(time.Nanosecond)),
	)
}
