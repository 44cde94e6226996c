package entitystore

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config carries the store's cache-entry expiry policy. It is passed
// explicitly to New; there is no process-wide configuration.
type Config struct {
	// SnapshotTTL bounds how long a positive snapshot may live in the
	// cache. Zero means the backend's default expiry applies.
	SnapshotTTL time.Duration

	// NegativeTTL bounds how long a "row confirmed absent" marker may
	// live. Negative entries must expire: writes that bypass the store
	// (bulk imports, manual fixes) would otherwise leave a key negative
	// forever. Must be greater than zero.
	NegativeTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotTTL: 5 * time.Minute,
		NegativeTTL: time.Minute,
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.SnapshotTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.NegativeTTL, validation.Required, validation.Min(time.Nanosecond)),
	)
}
