// Package mretry provides backoff configuration shared by outbox processing
// and dead-letter redrive paths.
package mretry

import (
	"fmt"
	"time"
)

// Defaults mirror the knobs a message-delivery worker needs: bound the total
// number of attempts, start with a short backoff, and cap it well before it
// becomes operationally painful.
const (
	DefaultMaxRetries     = 10
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Minute
	DefaultJitterFactor   = 0.0
	DefaultMultiplier     = 2.0

	// DLQInitialBackoff is used by redrive configs, which replay messages that
	// have already exhausted the fast retry path once.
	DLQInitialBackoff = 1 * time.Minute
)

// Config describes an exponential backoff schedule with jitter. Multiplier
// must be >= 1.0; 1.0 degenerates the schedule to a constant InitialBackoff
// delay on every attempt.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	JitterFactor   float64
}

// DefaultMetadataOutboxConfig is the backoff schedule used by the outbox
// processor's primary retry loop.
func DefaultMetadataOutboxConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Multiplier:     DefaultMultiplier,
		JitterFactor:   DefaultJitterFactor,
	}
}

// DefaultDLQConfig is the backoff schedule used when redriving dead-lettered
// messages; it starts from a longer initial backoff since these messages
// already failed the fast retry path once.
func DefaultDLQConfig() Config {
	cfg := DefaultMetadataOutboxConfig()
	cfg.InitialBackoff = DLQInitialBackoff

	return cfg
}

// WithMaxRetries returns a copy of cfg with MaxRetries replaced.
func (c Config) WithMaxRetries(n int) Config {
	c.MaxRetries = n
	return c
}

// WithInitialBackoff returns a copy of cfg with InitialBackoff replaced.
func (c Config) WithInitialBackoff(d time.Duration) Config {
	c.InitialBackoff = d
	return c
}

// WithMaxBackoff returns a copy of cfg with MaxBackoff replaced.
func (c Config) WithMaxBackoff(d time.Duration) Config {
	c.MaxBackoff = d
	return c
}

// WithJitterFactor returns a copy of cfg with JitterFactor replaced.
func (c Config) WithJitterFactor(f float64) Config {
	c.JitterFactor = f
	return c
}

// WithMultiplier returns a copy of cfg with Multiplier replaced.
func (c Config) WithMultiplier(f float64) Config {
	c.Multiplier = f
	return c
}

// ConfigValidationError reports which field of a Config failed validation.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("mretry: invalid %s: %s", e.Field, e.Message)
}

// Validate checks the cross-field invariants a struct-tag validator can't
// express, in particular that MaxBackoff never sits below InitialBackoff.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return ConfigValidationError{Field: "MaxRetries", Message: "must be >= 1"}
	}

	if c.InitialBackoff <= 0 {
		return ConfigValidationError{Field: "InitialBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff <= 0 {
		return ConfigValidationError{Field: "MaxBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff < c.InitialBackoff {
		return ConfigValidationError{Field: "MaxBackoff", Message: "must be >= InitialBackoff"}
	}

	if c.Multiplier < 1.0 {
		return ConfigValidationError{Field: "Multiplier", Message: "must be >= 1.0"}
	}

	if c.JitterFactor < 0.0 || c.JitterFactor > 1.0 {
		return ConfigValidationError{Field: "JitterFactor", Message: "must be in range [0.0, 1.0]"}
	}

	return nil
}
