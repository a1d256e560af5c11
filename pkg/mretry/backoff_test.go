package mretry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func noJitter() float64 { return 0 }

func TestBackoff_ZeroAttempt_ReturnsInitialBackoff(t *testing.T) {
	cfg := Config{MaxRetries: 10, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Minute, Multiplier: 2}
	assert.Equal(t, cfg.InitialBackoff, cfg.Backoff(0, noJitter))
}

func TestBackoff_GrowsByMultiplier(t *testing.T) {
	cfg := Config{MaxRetries: 10, InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Minute, Multiplier: 2}

	assert.Equal(t, 200*time.Millisecond, cfg.Backoff(1, noJitter))
	assert.Equal(t, 400*time.Millisecond, cfg.Backoff(2, noJitter))
}

func TestBackoff_CapsAtMaxBackoff(t *testing.T) {
	cfg := Config{MaxRetries: 10, InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, 5*time.Second, cfg.Backoff(10, noJitter))
}

func TestBackoff_MultiplierOfOne_IsConstantDelay(t *testing.T) {
	cfg := Config{MaxRetries: 10, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 1}

	assert.Equal(t, time.Second, cfg.Backoff(1, noJitter))
	assert.Equal(t, time.Second, cfg.Backoff(10, noJitter))
}

func TestBackoff_NoJitterByDefault_IsDeterministic(t *testing.T) {
	cfg := DefaultMetadataOutboxConfig()

	panicky := func() float64 { panic("rnd should not be consulted when JitterFactor is 0") }
	assert.Equal(t, 2*cfg.InitialBackoff, cfg.Backoff(1, panicky))
}

func TestBackoff_JitterPerturbsWithinRange(t *testing.T) {
	cfg := Config{MaxRetries: 10, InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2, JitterFactor: 0.2}

	low := cfg.Backoff(1, func() float64 { return 0 })
	high := cfg.Backoff(1, func() float64 { return 1 })

	base := 2 * time.Second
	assert.InDelta(t, float64(base)*0.9, float64(low), float64(time.Millisecond))
	assert.InDelta(t, float64(base)*1.1, float64(high), float64(time.Millisecond))
}
