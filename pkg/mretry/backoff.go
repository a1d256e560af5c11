package mretry

import "time"

// Backoff computes the delay before attempt number attempt (0-indexed):
// initialBackoff * multiplier^attempt, capped at MaxBackoff. Multiplier of
// 1.0 degenerates this to a constant InitialBackoff delay. Jitter is off by
// default (JitterFactor zero); when set, it perturbs the delay by up to
// JitterFactor as a fraction of the computed backoff (e.g. 0.2 yields
// roughly ±10% jitter). rnd must return a value in [0.0, 1.0); callers
// typically pass a crypto/rand-backed source so concurrent workers don't
// retry in lockstep.
func (c Config) Backoff(attempt int, rnd func() float64) time.Duration {
	if attempt <= 0 {
		return c.InitialBackoff
	}

	backoff := float64(c.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= c.Multiplier
		if backoff >= float64(c.MaxBackoff) {
			backoff = float64(c.MaxBackoff)
			break
		}
	}

	if c.JitterFactor > 0 {
		jitterRange := backoff * c.JitterFactor
		backoff = backoff - jitterRange/2 + rnd()*jitterRange
	}

	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}

	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}
