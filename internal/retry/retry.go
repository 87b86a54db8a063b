// Package retry runs startup dependency checks with exponential backoff.
//
// It is used for dependency readiness (session stores, the policy engine)
// before the service accepts traffic. Request-path calls are never retried
// here; a new request is the retry.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts    = 5
	DefaultInitialBackoff = 200 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
	DefaultJitterFactor   = 0.25
)

// Config contains retry parameters. Zero values fall back to the defaults.
type Config struct {
	MaxAttempts    int           `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`
	InitialBackoff time.Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty"`
	JitterFactor   float64       `yaml:"jitterFactor,omitempty" json:"jitterFactor,omitempty"`
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxAttempts > 0 {
		d.MaxAttempts = c.MaxAttempts
	}
	if c.InitialBackoff > 0 {
		d.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		d.MaxBackoff = c.MaxBackoff
	}
	if c.JitterFactor > 0 {
		d.JitterFactor = math.Min(c.JitterFactor, 1)
	}
	return d
}

// OnRetryFunc is called before sleeping ahead of the next attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Do calls fn until it succeeds, attempts run out, or ctx ends.
// The last error from fn is returned.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error, onRetry OnRetryFunc) error {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		backoff := Backoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff, cfg.JitterFactor)
		if onRetry != nil {
			onRetry(attempt+1, lastErr, backoff)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// Backoff returns the exponential delay for attempt with up to jitter*delay added.
func Backoff(attempt int, initial, maxBackoff time.Duration, jitter float64) time.Duration {
	backoff := float64(initial) * math.Pow(2, float64(attempt))
	//nolint:gosec // jitter is not security-sensitive
	backoff += backoff * jitter * rand.Float64()
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}
