package retry

import (
	"context"
	"fmt"
	"time"
)

// Func is a retryable operation.
type Func func(ctx context.Context) error

// Config defines the backoff schedule for retried operations.
type Config struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// DefaultConfig returns a schedule suited to transient broker and network
// failures: a handful of attempts with doubling backoff.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
	}
}

// Execute runs op until it succeeds, the attempts are exhausted or the
// context ends. The last error is wrapped in the failure.
func Execute(ctx context.Context, cfg *Config, op Func) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	interval := cfg.InitialInterval
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := op(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * cfg.Multiplier)
		if cfg.MaxInterval > 0 && interval > cfg.MaxInterval {
			interval = cfg.MaxInterval
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", cfg.MaxAttempts, lastErr)
}
