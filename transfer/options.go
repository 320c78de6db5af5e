package transfer

import (
	"context"
	"log/slog"
	"time"
)

// StateFunc is called on every state transition of a Controller.
type StateFunc func(from, to State)

// Config holds the controller configuration.
type Config struct {
	// Retry controls polling of a busy SPI engine
	Retry RetryPolicy

	// Logger receives per-exchange debug output and skipped samples
	Logger *slog.Logger

	// OnStateChange is called on every transition (optional)
	OnStateChange StateFunc

	// sleep waits for d or until ctx is done
	sleep func(ctx context.Context, d time.Duration) error
}

func defaultConfig() Config {
	return Config{
		Retry:  DefaultRetryPolicy(),
		Logger: slog.Default(),
		sleep:  sleepContext,
	}
}

// Option is a functional option for configuring the Controller.
type Option func(*Config)

// WithRetryPolicy replaces the default retry-until-complete policy.
//
// Example:
//
//	ctrl := transfer.New(t, transfer.WithRetryPolicy(transfer.RetryPolicy{
//	    Backoff:     transfer.BackoffExponential,
//	    Delay:       time.Millisecond,
//	    MaxDelay:    100 * time.Millisecond,
//	    MaxAttempts: 50,
//	}))
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Config) {
		c.Retry = p
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithStateCallback registers fn for state transitions.
func WithStateCallback(fn StateFunc) Option {
	return func(c *Config) {
		c.OnStateChange = fn
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
