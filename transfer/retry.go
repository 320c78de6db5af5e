package transfer

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRetriesExhausted is returned when the SPI engine did not finish within
// RetryPolicy.MaxAttempts polls.
var ErrRetriesExhausted = errors.New("spi transfer did not complete")

// Backoff selects how the wait between two polls of a busy SPI engine grows.
type Backoff string

const (
	BackoffNone        Backoff = "none"
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// ParseBackoff accepts the backoff names case-insensitively. The empty
// string maps to BackoffNone.
func ParseBackoff(s string) (Backoff, error) {
	switch Backoff(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackoffNone:
		return BackoffNone, nil
	case BackoffFixed:
		return BackoffFixed, nil
	case BackoffExponential:
		return BackoffExponential, nil
	default:
		return "", fmt.Errorf("unknown backoff %q (want none, fixed or exponential)", s)
	}
}

// RetryPolicy controls re-sending a Transfer SPI Data command while the
// bridge reports the transaction as incomplete.
type RetryPolicy struct {
	Backoff Backoff
	// Delay is the wait after the first incomplete poll
	Delay time.Duration
	// MaxDelay caps exponential growth, 0 means no cap
	MaxDelay time.Duration
	// MaxAttempts is the number of polls before giving up, 0 retries until
	// the transfer completes
	MaxAttempts int
}

// DefaultRetryPolicy polls again immediately and never gives up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Backoff: BackoffNone}
}

// DelayFor returns the wait after the attempt-th incomplete poll.
// attempt starts at 1.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 || p.Delay <= 0 {
		return 0
	}
	switch p.Backoff {
	case BackoffFixed:
		return p.Delay
	case BackoffExponential:
		d := p.Delay
		for i := 1; i < attempt; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
		if p.MaxDelay > 0 && d > p.MaxDelay {
			return p.MaxDelay
		}
		return d
	default:
		return 0
	}
}

// Exhausted reports whether no further poll may follow the given number of
// attempts.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
