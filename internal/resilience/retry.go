package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

// retryBaseDelay is the first backoff step; each retry doubles it, with
// full jitter applied.
const retryBaseDelay = 200 * time.Millisecond

// TransientError marks a failure as retryable: timeouts, connection errors,
// 5xx responses. Dependency clients wrap such failures with Transient so the
// retry loop can tell them apart from permanent errors (4xx, auth failures),
// which propagate immediately.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

// Unwrap returns the wrapped cause.
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable: explicitly marked via
// Transient, a network timeout, or a deadline expiry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// backoffDelay returns the delay before retry number attempt (1-based):
// exponential growth from retryBaseDelay with full jitter.
func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay << (attempt - 1)
	return time.Duration(rand.Int64N(int64(d)) + 1)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
