package resilience

import (
	"context"
	"log"
	"time"

	"medianest/backend/internal/apperr"
)

// Client is the resilience envelope for one external dependency. All network
// calls to that dependency go through Call; nothing else in the codebase
// dials it directly.
type Client struct {
	name      string
	breaker   *Breaker
	settings  Settings
	snapshots *SnapshotStore
	nowF      func() time.Time
}

// NewClient returns a resilience client for the named dependency.
func NewClient(name string, breaker *Breaker, settings Settings, snapshots *SnapshotStore) *Client {
	return &Client{
		name:      name,
		breaker:   breaker,
		settings:  settings,
		snapshots: snapshots,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Name returns the dependency name.
func (c *Client) Name() string { return c.name }

// Breaker returns the underlying breaker, for the status surface.
func (c *Client) Breaker() *Breaker { return c.breaker }

// Call runs op against the dependency under the full resilience envelope:
//
//   - while the breaker is open, op is never invoked; fallback supplies the
//     degraded result immediately,
//   - each attempt is bounded by the per-dependency timeout,
//   - transient failures are retried with exponential backoff and jitter up
//     to the attempt budget; permanent failures propagate at once,
//   - one failure is counted against the breaker per Call, after retries,
//   - a service-status snapshot is recorded after every attempt.
//
// fallback is invoked when the breaker is open or retries are exhausted; it
// receives the cause and returns the degraded result. Permanent errors (4xx,
// auth) are returned to the caller as-is instead of going through fallback.
func Call[T any](ctx context.Context, c *Client, op func(ctx context.Context) (T, error), fallback func(ctx context.Context, cause error) (T, error)) (T, error) {
	allowed, probe := c.breaker.Allow(ctx)
	if !allowed {
		return fallback(ctx, apperr.DependencyUnavailable(c.name, nil))
	}

	attempts := c.settings.MaxAttempts
	if attempts < 1 || probe {
		// A half-open probe is exactly one call.
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := runAttempt(ctx, c, op)
		if err == nil {
			c.breaker.OnSuccess(ctx, probe)
			return result, nil
		}
		lastErr = err
		if !IsTransient(err) {
			// Permanent error: no retry, counts toward the breaker, surfaces
			// to the caller as-is.
			c.breaker.OnFailure(ctx, probe)
			return result, err
		}
		if attempt < attempts {
			if err := sleep(ctx, backoffDelay(attempt)); err != nil {
				break
			}
		}
	}

	c.breaker.OnFailure(ctx, probe)
	return fallback(ctx, apperr.DependencyUnavailable(c.name, lastErr))
}

// runAttempt runs op once under the call timeout and records the snapshot.
func runAttempt[T any](ctx context.Context, c *Client, op func(ctx context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.settings.CallTimeout)
	defer cancel()
	start := c.nowF()
	result, err := op(callCtx)
	c.record(ctx, err == nil, c.nowF().Sub(start))
	return result, err
}

// record stores the post-attempt snapshot. Best-effort; a snapshot write
// failure must not fail the call.
func (c *Client) record(ctx context.Context, up bool, latency time.Duration) {
	if c.snapshots == nil {
		return
	}
	status := StatusUp
	if !up {
		status = StatusDown
	}
	snap := Snapshot{
		ServiceName:   c.name,
		Status:        status,
		LastCheckedAt: c.nowF(),
		LatencyMs:     latency.Milliseconds(),
	}
	if err := c.snapshots.Put(ctx, snap); err != nil {
		log.Printf("resilience: snapshot write for %s failed: %v", c.name, err)
	}
}
