// Package counterstore provides the shared atomic key-value store used for
// PIN bookkeeping, rate limiting, circuit-breaker state, and service-status
// snapshots. All cross-request coordination happens through the compound
// operations here; application code never does read-modify-write on shared
// keys.
package counterstore

import (
	"context"
	"time"
)

// Store is the atomic counter store. Implementations must guarantee that each
// method is atomic with respect to concurrent callers on the same key.
type Store interface {
	// IncrWindow increments key by one and, when this call created the key,
	// sets its TTL to window. Returns the post-increment count and the
	// remaining TTL. This is the check-and-increment primitive the rate
	// limiter and the PIN poll ceiling are built on; a separate read followed
	// by a write is not equivalent and must not be used.
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)

	// Get returns the string value at key. ok is false when the key is
	// missing or expired.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value at key. A ttl of zero means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// GetFields returns all hash fields at key, or nil when the key is
	// missing or expired.
	GetFields(ctx context.Context, key string) (map[string]string, error)

	// SetFields stores the given hash fields at key, replacing any existing
	// values for those fields, and sets the key TTL when ttl > 0.
	SetFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// IncrField atomically adds delta to the integer hash field at key and
	// returns the new value. Creates the field (and key, without TTL) when
	// missing.
	IncrField(ctx context.Context, key, field string, delta int64) (int64, error)

	// CompareAndSwapField atomically replaces field's value with new if its
	// current value equals old, also writing the extra fields in the same
	// step. A missing key or field compares equal to the empty string.
	// Returns whether the swap happened and the value observed.
	CompareAndSwapField(ctx context.Context, key, field, old, new string, extra map[string]string) (swapped bool, current string, err error)

	// TTL returns the remaining TTL for key. ok is false when the key is
	// missing; a key with no expiry returns ok true and a zero duration.
	TTL(ctx context.Context, key string) (ttl time.Duration, ok bool, err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping verifies the store is reachable. Used by the health endpoint.
	Ping(ctx context.Context) error
}

// Key namespaces. Every key in the store is built by one of these helpers so
// the layout stays greppable.

// PinKey is the hash holding one PinSession, TTL-bound to the PIN expiry.
func PinKey(pinID string) string { return "pin:" + pinID }

// PinPollsKey counts provider checks performed for one PIN.
func PinPollsKey(pinID string) string { return "pinpolls:" + pinID }

// RateLimitKey is the counter bucket for one subject and endpoint class.
func RateLimitKey(endpointClass, subjectKey string) string {
	return "ratelimit:" + endpointClass + ":" + subjectKey
}

// RememberUsedKey marks a rotated remember-token hash for a short window so a
// second redemption can be told apart from a token that never existed.
func RememberUsedKey(tokenHash string) string { return "rememberused:" + tokenHash }

// BreakerKey is the hash holding circuit-breaker state for one dependency.
func BreakerKey(dependency string) string { return "breaker:" + dependency }

// StatusKey holds the last ServiceStatusSnapshot for one dependency.
func StatusKey(dependency string) string { return "status:" + dependency }
