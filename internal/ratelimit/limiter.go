// Package ratelimit implements fixed-window request limits on top of the
// counter store, so limits hold across instances sharing the store.
package ratelimit

import (
	"context"
	"log"
	"math"
	"time"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/counterstore"
)

// Rule is a per-class limit: at most Limit requests per Window per subject.
type Rule struct {
	Limit  int64
	Window time.Duration
}

// Limiter checks requests against the rules for their endpoint class. A
// subject is whatever identifies the caller, typically session id or client
// IP for anonymous endpoints.
type Limiter struct {
	store counterstore.Store
	rules map[string]Rule
}

func NewLimiter(store counterstore.Store, rules map[string]Rule) *Limiter {
	return &Limiter{store: store, rules: rules}
}

// Allow returns nil when the request fits the window, or a rate-limited
// error carrying the seconds until the window resets. Classes without a rule
// and store failures admit the request; the limiter protects capacity, it is
// not an auth boundary.
func (l *Limiter) Allow(ctx context.Context, class, subject string) error {
	rule, ok := l.rules[class]
	if !ok || rule.Limit <= 0 {
		return nil
	}
	count, ttl, err := l.store.IncrWindow(ctx, counterstore.RateLimitKey(class, subject), rule.Window)
	if err != nil {
		log.Printf("ratelimit: counter for %s/%s unavailable: %v", class, subject, err)
		return nil
	}
	if count <= rule.Limit {
		return nil
	}
	retryAfter := int(math.Ceil(ttl.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return apperr.RateLimited(retryAfter)
}
