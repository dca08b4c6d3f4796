package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/counterstore"
)

func newTestLimiter(limit int64, window time.Duration) (*Limiter, *counterstore.MemoryStore) {
	store := counterstore.NewMemoryStore()
	return NewLimiter(store, map[string]Rule{"auth": {Limit: limit, Window: window}}), store
}

func TestAllowWithinLimit(t *testing.T) {
	limiter, _ := newTestLimiter(5, time.Minute)
	for i := 0; i < 5; i++ {
		if err := limiter.Allow(context.Background(), "auth", "session-1"); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
}

func TestRejectsBeyondLimit(t *testing.T) {
	limiter, _ := newTestLimiter(5, time.Minute)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := limiter.Allow(ctx, "auth", "session-1"); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	err := limiter.Allow(ctx, "auth", "session-1")
	if !apperr.IsKind(err, apperr.KindRateLimited) {
		t.Fatalf("err = %v, want rate_limited", err)
	}
	if ra := apperr.RetryAfter(err); ra < 1 || ra > 60 {
		t.Fatalf("retry after = %d, want within window", ra)
	}
}

func TestSubjectsAreIndependent(t *testing.T) {
	limiter, _ := newTestLimiter(1, time.Minute)
	ctx := context.Background()
	if err := limiter.Allow(ctx, "auth", "session-1"); err != nil {
		t.Fatalf("first subject: %v", err)
	}
	if err := limiter.Allow(ctx, "auth", "session-2"); err != nil {
		t.Fatalf("second subject: %v", err)
	}
	if err := limiter.Allow(ctx, "auth", "session-1"); !apperr.IsKind(err, apperr.KindRateLimited) {
		t.Fatalf("err = %v, want rate_limited for exhausted subject", err)
	}
}

func TestWindowResets(t *testing.T) {
	limiter, store := newTestLimiter(1, time.Minute)
	now := time.Now()
	store.SetNow(func() time.Time { return now })
	ctx := context.Background()

	if err := limiter.Allow(ctx, "auth", "session-1"); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := limiter.Allow(ctx, "auth", "session-1"); !apperr.IsKind(err, apperr.KindRateLimited) {
		t.Fatalf("err = %v, want rate_limited", err)
	}

	now = now.Add(61 * time.Second)
	if err := limiter.Allow(ctx, "auth", "session-1"); err != nil {
		t.Fatalf("request after window: %v", err)
	}
}

func TestUnknownClassAdmits(t *testing.T) {
	limiter, _ := newTestLimiter(1, time.Minute)
	for i := 0; i < 10; i++ {
		if err := limiter.Allow(context.Background(), "unknown", "session-1"); err != nil {
			t.Fatalf("unknown class rejected: %v", err)
		}
	}
}

func TestConcurrentCallersShareWindow(t *testing.T) {
	limiter, _ := newTestLimiter(5, time.Minute)
	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = limiter.Allow(context.Background(), "auth", "session-1")
		}(i)
	}
	wg.Wait()

	allowed := 0
	for _, err := range errs {
		if err == nil {
			allowed++
		}
	}
	if allowed != 5 {
		t.Fatalf("allowed = %d, want exactly 5", allowed)
	}
}
