package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/counterstore"
	"medianest/backend/internal/mediabroker"
	"medianest/backend/internal/resilience"
)

type fakeBroker struct {
	mu       sync.Mutex
	requests []mediabroker.MediaRequest
	results  []mediabroker.SearchResult
	err      error
}

func (b *fakeBroker) ListRequests(ctx context.Context, take int) ([]mediabroker.MediaRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.requests, nil
}

func (b *fakeBroker) SubmitRequest(ctx context.Context, mediaType string, mediaID int64) (*mediabroker.MediaRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return &mediabroker.MediaRequest{ID: 1, MediaType: mediaType}, nil
}

func (b *fakeBroker) Search(ctx context.Context, query string) ([]mediabroker.SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.results, nil
}

func (b *fakeBroker) fail(err error) {
	b.mu.Lock()
	b.err = err
	b.mu.Unlock()
}

func newTestService() (*MediaService, *fakeBroker) {
	store := counterstore.NewMemoryStore()
	settings := resilience.Settings{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		MaxResetTimeout:  5 * time.Minute,
		CallTimeout:      time.Second,
		MaxAttempts:      1,
	}
	breaker := resilience.NewBreaker("mediabroker", store, settings)
	rc := resilience.NewClient("mediabroker", breaker, settings, nil)
	broker := &fakeBroker{
		requests: []mediabroker.MediaRequest{{ID: 7, MediaType: "movie"}},
		results:  []mediabroker.SearchResult{{ID: 11, Title: "The Whale"}},
	}
	return NewMediaService(broker, rc, store), broker
}

func TestListRequestsCachesAndDegrades(t *testing.T) {
	svc, broker := newTestService()
	ctx := context.Background()

	list, err := svc.ListRequests(ctx)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if list.Degraded || len(list.Requests) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}

	broker.fail(resilience.Transient(errors.New("broker down")))
	list, err = svc.ListRequests(ctx)
	if err != nil {
		t.Fatalf("ListRequests degraded: %v", err)
	}
	if !list.Degraded {
		t.Fatal("expected degraded flag on cached response")
	}
	if len(list.Requests) != 1 || list.Requests[0].ID != 7 {
		t.Fatalf("cached requests = %+v", list.Requests)
	}
}

func TestListRequestsNoCacheSurfacesUnavailable(t *testing.T) {
	svc, broker := newTestService()
	broker.fail(resilience.Transient(errors.New("broker down")))

	_, err := svc.ListRequests(context.Background())
	if !apperr.IsKind(err, apperr.KindDependencyUnavailable) {
		t.Fatalf("err = %v, want dependency_unavailable", err)
	}
}

func TestSubmitRequestValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.SubmitRequest(ctx, "book", 1); !apperr.IsKind(err, apperr.KindInvalid) {
		t.Fatalf("err = %v, want invalid media_type", err)
	}
	if _, err := svc.SubmitRequest(ctx, "movie", 0); !apperr.IsKind(err, apperr.KindInvalid) {
		t.Fatalf("err = %v, want invalid media_id", err)
	}

	created, err := svc.SubmitRequest(ctx, "movie", 42)
	if err != nil {
		t.Fatalf("SubmitRequest: %v", err)
	}
	if created.MediaType != "movie" {
		t.Fatalf("unexpected request: %+v", created)
	}
}

func TestSubmitRequestBrokerDown(t *testing.T) {
	svc, broker := newTestService()
	broker.fail(resilience.Transient(errors.New("broker down")))

	_, err := svc.SubmitRequest(context.Background(), "movie", 42)
	if !apperr.IsKind(err, apperr.KindDependencyUnavailable) {
		t.Fatalf("err = %v, want dependency_unavailable", err)
	}
}

func TestSearchDegradesToEmpty(t *testing.T) {
	svc, broker := newTestService()
	ctx := context.Background()

	results, err := svc.Search(ctx, "whale")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results.Degraded || len(results.Results) != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}

	broker.fail(resilience.Transient(errors.New("broker down")))
	results, err = svc.Search(ctx, "whale")
	if err != nil {
		t.Fatalf("Search degraded: %v", err)
	}
	if !results.Degraded || len(results.Results) != 0 {
		t.Fatalf("degraded results = %+v", results)
	}
}
