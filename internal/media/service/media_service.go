// Package service fronts the media request broker with the resilience
// layer. Reads degrade to the last known good data when the broker is down;
// writes fail fast with a clear unavailable error.
package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/counterstore"
	"medianest/backend/internal/mediabroker"
	"medianest/backend/internal/resilience"
)

const (
	requestsCacheKey = "mediacache:requests"
	requestsCacheTTL = 10 * time.Minute
	defaultListTake  = 50
)

// Broker is the media request broker API the service depends on.
type Broker interface {
	ListRequests(ctx context.Context, take int) ([]mediabroker.MediaRequest, error)
	SubmitRequest(ctx context.Context, mediaType string, mediaID int64) (*mediabroker.MediaRequest, error)
	Search(ctx context.Context, query string) ([]mediabroker.SearchResult, error)
}

// RequestList is a list of media requests plus whether it came from cache
// because the broker was unreachable.
type RequestList struct {
	Requests []mediabroker.MediaRequest
	Degraded bool
}

// SearchResults carries search hits and the degraded flag; a degraded search
// is empty rather than stale, stale search results are worse than none.
type SearchResults struct {
	Results  []mediabroker.SearchResult
	Degraded bool
}

type MediaService struct {
	broker Broker
	rc     *resilience.Client
	store  counterstore.Store
}

func NewMediaService(broker Broker, rc *resilience.Client, store counterstore.Store) *MediaService {
	return &MediaService{broker: broker, rc: rc, store: store}
}

// ListRequests returns current requests from the broker, falling back to the
// cached copy when it is unavailable.
func (s *MediaService) ListRequests(ctx context.Context) (*RequestList, error) {
	return resilience.Call(ctx, s.rc,
		func(ctx context.Context) (*RequestList, error) {
			requests, err := s.broker.ListRequests(ctx, defaultListTake)
			if err != nil {
				return nil, err
			}
			s.cacheRequests(ctx, requests)
			return &RequestList{Requests: requests}, nil
		},
		func(ctx context.Context, cause error) (*RequestList, error) {
			cached, ok := s.cachedRequests(ctx)
			if !ok {
				return nil, cause
			}
			return &RequestList{Requests: cached, Degraded: true}, nil
		})
}

// SubmitRequest forwards a new media request. There is no degraded mode for
// writes; an unreachable broker surfaces as unavailable.
func (s *MediaService) SubmitRequest(ctx context.Context, mediaType string, mediaID int64) (*mediabroker.MediaRequest, error) {
	if mediaType != "movie" && mediaType != "tv" {
		return nil, apperr.Invalid("media_type must be movie or tv")
	}
	if mediaID <= 0 {
		return nil, apperr.Invalid("media_id is required")
	}
	return resilience.Call(ctx, s.rc,
		func(ctx context.Context) (*mediabroker.MediaRequest, error) {
			return s.broker.SubmitRequest(ctx, mediaType, mediaID)
		},
		func(ctx context.Context, cause error) (*mediabroker.MediaRequest, error) {
			return nil, cause
		})
}

// Search queries the broker, degrading to an empty result set when it is
// unavailable.
func (s *MediaService) Search(ctx context.Context, query string) (*SearchResults, error) {
	if query == "" {
		return nil, apperr.Invalid("query is required")
	}
	return resilience.Call(ctx, s.rc,
		func(ctx context.Context) (*SearchResults, error) {
			results, err := s.broker.Search(ctx, query)
			if err != nil {
				return nil, err
			}
			return &SearchResults{Results: results}, nil
		},
		func(ctx context.Context, cause error) (*SearchResults, error) {
			return &SearchResults{Results: []mediabroker.SearchResult{}, Degraded: true}, nil
		})
}

func (s *MediaService) cacheRequests(ctx context.Context, requests []mediabroker.MediaRequest) {
	raw, err := json.Marshal(requests)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, requestsCacheKey, string(raw), requestsCacheTTL); err != nil {
		log.Printf("media: cache write failed: %v", err)
	}
}

func (s *MediaService) cachedRequests(ctx context.Context) ([]mediabroker.MediaRequest, bool) {
	raw, ok, err := s.store.Get(ctx, requestsCacheKey)
	if err != nil || !ok {
		return nil, false
	}
	var requests []mediabroker.MediaRequest
	if err := json.Unmarshal([]byte(raw), &requests); err != nil {
		return nil, false
	}
	return requests, true
}
