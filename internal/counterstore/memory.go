package counterstore

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	fields    map[string]string
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// MemoryStore is an in-process Store for tests and single-instance
// deployments. All operations run under one mutex, which makes every compound
// operation trivially atomic. Expired entries are dropped lazily on access.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]*memoryEntry
	nowF func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]*memoryEntry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the store clock. Test helper.
func (s *MemoryStore) SetNow(f func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowF = f
}

// get returns the live entry for key, dropping it first when expired.
// Caller must hold mu.
func (s *MemoryStore) get(key string) *memoryEntry {
	e, ok := s.m[key]
	if !ok {
		return nil
	}
	if e.expired(s.nowF()) {
		delete(s.m, key)
		return nil
	}
	return e
}

// IncrWindow increments key, starting a new window when the key is absent.
func (s *MemoryStore) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowF()
	e := s.get(key)
	if e == nil {
		e = &memoryEntry{value: "1", expiresAt: now.Add(window)}
		s.m[key] = e
		return 1, window, nil
	}
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	ttl := time.Duration(0)
	if !e.expiresAt.IsZero() {
		ttl = e.expiresAt.Sub(now)
	}
	return n, ttl, nil
}

// Get returns the value at key.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value at key with the given TTL.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &memoryEntry{value: value}
	if ttl > 0 {
		e.expiresAt = s.nowF().Add(ttl)
	}
	s.m[key] = e
	return nil
}

// GetFields returns a copy of the hash fields at key.
func (s *MemoryStore) GetFields(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil || e.fields == nil {
		return nil, nil
	}
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out, nil
}

// SetFields merges fields into the hash at key and applies ttl when > 0.
func (s *MemoryStore) SetFields(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		e = &memoryEntry{fields: make(map[string]string)}
		s.m[key] = e
	}
	if e.fields == nil {
		e.fields = make(map[string]string)
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	if ttl > 0 {
		e.expiresAt = s.nowF().Add(ttl)
	}
	return nil
}

// IncrField adds delta to the integer hash field at key.
func (s *MemoryStore) IncrField(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		e = &memoryEntry{fields: make(map[string]string)}
		s.m[key] = e
	}
	if e.fields == nil {
		e.fields = make(map[string]string)
	}
	n, _ := strconv.ParseInt(e.fields[field], 10, 64)
	n += delta
	e.fields[field] = strconv.FormatInt(n, 10)
	return n, nil
}

// CompareAndSwapField swaps field from old to new atomically.
func (s *MemoryStore) CompareAndSwapField(ctx context.Context, key, field, old, new string, extra map[string]string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	current := ""
	if e != nil && e.fields != nil {
		current = e.fields[field]
	}
	if current != old {
		return false, current, nil
	}
	if e == nil {
		e = &memoryEntry{fields: make(map[string]string)}
		s.m[key] = e
	}
	if e.fields == nil {
		e.fields = make(map[string]string)
	}
	e.fields[field] = new
	for k, v := range extra {
		e.fields[k] = v
	}
	return true, new, nil
}

// TTL returns the remaining TTL for key.
func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.get(key)
	if e == nil {
		return 0, false, nil
	}
	if e.expiresAt.IsZero() {
		return 0, true, nil
	}
	return e.expiresAt.Sub(s.nowF()), true, nil
}

// Delete removes key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }
