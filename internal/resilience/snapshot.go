package resilience

import (
	"context"
	"encoding/json"
	"time"

	"medianest/backend/internal/counterstore"
)

// Snapshot status values.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Snapshot is the last-known health of one dependency, cached independently
// of the breaker state for client display. The websocket broadcaster and the
// polling endpoint both read from this store, so the two delivery paths can
// never disagree.
type Snapshot struct {
	ServiceName   string    `json:"serviceName"`
	Status        string    `json:"status"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
	LatencyMs     int64     `json:"latencyMs"`
}

// SnapshotStore persists snapshots in the counter store under
// counterstore.StatusKey and fans updates out to an optional listener.
type SnapshotStore struct {
	store    counterstore.Store
	services []string
	// listener receives every stored snapshot. Set once at wiring time,
	// before any Put; the status broadcaster hangs off this.
	listener func(Snapshot)
}

// NewSnapshotStore returns a snapshot store for the given dependency names.
func NewSnapshotStore(store counterstore.Store, services []string) *SnapshotStore {
	return &SnapshotStore{store: store, services: services}
}

// SetListener registers the snapshot listener. Must be called before the
// resilience clients start producing snapshots.
func (s *SnapshotStore) SetListener(f func(Snapshot)) { s.listener = f }

// Put stores the snapshot and notifies the listener.
func (s *SnapshotStore) Put(ctx context.Context, snap Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, counterstore.StatusKey(snap.ServiceName), string(payload), 0); err != nil {
		return err
	}
	if s.listener != nil {
		s.listener(snap)
	}
	return nil
}

// Get returns the snapshot for the named service, or nil when none was
// recorded yet.
func (s *SnapshotStore) Get(ctx context.Context, serviceName string) (*Snapshot, error) {
	v, ok, err := s.store.Get(ctx, counterstore.StatusKey(serviceName))
	if err != nil || !ok {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(v), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// List returns the snapshots for all known services, skipping services with
// no recorded snapshot yet.
func (s *SnapshotStore) List(ctx context.Context) ([]Snapshot, error) {
	out := make([]Snapshot, 0, len(s.services))
	for _, name := range s.services {
		snap, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		if snap != nil {
			out = append(out, *snap)
		}
	}
	return out, nil
}
