package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"medianest/backend/internal/audit/domain"
)

type fakeRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
	err     error
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	return nil, nil
}

func (r *fakeRepo) ListRecent(ctx context.Context, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func (r *fakeRepo) ListByIdentity(ctx context.Context, identityID string, limit, offset int32) ([]*domain.AuditLog, error) {
	return nil, nil
}

func (r *fakeRepo) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, a)
	return nil
}

func TestLogEventPersistsEntry(t *testing.T) {
	repo := &fakeRepo{}
	logger := NewLogger(repo, func(context.Context) string { return "10.1.2.3" })

	logger.LogEvent(context.Background(), "id-1", ActionLoginFailure, "session", `{"username":"frodo"}`)

	if len(repo.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(repo.entries))
	}
	e := repo.entries[0]
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("entry missing id or timestamp: %+v", e)
	}
	if e.IdentityID != "id-1" || e.Action != ActionLoginFailure || e.IP != "10.1.2.3" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestLogEventWithoutExtractor(t *testing.T) {
	repo := &fakeRepo{}
	logger := NewLogger(repo, nil)

	logger.LogEvent(context.Background(), "", ActionLogout, "session", "")

	if repo.entries[0].IP != "unknown" {
		t.Fatalf("ip = %q, want unknown", repo.entries[0].IP)
	}
}

func TestLogEventSwallowsRepoErrors(t *testing.T) {
	repo := &fakeRepo{err: errors.New("db down")}
	logger := NewLogger(repo, nil)
	// Must not panic or propagate.
	logger.LogEvent(context.Background(), "id-1", ActionSessionRevoked, "session", "")
}
