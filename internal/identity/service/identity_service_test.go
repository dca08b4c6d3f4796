package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/identity/domain"
	"medianest/backend/internal/security"
)

type fakeRepo struct {
	mu         sync.Mutex
	byID       map[string]*domain.Identity
	byUsername map[string]*domain.Identity
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byID: map[string]*domain.Identity{}, byUsername: map[string]*domain.Identity{}}
}

func (r *fakeRepo) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byID[id]; ok {
		copied := *i
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Identity, error) {
	return nil, nil
}

func (r *fakeRepo) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byUsername[username]; ok {
		copied := *i
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeRepo) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, i := range r.byID {
		if i.Email != "" && strings.EqualFold(i.Email, email) {
			copied := *i
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) Create(ctx context.Context, i *domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *i
	r.byID[i.ID] = &copied
	r.byUsername[i.Username] = &copied
	return nil
}

func (r *fakeRepo) UpdateProfile(ctx context.Context, i *domain.Identity) error { return nil }

func (r *fakeRepo) SetDisabled(ctx context.Context, id string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.byID[id]; ok {
		i.Disabled = disabled
		r.byUsername[i.Username].Disabled = disabled
	}
	return nil
}

func newTestService(t *testing.T) (*IdentityService, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewIdentityService(repo, security.NewHasher(4), nil), repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Register(ctx, "samwise", "sam@shire.example", "po-ta-toes", domain.RoleUser)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if created.PasswordHash == "po-ta-toes" {
		t.Fatal("password stored in clear")
	}

	identity, err := svc.Login(ctx, "samwise", "po-ta-toes")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if identity.ID != created.ID {
		t.Fatalf("logged in as %s, want %s", identity.ID, created.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "samwise", "", "po-ta-toes", domain.RoleUser); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := svc.Login(ctx, "samwise", "wrong")
	if !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Login(context.Background(), "nobody", "whatever")
	if !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	created, err := svc.Register(ctx, "samwise", "", "po-ta-toes", domain.RoleUser)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := repo.SetDisabled(ctx, created.ID, true); err != nil {
		t.Fatalf("SetDisabled: %v", err)
	}

	_, err = svc.Login(ctx, "samwise", "po-ta-toes")
	if !apperr.IsKind(err, apperr.KindUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "samwise", "", "po-ta-toes", domain.RoleUser); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, "samwise", "", "second-breakfast", domain.RoleUser)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, "samwise", "sam@shire.example", "po-ta-toes", domain.RoleUser); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, "sam", "sam@shire.example", "second-breakfast", domain.RoleUser)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	// Case differences do not make the address distinct.
	_, err = svc.Register(ctx, "sammy", "SAM@shire.example", "second-breakfast", domain.RoleUser)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict for case variant", err)
	}
	// Accounts without an email never collide.
	if _, err := svc.Register(ctx, "merry", "", "mushrooms!", domain.RoleUser); err != nil {
		t.Fatalf("Register without email: %v", err)
	}
	if _, err := svc.Register(ctx, "pippin", "", "elevenses", domain.RoleUser); err != nil {
		t.Fatalf("Register second account without email: %v", err)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Register(context.Background(), "samwise", "", "short", domain.RoleUser)
	if !apperr.IsKind(err, apperr.KindInvalid) {
		t.Fatalf("err = %v, want invalid", err)
	}
}
