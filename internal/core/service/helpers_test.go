package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/infrastructure/db/memory"
)

const testSecret = "test-secret"

func newBootstrappedStore(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.New()
	if err := Bootstrap(context.Background(), store, store, BootstrapAdmin{}, zerolog.Nop()); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}
	return store
}

func seedUser(t *testing.T, store *memory.Store, username, password, role string) *domain.User {
	t.Helper()
	ctx := context.Background()
	r, err := store.FindRoleByName(ctx, role)
	if err != nil {
		t.Fatalf("role %q not found: %v", role, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	u, err := store.CreateUser(ctx, &domain.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: string(hash),
		RoleID:       r.ID,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return u
}

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	tokens, err := NewTokenService(&TokenConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	return tokens
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (a *recordingAudit) Enqueue(e domain.AuditEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *recordingAudit) kinds() []domain.AuditKind {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditKind, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Kind)
	}
	return out
}

// stubLimiter blocks a username once failures reaches max.
type stubLimiter struct {
	max      int
	failures map[string]int
	err      error
}

func newStubLimiter(max int) *stubLimiter {
	return &stubLimiter{max: max, failures: make(map[string]int)}
}

func (l *stubLimiter) Allow(_ context.Context, username string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	return l.failures[username] < l.max, nil
}

func (l *stubLimiter) RecordFailure(_ context.Context, username string) error {
	l.failures[username]++
	return nil
}

func (l *stubLimiter) Reset(_ context.Context, username string) error {
	delete(l.failures, username)
	return nil
}

// faultyStore fails every lookup with err.
type faultyStore struct {
	err error
}

func (f faultyStore) FindUserByID(context.Context, int64) (*domain.User, error) {
	return nil, f.err
}

func (f faultyStore) FindUserByUsername(context.Context, string) (*domain.User, error) {
	return nil, f.err
}

func (f faultyStore) RoleOf(context.Context, *domain.User) (*domain.Role, error) {
	return nil, f.err
}

func (f faultyStore) PermissionsOf(context.Context, *domain.Role) ([]string, error) {
	return nil, f.err
}
