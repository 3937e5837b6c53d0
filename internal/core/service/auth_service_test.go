package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/core/ports"
	"github.com/classroll/records-api/internal/infrastructure/db/memory"
)

func newTestAuthService(t *testing.T, store *memory.Store, limiter ports.LoginLimiter, audit ports.AuditSink) (*AuthService, *TokenService) {
	t.Helper()
	tokens := newTestTokens(t)
	return NewAuthService(store, tokens, NewAuthorizer(store), limiter, audit, zerolog.Nop()), tokens
}

func TestAuthService_Login_Success(t *testing.T) {
	store := newBootstrappedStore(t)
	carol := seedUser(t, store, "carol", "s3cret", domain.RoleTeacher)
	audit := &recordingAudit{}
	svc, tokens := newTestAuthService(t, store, nil, audit)

	res, err := svc.Login(context.Background(), "carol", "s3cret")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.Token == "" {
		t.Fatalf("expected token, got empty")
	}
	if res.User.ID != carol.ID || res.User.Role != domain.RoleTeacher {
		t.Fatalf("unexpected identity: %+v", res.User)
	}
	if !slices.Contains(res.User.Permissions, domain.PermManageGrades) {
		t.Fatalf("expected teacher permissions, got %v", res.User.Permissions)
	}

	sub, err := tokens.Verify(res.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if sub != carol.ID {
		t.Fatalf("expected sub %d, got %d", carol.ID, sub)
	}
	if got := audit.kinds(); !slices.Equal(got, []domain.AuditKind{domain.AuditLoginSucceeded}) {
		t.Fatalf("unexpected audit trail: %v", got)
	}
}

func TestAuthService_Login_FailuresAreIndistinguishable(t *testing.T) {
	store := newBootstrappedStore(t)
	seedUser(t, store, "dave", "goodpass", domain.RoleViewer)
	svc, _ := newTestAuthService(t, store, nil, nil)
	ctx := context.Background()

	_, wrongPass := svc.Login(ctx, "dave", "badpass")
	_, unknown := svc.Login(ctx, "ghost", "badpass")
	_, empty := svc.Login(ctx, "", "")

	for _, err := range []error{wrongPass, unknown, empty} {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	}
}

func TestAuthService_Login_Throttled(t *testing.T) {
	store := newBootstrappedStore(t)
	seedUser(t, store, "erin", "goodpass", domain.RoleViewer)
	limiter := newStubLimiter(2)
	audit := &recordingAudit{}
	svc, _ := newTestAuthService(t, store, limiter, audit)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Login(ctx, "erin", "nope"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	if _, err := svc.Login(ctx, "erin", "goodpass"); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}

	want := []domain.AuditKind{domain.AuditLoginFailed, domain.AuditLoginFailed, domain.AuditLoginThrottled}
	if got := audit.kinds(); !slices.Equal(got, want) {
		t.Fatalf("unexpected audit trail: %v", got)
	}

	_ = limiter.Reset(ctx, "erin")
	if _, err := svc.Login(ctx, "erin", "goodpass"); err != nil {
		t.Fatalf("expected login after reset, got %v", err)
	}
}

func TestAuthService_Login_SuccessResetsFailures(t *testing.T) {
	store := newBootstrappedStore(t)
	seedUser(t, store, "fay", "goodpass", domain.RoleViewer)
	limiter := newStubLimiter(5)
	svc, _ := newTestAuthService(t, store, limiter, nil)
	ctx := context.Background()

	_, _ = svc.Login(ctx, "fay", "nope")
	if _, err := svc.Login(ctx, "fay", "goodpass"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if limiter.failures["fay"] != 0 {
		t.Fatalf("expected failures reset, got %d", limiter.failures["fay"])
	}
}

func TestAuthService_Login_LimiterFaultDoesNotBlock(t *testing.T) {
	store := newBootstrappedStore(t)
	seedUser(t, store, "gus", "goodpass", domain.RoleViewer)
	limiter := newStubLimiter(1)
	limiter.err = errors.New("redis down")
	svc, _ := newTestAuthService(t, store, limiter, nil)

	if _, err := svc.Login(context.Background(), "gus", "goodpass"); err != nil {
		t.Fatalf("expected login to proceed when limiter fails, got %v", err)
	}
}

func TestAuthService_Login_StoreFault(t *testing.T) {
	boom := errors.New("timeout")
	repo := &faultyRepo{Store: newBootstrappedStore(t), err: boom}
	svc := NewAuthService(repo, newTestTokens(t), NewAuthorizer(repo), nil, nil, zerolog.Nop())

	if _, err := svc.Login(context.Background(), "anyone", "pass"); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestAuthService_Register_DefaultRole(t *testing.T) {
	store := newBootstrappedStore(t)
	audit := &recordingAudit{}
	svc, _ := newTestAuthService(t, store, nil, audit)
	actor := domain.Identity{ID: 1}

	id, err := svc.Register(context.Background(), actor, ports.RegisterInput{
		Username: "  alice ",
		Email:    "alice@example.com",
		Password: "pass123",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if id.Username != "alice" {
		t.Fatalf("expected trimmed username, got %q", id.Username)
	}
	if id.Role != domain.RoleViewer {
		t.Fatalf("expected default role viewer, got %q", id.Role)
	}

	stored, err := store.FindUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("user not stored: %v", err)
	}
	if stored.PasswordHash == "pass123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pass123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	if got := audit.kinds(); !slices.Equal(got, []domain.AuditKind{domain.AuditUserRegistered}) {
		t.Fatalf("unexpected audit trail: %v", got)
	}
	if audit.events[0].ActorID != actor.ID || audit.events[0].TargetID != id.ID {
		t.Fatalf("unexpected audit event: %+v", audit.events[0])
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	store := newBootstrappedStore(t)
	svc, _ := newTestAuthService(t, store, nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		in   ports.RegisterInput
	}{
		{"missing fields", ports.RegisterInput{Username: "bob"}},
		{"bad email", ports.RegisterInput{Username: "bob", Email: "not-an-email", Password: "pass123"}},
		{"short password", ports.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "12345"}},
		{"password over bcrypt limit", ports.RegisterInput{Username: "bob", Email: "bob@example.com", Password: strings.Repeat("x", 80)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(ctx, domain.Identity{ID: 1}, tc.in)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	if _, err := svc.Register(ctx, domain.Identity{ID: 1}, ports.RegisterInput{
		Username: "bob", Email: "bob@example.com", Password: strings.Repeat("x", 72),
	}); err != nil {
		t.Fatalf("expected 72-byte password to be accepted, got %v", err)
	}

	_, err := svc.Register(ctx, domain.Identity{ID: 1}, ports.RegisterInput{
		Username: "carl", Email: "carl@example.com", Password: "pass123", Role: "wizard",
	})
	if !errors.Is(err, domain.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	store := newBootstrappedStore(t)
	svc, _ := newTestAuthService(t, store, nil, nil)
	ctx := context.Background()
	actor := domain.Identity{ID: 1}

	if _, err := svc.Register(ctx, actor, ports.RegisterInput{Username: "bob", Email: "bob@example.com", Password: "pass123"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	_, err := svc.Register(ctx, actor, ports.RegisterInput{Username: "bob", Email: "other@example.com", Password: "pass123"})
	if !errors.Is(err, domain.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	_, err = svc.Register(ctx, actor, ports.RegisterInput{Username: "bobby", Email: "bob@example.com", Password: "pass123"})
	if !errors.Is(err, domain.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestAuthService_Register_ThenLogin(t *testing.T) {
	store := newBootstrappedStore(t)
	svc, _ := newTestAuthService(t, store, nil, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, domain.Identity{ID: 1}, ports.RegisterInput{
		Username: "hank", Email: "hank@example.com", Password: "hunter22", Role: domain.RoleTeacher,
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	res, err := svc.Login(ctx, "hank", "hunter22")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.User.Role != domain.RoleTeacher {
		t.Fatalf("unexpected role: %s", res.User.Role)
	}
}

// faultyRepo fails username lookups with err and delegates everything else.
type faultyRepo struct {
	*memory.Store
	err error
}

func (r *faultyRepo) FindUserByUsername(context.Context, string) (*domain.User, error) {
	return nil, r.err
}
