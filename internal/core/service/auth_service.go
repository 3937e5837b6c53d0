package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/core/ports"
)

const (
	minPasswordLength = 6
	// bcrypt rejects longer inputs.
	maxPasswordLength = 72
)

func checkPassword(password string) error {
	if len(password) < minPasswordLength {
		return domain.NewValidationError(fmt.Sprintf("password must be at least %d characters long", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return domain.NewValidationError(fmt.Sprintf("password must be at most %d bytes long", maxPasswordLength))
	}
	return nil
}

// AuthService implements login and administrative registration.
type AuthService struct {
	repo     ports.UserRepository
	tokens   ports.TokenIssuer
	authz    *Authorizer
	limiter  ports.LoginLimiter
	audit    ports.AuditSink
	validate *validator.Validate
	log      zerolog.Logger
}

// NewAuthService wires the login flow. limiter and audit may be nil.
func NewAuthService(
	repo ports.UserRepository,
	tokens ports.TokenIssuer,
	authz *Authorizer,
	limiter ports.LoginLimiter,
	audit ports.AuditSink,
	log zerolog.Logger,
) *AuthService {
	if limiter == nil {
		limiter = nopLimiter{}
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &AuthService{
		repo:     repo,
		tokens:   tokens,
		authz:    authz,
		limiter:  limiter,
		audit:    audit,
		validate: validator.New(),
		log:      log,
	}
}

// Login checks username and password and returns a signed token with the
// caller's identity. Unknown users and wrong passwords are indistinguishable.
func (s *AuthService) Login(ctx context.Context, username, password string) (*ports.LoginResult, error) {
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	allowed, err := s.limiter.Allow(ctx, username)
	if err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("login throttle check failed, continuing")
	} else if !allowed {
		s.audit.Enqueue(newAuditEvent(domain.AuditLoginThrottled, 0, 0, username, nil))
		return nil, domain.ErrTooManyAttempts
	}

	user, err := s.repo.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.loginFailed(ctx, username, 0)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		s.loginFailed(ctx, username, user.ID)
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("login: issue token: %w", err)
	}

	identity, err := s.authz.Resolve(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	if err := s.limiter.Reset(ctx, username); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("failed to reset login throttle")
	}
	s.audit.Enqueue(newAuditEvent(domain.AuditLoginSucceeded, user.ID, user.ID, username, nil))
	s.log.Info().Int64("user_id", user.ID).Msg("login succeeded")

	return &ports.LoginResult{Token: token, User: identity}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, username string, userID int64) {
	if err := s.limiter.RecordFailure(ctx, username); err != nil {
		s.log.Warn().Err(err).Str("username", username).Msg("failed to record login failure")
	}
	s.audit.Enqueue(newAuditEvent(domain.AuditLoginFailed, 0, userID, username, nil))
}

// Register creates an account on behalf of actor. The caller is expected to
// have been authorized for user administration already.
func (s *AuthService) Register(ctx context.Context, actor domain.Identity, in ports.RegisterInput) (domain.Identity, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return domain.Identity{}, domain.NewValidationError("username, email, and password are required")
	}
	if err := s.validate.Var(in.Email, "email"); err != nil {
		return domain.Identity{}, domain.NewValidationError("invalid email format")
	}
	if err := checkPassword(in.Password); err != nil {
		return domain.Identity{}, err
	}

	roleName := in.Role
	if roleName == "" {
		roleName = domain.DefaultRole
	}
	role, err := s.repo.FindRoleByName(ctx, roleName)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return domain.Identity{}, domain.ErrInvalidRole
		}
		return domain.Identity{}, fmt.Errorf("register: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("register: hash password: %w", err)
	}

	now := time.Now().UTC()
	created, err := s.repo.CreateUser(ctx, &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
		RoleID:       role.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.Identity{}, err
	}

	s.audit.Enqueue(newAuditEvent(domain.AuditUserRegistered, actor.ID, created.ID, created.Username,
		map[string]string{"role": role.Name}))
	s.log.Info().Int64("actor_id", actor.ID).Int64("user_id", created.ID).Str("role", role.Name).Msg("user registered")

	return domain.NewIdentity(created, role, role.Permissions), nil
}

func newAuditEvent(kind domain.AuditKind, actorID, targetID int64, username string, details map[string]string) domain.AuditEvent {
	return domain.AuditEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		ActorID:    actorID,
		TargetID:   targetID,
		Username:   username,
		OccurredAt: time.Now().UTC(),
		Details:    details,
	}
}

type nopLimiter struct{}

func (nopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (nopLimiter) RecordFailure(context.Context, string) error { return nil }
func (nopLimiter) Reset(context.Context, string) error { return nil }

type nopAudit struct{}

func (nopAudit) Enqueue(domain.AuditEvent) {}
