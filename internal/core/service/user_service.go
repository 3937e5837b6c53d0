package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/core/ports"
)

// UserService implements administrative user and role management.
type UserService struct {
	repo     ports.UserRepository
	authz    *Authorizer
	audit    ports.AuditSink
	validate *validator.Validate
	log      zerolog.Logger
}

// NewUserService wires user administration. audit may be nil.
func NewUserService(repo ports.UserRepository, authz *Authorizer, audit ports.AuditSink, log zerolog.Logger) *UserService {
	if audit == nil {
		audit = nopAudit{}
	}
	return &UserService{repo: repo, authz: authz, audit: audit, validate: validator.New(), log: log}
}

func (s *UserService) ListUsers(ctx context.Context) ([]domain.Identity, error) {
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.Identity, 0, len(users))
	for _, u := range users {
		id, err := s.authz.Resolve(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		out = append(out, id)
	}
	return out, nil
}

// UpdateUser applies an administrative patch. An actor may never modify its
// own account this way, whatever its permissions.
func (s *UserService) UpdateUser(ctx context.Context, actor domain.Identity, id int64, in ports.UpdateUserInput) (domain.Identity, error) {
	if actor.ID == id {
		return domain.Identity{}, domain.ErrSelfModification
	}

	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return domain.Identity{}, err
	}

	changed := make([]string, 0, 4)

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return domain.Identity{}, domain.NewValidationError("username cannot be empty")
		}
		if username != user.Username {
			if err := s.ensureFree(ctx, s.repo.FindUserByUsername, username, domain.ErrUserExists); err != nil {
				return domain.Identity{}, err
			}
			user.Username = username
			changed = append(changed, "username")
		}
	}

	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email == "" {
			return domain.Identity{}, domain.NewValidationError("email cannot be empty")
		}
		if err := s.validate.Var(email, "email"); err != nil {
			return domain.Identity{}, domain.NewValidationError("invalid email format")
		}
		if email != user.Email {
			if err := s.ensureFree(ctx, s.repo.FindUserByEmail, email, domain.ErrEmailExists); err != nil {
				return domain.Identity{}, err
			}
			user.Email = email
			changed = append(changed, "email")
		}
	}

	if in.Role != nil {
		role, err := s.repo.FindRoleByName(ctx, *in.Role)
		if err != nil {
			if errors.Is(err, domain.ErrRoleNotFound) {
				return domain.Identity{}, domain.ErrInvalidRole
			}
			return domain.Identity{}, fmt.Errorf("update user: %w", err)
		}
		if role.ID != user.RoleID {
			user.RoleID = role.ID
			changed = append(changed, "role")
		}
	}

	if in.Password != nil && *in.Password != "" {
		if err := checkPassword(*in.Password); err != nil {
			return domain.Identity{}, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.Identity{}, fmt.Errorf("update user: hash password: %w", err)
		}
		user.PasswordHash = string(hash)
		changed = append(changed, "password")
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return domain.Identity{}, err
	}

	s.audit.Enqueue(newAuditEvent(domain.AuditUserUpdated, actor.ID, user.ID, user.Username,
		map[string]string{"fields": strings.Join(changed, ",")}))
	s.log.Info().Int64("actor_id", actor.ID).Int64("user_id", user.ID).Strs("fields", changed).Msg("user updated")

	return s.authz.Resolve(ctx, user)
}

// DeleteUser removes an account. An actor may never delete itself.
func (s *UserService) DeleteUser(ctx context.Context, actor domain.Identity, id int64) error {
	if actor.ID == id {
		return domain.ErrSelfDeletion
	}

	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}

	s.audit.Enqueue(newAuditEvent(domain.AuditUserDeleted, actor.ID, id, user.Username,
		map[string]string{"id": strconv.FormatInt(id, 10)}))
	s.log.Info().Int64("actor_id", actor.ID).Int64("user_id", id).Msg("user deleted")
	return nil
}

func (s *UserService) ListRoles(ctx context.Context) ([]*domain.Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// ensureFree returns conflict when find locates an existing user for value.
func (s *UserService) ensureFree(
	ctx context.Context,
	find func(context.Context, string) (*domain.User, error),
	value string,
	conflict error,
) error {
	_, err := find(ctx, value)
	switch {
	case err == nil:
		return conflict
	case errors.Is(err, domain.ErrUserNotFound):
		return nil
	default:
		return fmt.Errorf("update user: %w", err)
	}
}
