package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/core/ports"
)

// BootstrapAdmin describes the optional first administrator. It is created
// only when Username and Password are set and no user with that name exists.
type BootstrapAdmin struct {
	Username string
	Email    string
	Password string
}

// Bootstrap provisions the fixed permission catalogue and role set, then the
// optional admin account. It is safe to run on every start.
func Bootstrap(ctx context.Context, prov ports.Provisioner, repo ports.UserRepository, admin BootstrapAdmin, log zerolog.Logger) error {
	for _, p := range domain.BootstrapPermissions {
		if err := prov.EnsurePermission(ctx, p); err != nil {
			return fmt.Errorf("bootstrap permission %q: %w", p.Name, err)
		}
	}

	for _, r := range domain.BootstrapRoles {
		if _, err := prov.EnsureRole(ctx, r); err != nil {
			return fmt.Errorf("bootstrap role %q: %w", r.Name, err)
		}
	}

	if admin.Username == "" || admin.Password == "" {
		log.Debug().Msg("no bootstrap admin configured")
		return nil
	}

	_, err := repo.FindUserByUsername(ctx, admin.Username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("bootstrap admin lookup: %w", err)
	}

	role, err := repo.FindRoleByName(ctx, domain.RoleAdmin)
	if err != nil {
		return fmt.Errorf("bootstrap admin role: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("bootstrap admin hash: %w", err)
	}

	now := time.Now().UTC()
	created, err := repo.CreateUser(ctx, &domain.User{
		Username:     admin.Username,
		Email:        admin.Email,
		PasswordHash: string(hash),
		RoleID:       role.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin create: %w", err)
	}

	log.Info().Int64("user_id", created.ID).Str("username", created.Username).Msg("bootstrap admin created")
	return nil
}
