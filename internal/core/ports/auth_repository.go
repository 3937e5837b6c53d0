package ports

import (
	"context"

	"github.com/classroll/records-api/internal/core/domain"
)

// CredentialStore is the read side the auth core depends on. Every call is a
// fresh lookup; implementations must not cache role or permission data.
type CredentialStore interface {
	// FindUserByID returns domain.ErrUserNotFound when no user has the id.
	FindUserByID(ctx context.Context, id int64) (*domain.User, error)
	// FindUserByUsername returns domain.ErrUserNotFound when no user matches.
	FindUserByUsername(ctx context.Context, username string) (*domain.User, error)
	// RoleOf returns domain.ErrRoleNotFound when the user's role is gone.
	RoleOf(ctx context.Context, user *domain.User) (*domain.Role, error)
	// PermissionsOf returns the role's current permission names.
	PermissionsOf(ctx context.Context, role *domain.Role) ([]string, error)
}

// UserRepository adds the administrative write side on top of CredentialStore.
type UserRepository interface {
	CredentialStore

	ListUsers(ctx context.Context) ([]*domain.User, error)
	// CreateUser assigns the id. It returns domain.ErrUserExists or
	// domain.ErrEmailExists on uniqueness conflicts.
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	// UpdateUser replaces the stored fields of user.ID.
	UpdateUser(ctx context.Context, user *domain.User) error
	DeleteUser(ctx context.Context, id int64) error
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)

	FindRoleByName(ctx context.Context, name string) (*domain.Role, error)
	ListRoles(ctx context.Context) ([]*domain.Role, error)
}

// Provisioner creates the bootstrap catalogue. Both calls are idempotent.
type Provisioner interface {
	EnsurePermission(ctx context.Context, p domain.Permission) error
	// EnsureRole creates the role if missing and adds any permission in
	// role.Permissions it does not hold yet. Existing grants are kept.
	EnsureRole(ctx context.Context, role domain.Role) (*domain.Role, error)
}
