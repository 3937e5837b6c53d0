package ports

import (
	"context"

	"github.com/classroll/records-api/internal/core/domain"
)

// RegisterInput carries a new account's fields. Role defaults to
// domain.DefaultRole when empty.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     string
}

// LoginResult is what a successful login hands back to the caller.
type LoginResult struct {
	Token string
	User  domain.Identity
}

type AuthService interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Register(ctx context.Context, actor domain.Identity, input RegisterInput) (domain.Identity, error)
}

// UpdateUserInput holds an administrative patch. Nil fields are left alone.
type UpdateUserInput struct {
	Username *string
	Email    *string
	Role     *string
	Password *string
}

type UserService interface {
	ListUsers(ctx context.Context) ([]domain.Identity, error)
	UpdateUser(ctx context.Context, actor domain.Identity, id int64, input UpdateUserInput) (domain.Identity, error)
	DeleteUser(ctx context.Context, actor domain.Identity, id int64) error
	ListRoles(ctx context.Context) ([]*domain.Role, error)
}

// TokenIssuer and TokenVerifier split the token service for consumers that
// only need one side.
type TokenIssuer interface {
	Issue(subjectID int64) (string, error)
}

type TokenVerifier interface {
	Verify(token string) (int64, error)
}
