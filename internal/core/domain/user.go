package domain

import (
	"errors"
	"time"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many login attempts")
	ErrSelfModification   = errors.New("cannot modify your own account")
	ErrSelfDeletion       = errors.New("cannot delete your own account")
)

// User models an account that can authenticate against the API.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	RoleID       int64     `json:"role_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the authenticated principal handed to protected operations.
// Permissions is the snapshot taken when the identity was resolved; it is
// informational only and never consulted for authorization decisions.
type Identity struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	RoleID      int64    `json:"-"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// NewIdentity builds the outbound identity for u. role may be nil when the
// user's role no longer exists.
func NewIdentity(u *User, role *Role, permissions []string) Identity {
	id := Identity{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		RoleID:      u.RoleID,
		Permissions: permissions,
	}
	if role != nil {
		id.Role = role.Name
	}
	if id.Permissions == nil {
		id.Permissions = []string{}
	}
	return id
}
