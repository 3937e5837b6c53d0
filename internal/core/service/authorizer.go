package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/core/ports"
)

// Authorizer decides whether an identity holds a capability. It reads the
// role-permission graph on every call so grant changes apply to the very
// next check.
type Authorizer struct {
	store ports.CredentialStore
}

func NewAuthorizer(store ports.CredentialStore) *Authorizer {
	return &Authorizer{store: store}
}

// Authorize reports whether capability is in the permission set of the
// identity's current role. A missing role denies with a nil error. A user
// that no longer exists denies with domain.ErrIdentityNotFound. Any other
// store error is returned so the caller fails closed as a server fault.
func (a *Authorizer) Authorize(ctx context.Context, identity domain.Identity, capability string) (bool, error) {
	user, err := a.store.FindUserByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return false, domain.ErrIdentityNotFound
		}
		return false, fmt.Errorf("authorize: user lookup: %w", err)
	}

	role, err := a.store.RoleOf(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("authorize: role lookup: %w", err)
	}

	perms, err := a.store.PermissionsOf(ctx, role)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("authorize: permission lookup: %w", err)
	}

	role.Permissions = perms
	return role.Grants(capability), nil
}

// Resolve builds the outbound identity for user from a fresh role snapshot.
// A dangling role yields an identity with no role name and no permissions.
func (a *Authorizer) Resolve(ctx context.Context, user *domain.User) (domain.Identity, error) {
	role, err := a.store.RoleOf(ctx, user)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return domain.NewIdentity(user, nil, nil), nil
		}
		return domain.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}

	perms, err := a.store.PermissionsOf(ctx, role)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return domain.NewIdentity(user, nil, nil), nil
		}
		return domain.Identity{}, fmt.Errorf("resolve identity: %w", err)
	}
	return domain.NewIdentity(user, role, perms), nil
}
