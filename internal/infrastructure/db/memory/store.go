// Package memory is an in-process credential store. It backs tests and the
// "memory" store driver for local runs without MongoDB.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/classroll/records-api/internal/core/domain"
)

type Store struct {
	mu sync.RWMutex

	users       map[int64]*domain.User
	roles       map[int64]*domain.Role
	permissions map[string]domain.Permission
	audit       []domain.AuditEvent

	nextUserID int64
	nextRoleID int64
}

func New() *Store {
	return &Store{
		users:       make(map[int64]*domain.User),
		roles:       make(map[int64]*domain.Role),
		permissions: make(map[string]domain.Permission),
	}
}

func (s *Store) FindUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) FindUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *Store) RoleOf(_ context.Context, user *domain.User) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[user.RoleID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return cloneRole(r), nil
}

func (s *Store) PermissionsOf(_ context.Context, role *domain.Role) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[role.ID]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return slices.Clone(r.Permissions), nil
}

func (s *Store) ListUsers(_ context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUnique(user); err != nil {
		return nil, err
	}
	s.nextUserID++
	cp := *user
	cp.ID = s.nextUserID
	s.users[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *Store) UpdateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	if err := s.checkUnique(user); err != nil {
		return err
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

// checkUnique must be called with the write lock held.
func (s *Store) checkUnique(user *domain.User) error {
	for _, u := range s.users {
		if u.ID == user.ID {
			continue
		}
		if u.Username == user.Username {
			return domain.ErrUserExists
		}
		if user.Email != "" && u.Email == user.Email {
			return domain.ErrEmailExists
		}
	}
	return nil
}

func (s *Store) FindRoleByName(_ context.Context, name string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := s.roleByName(name); r != nil {
		return cloneRole(r), nil
	}
	return nil, domain.ErrRoleNotFound
}

func (s *Store) ListRoles(_ context.Context) ([]*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, cloneRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) EnsurePermission(_ context.Context, p domain.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.permissions[p.Name]; !ok {
		s.permissions[p.Name] = p
	}
	return nil
}

func (s *Store) EnsureRole(_ context.Context, role domain.Role) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roleByName(role.Name)
	if r == nil {
		s.nextRoleID++
		r = &domain.Role{ID: s.nextRoleID, Name: role.Name, Description: role.Description, Permissions: []string{}}
		s.roles[r.ID] = r
	}
	for _, p := range role.Permissions {
		if !slices.Contains(r.Permissions, p) {
			r.Permissions = append(r.Permissions, p)
		}
	}
	return cloneRole(r), nil
}

func (s *Store) InsertAuditEvent(_ context.Context, event *domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.audit = append(s.audit, *event)
	return nil
}

// AuditEvents returns a copy of every stored audit event in insertion order.
func (s *Store) AuditEvents() []domain.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.audit)
}

// SetRolePermissions replaces the permission set of the named role.
func (s *Store) SetRolePermissions(name string, perms []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roleByName(name)
	if r == nil {
		return domain.ErrRoleNotFound
	}
	r.Permissions = slices.Clone(perms)
	return nil
}

// DeleteRole removes the named role, leaving its holders with a dangling
// role reference.
func (s *Store) DeleteRole(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.roleByName(name)
	if r == nil {
		return domain.ErrRoleNotFound
	}
	delete(s.roles, r.ID)
	return nil
}

func (s *Store) roleByName(name string) *domain.Role {
	for _, r := range s.roles {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func cloneRole(r *domain.Role) *domain.Role {
	cp := *r
	cp.Permissions = slices.Clone(r.Permissions)
	return &cp
}
