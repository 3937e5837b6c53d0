package service

import (
	"context"
	"errors"
	"testing"

	"github.com/classroll/records-api/internal/core/domain"
)

func TestAuthorizer_RoleMembership(t *testing.T) {
	store := newBootstrappedStore(t)
	admin := seedUser(t, store, "root", "rootpass", domain.RoleAdmin)
	teacher := seedUser(t, store, "tina", "tinapass", domain.RoleTeacher)
	viewer := seedUser(t, store, "vic", "vicpass", domain.RoleViewer)
	authz := NewAuthorizer(store)

	cases := []struct {
		name       string
		user       *domain.User
		capability string
		want       bool
	}{
		{"admin holds admin", admin, domain.PermAdmin, true},
		{"admin holds view_data", admin, domain.PermViewData, true},
		{"teacher lacks admin", teacher, domain.PermAdmin, false},
		{"teacher manages grades", teacher, domain.PermManageGrades, true},
		{"viewer views data", viewer, domain.PermViewData, true},
		{"viewer cannot manage students", viewer, domain.PermManageStudents, false},
		{"unknown capability", admin, "launch_rockets", false},
		{"case sensitive", admin, "ADMIN", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := authz.Authorize(context.Background(), domain.Identity{ID: tc.user.ID}, tc.capability)
			if err != nil {
				t.Fatalf("Authorize returned error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestAuthorizer_IgnoresIdentitySnapshot(t *testing.T) {
	store := newBootstrappedStore(t)
	viewer := seedUser(t, store, "vic", "vicpass", domain.RoleViewer)
	authz := NewAuthorizer(store)

	forged := domain.Identity{ID: viewer.ID, Role: domain.RoleAdmin, Permissions: []string{domain.PermAdmin}}
	ok, err := authz.Authorize(context.Background(), forged, domain.PermAdmin)
	if err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if ok {
		t.Fatalf("expected snapshot permissions to be ignored")
	}
}

func TestAuthorizer_SeesGrantChangesImmediately(t *testing.T) {
	store := newBootstrappedStore(t)
	viewer := seedUser(t, store, "vic", "vicpass", domain.RoleViewer)
	authz := NewAuthorizer(store)
	ctx := context.Background()
	id := domain.Identity{ID: viewer.ID}

	if ok, _ := authz.Authorize(ctx, id, domain.PermViewData); !ok {
		t.Fatalf("expected view_data before revocation")
	}

	if err := store.SetRolePermissions(domain.RoleViewer, []string{domain.PermViewAnalytics}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if ok, _ := authz.Authorize(ctx, id, domain.PermViewData); ok {
		t.Fatalf("expected view_data revoked on next check")
	}

	if err := store.SetRolePermissions(domain.RoleViewer, []string{domain.PermViewAnalytics, domain.PermManageGrades}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	if ok, _ := authz.Authorize(ctx, id, domain.PermManageGrades); !ok {
		t.Fatalf("expected new grant on next check")
	}
}

func TestAuthorizer_SeesRoleReassignment(t *testing.T) {
	store := newBootstrappedStore(t)
	user := seedUser(t, store, "tina", "tinapass", domain.RoleTeacher)
	authz := NewAuthorizer(store)
	ctx := context.Background()

	viewerRole, _ := store.FindRoleByName(ctx, domain.RoleViewer)
	user.RoleID = viewerRole.ID
	if err := store.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if ok, _ := authz.Authorize(ctx, domain.Identity{ID: user.ID, Role: domain.RoleTeacher}, domain.PermManageGrades); ok {
		t.Fatalf("expected reassigned user to lose teacher grants")
	}
}

func TestAuthorizer_MissingUserOrRoleDenies(t *testing.T) {
	store := newBootstrappedStore(t)
	user := seedUser(t, store, "tina", "tinapass", domain.RoleTeacher)
	authz := NewAuthorizer(store)
	ctx := context.Background()

	ok, err := authz.Authorize(ctx, domain.Identity{ID: 999}, domain.PermViewData)
	if ok || !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Fatalf("expected identity_not_found denial for unknown user, got %v, %v", ok, err)
	}

	if err := store.DeleteRole(domain.RoleTeacher); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	ok, err = authz.Authorize(ctx, domain.Identity{ID: user.ID}, domain.PermViewData)
	if err != nil || ok {
		t.Fatalf("expected deny without error for dangling role, got %v, %v", ok, err)
	}
}

func TestAuthorizer_StoreFault(t *testing.T) {
	boom := errors.New("connection reset")
	authz := NewAuthorizer(faultyStore{err: boom})

	ok, err := authz.Authorize(context.Background(), domain.Identity{ID: 1}, domain.PermViewData)
	if ok {
		t.Fatalf("expected deny on store fault")
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestAuthorizer_ResolveDanglingRole(t *testing.T) {
	store := newBootstrappedStore(t)
	user := seedUser(t, store, "tina", "tinapass", domain.RoleTeacher)
	authz := NewAuthorizer(store)

	if err := store.DeleteRole(domain.RoleTeacher); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}

	id, err := authz.Resolve(context.Background(), user)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if id.Role != "" || len(id.Permissions) != 0 {
		t.Fatalf("expected empty role and permissions, got %+v", id)
	}
	if id.Username != "tina" {
		t.Fatalf("unexpected username: %s", id.Username)
	}
}
