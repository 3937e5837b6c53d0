package domain

import (
	"errors"
	"slices"
)

var (
	ErrRoleNotFound = errors.New("role not found")
	ErrInvalidRole  = errors.New("invalid role")
)

// Permission names provisioned at bootstrap.
const (
	PermAdmin            = "admin"
	PermManageStudents   = "manage_students"
	PermManageAttendance = "manage_attendance"
	PermManageGrades     = "manage_grades"
	PermViewData         = "view_data"
	PermViewAnalytics    = "view_analytics"
)

// Role names provisioned at bootstrap.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleViewer  = "viewer"
)

// DefaultRole is assigned at registration when none is requested.
const DefaultRole = RoleViewer

// Permission is a named capability. Immutable once created.
type Permission struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Role bundles permissions. It is the only source of what its holders may do.
type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// Grants reports whether the role's permission set contains name. Matching is
// exact and case-sensitive.
func (r *Role) Grants(name string) bool {
	return slices.Contains(r.Permissions, name)
}

// BootstrapPermissions is the fixed permission catalogue.
var BootstrapPermissions = []Permission{
	{Name: PermAdmin, Description: "Full system access"},
	{Name: PermManageStudents, Description: "Add, edit, and delete students"},
	{Name: PermManageAttendance, Description: "Mark and manage attendance"},
	{Name: PermManageGrades, Description: "Add and manage grades"},
	{Name: PermViewData, Description: "View all data"},
	{Name: PermViewAnalytics, Description: "Access analytics and reports"},
}

// BootstrapRoles is the fixed role set. The admin role is granted every
// permission explicitly; nothing implies anything else.
var BootstrapRoles = []Role{
	{
		Name:        RoleAdmin,
		Description: "Admin role",
		Permissions: []string{PermAdmin, PermManageStudents, PermManageAttendance, PermManageGrades, PermViewData, PermViewAnalytics},
	},
	{
		Name:        RoleTeacher,
		Description: "Teacher role",
		Permissions: []string{PermManageStudents, PermManageAttendance, PermManageGrades, PermViewData, PermViewAnalytics},
	},
	{
		Name:        RoleViewer,
		Description: "Viewer role",
		Permissions: []string{PermViewData, PermViewAnalytics},
	},
}
