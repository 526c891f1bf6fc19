package account

import (
	"strings"
	"time"
)

// Permission is a fine-grained capability. PermissionAll implies every other
// permission; that rule lives in Implies and nowhere else.
type Permission string

const (
	PermProductView    Permission = "product.view"
	PermProductCreate  Permission = "product.create"
	PermProductUpdate  Permission = "product.update"
	PermProductDelete  Permission = "product.delete"
	PermProductPublish Permission = "product.publish"

	PermOrderView   Permission = "order.view"
	PermOrderCreate Permission = "order.create"
	PermOrderUpdate Permission = "order.update"
	PermOrderCancel Permission = "order.cancel"
	PermOrderRefund Permission = "order.refund"

	PermUserView    Permission = "user.view"
	PermUserCreate  Permission = "user.create"
	PermUserUpdate  Permission = "user.update"
	PermUserDelete  Permission = "user.delete"
	PermUserSuspend Permission = "user.suspend"

	PermCompanyView     Permission = "company.view"
	PermCompanyUpdate   Permission = "company.update"
	PermCompanySettings Permission = "company.settings"

	PermFinancialView         Permission = "financial.view"
	PermFinancialReports      Permission = "financial.reports"
	PermFinancialTransactions Permission = "financial.transactions"

	PermAnalyticsView   Permission = "analytics.view"
	PermAnalyticsExport Permission = "analytics.export"

	PermSystemSettings Permission = "system.settings"
	PermSystemLogs     Permission = "system.logs"
	PermSystemBackup   Permission = "system.backup"

	// PermissionAll is the super-admin wildcard.
	PermissionAll Permission = "all"
)

// AllPermissions is the fixed catalog, wildcard excluded.
var AllPermissions = []Permission{
	PermProductView, PermProductCreate, PermProductUpdate, PermProductDelete, PermProductPublish,
	PermOrderView, PermOrderCreate, PermOrderUpdate, PermOrderCancel, PermOrderRefund,
	PermUserView, PermUserCreate, PermUserUpdate, PermUserDelete, PermUserSuspend,
	PermCompanyView, PermCompanyUpdate, PermCompanySettings,
	PermFinancialView, PermFinancialReports, PermFinancialTransactions,
	PermAnalyticsView, PermAnalyticsExport,
	PermSystemSettings, PermSystemLogs, PermSystemBackup,
}

// ParsePermission normalizes a permission key, returning false for unknown keys.
func ParsePermission(s string) (Permission, bool) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	if p == PermissionAll {
		return p, true
	}
	for _, known := range AllPermissions {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// PermissionSet is a tagged set of permissions with wildcard semantics.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from keys, dropping unknown ones.
func NewPermissionSet(keys ...string) PermissionSet {
	set := make(PermissionSet, len(keys))
	for _, k := range keys {
		if p, ok := ParsePermission(k); ok {
			set[p] = struct{}{}
		}
	}
	return set
}

// Implies reports whether the set grants perm, treating PermissionAll as
// granting everything.
func (s PermissionSet) Implies(perm Permission) bool {
	if _, ok := s[PermissionAll]; ok {
		return true
	}
	_, ok := s[perm]
	return ok
}

// Keys returns the member permissions as strings.
func (s PermissionSet) Keys() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	return out
}

// Role groups permissions, optionally scoped to a company. System roles are
// immutable through role management.
type Role struct {
	ID          string
	CompanyID   string // empty means system-wide
	Name        string
	Description string
	Permissions PermissionSet
	SystemRole  bool
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasPermission applies the wildcard-aware containment check.
func (r *Role) HasPermission(perm Permission) bool {
	return r.Permissions.Implies(perm)
}

// Well-known role names assigned at registration.
const (
	RoleCustomer   = "customer"
	RoleVendor     = "vendor"
	RoleShopper    = "shopper"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
	RoleSupport    = "support"
)

// DefaultRole maps a user type to the role granted on registration.
func DefaultRole(t Type) string {
	switch t {
	case TypeVendor:
		return RoleVendor
	case TypeShopper:
		return RoleShopper
	case TypeAdmin:
		return RoleAdmin
	case TypeSupport:
		return RoleSupport
	default:
		return RoleCustomer
	}
}
