package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/auth"
)

func seedSystemRole(t *testing.T, h *harness, name string, perms ...account.Permission) *account.Role {
	t.Helper()
	set := make(account.PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	role := &account.Role{
		ID:          "role-" + name,
		Name:        name,
		Permissions: set,
		SystemRole:  true,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.roles.Create(context.Background(), role); err != nil {
		t.Fatalf("seed role: %v", err)
	}
	return role
}

func TestCreateRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	role, err := h.svc.CreateRole(ctx, auth.RoleRequest{
		Name:        "Warehouse-Ops",
		Description: "warehouse staff",
		Permissions: []string{"product.view", "order.view", "order.update"},
		Active:      true,
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if role.Name != "warehouse-ops" {
		t.Fatalf("name = %q, want normalized", role.Name)
	}
	if role.SystemRole {
		t.Fatal("created roles must not be system roles")
	}
	if !role.HasPermission(account.PermOrderUpdate) {
		t.Fatal("missing granted permission")
	}

	if _, err := h.svc.CreateRole(ctx, auth.RoleRequest{
		Name:        "bad",
		Permissions: []string{"no.such.permission"},
	}); !errors.Is(err, auth.ErrValidationFailed) {
		t.Fatalf("unknown permission: err = %v, want ErrValidationFailed", err)
	}
}

func TestRoleReadsAreIsolated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedSystemRole(t, h, "support", account.PermUserView)

	got, err := h.roles.FindByName(ctx, "", "support")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	// Mutating a fetched role must not leak into the store.
	got.Permissions[account.PermissionAll] = struct{}{}
	got.Active = false

	again, err := h.roles.FindByName(ctx, "", "support")
	if err != nil {
		t.Fatalf("FindByName: %v", err)
	}
	if again.HasPermission(account.PermSystemSettings) {
		t.Fatal("stored role gained a permission through a caller's copy")
	}
	if !again.Active {
		t.Fatal("stored role deactivated through a caller's copy")
	}
}

func TestSystemRoleImmutable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	role := seedSystemRole(t, h, account.RoleSuperAdmin, account.PermissionAll)

	if _, err := h.svc.UpdateRole(ctx, role.ID, auth.RoleRequest{Name: role.Name}); !errors.Is(err, auth.ErrValidationFailed) {
		t.Fatalf("update: err = %v, want ErrValidationFailed", err)
	}
	if err := h.svc.DeleteRole(ctx, role.ID); !errors.Is(err, auth.ErrValidationFailed) {
		t.Fatalf("delete: err = %v, want ErrValidationFailed", err)
	}
}

func TestAssignAndRemoveRole(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "s3cret-pass")
	seedSystemRole(t, h, account.RoleSupport, account.PermUserView, account.PermOrderView)

	if err := h.svc.AssignRole(ctx, "user-1", account.RoleSupport); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	// Assigning twice is a no-op.
	if err := h.svc.AssignRole(ctx, "user-1", account.RoleSupport); err != nil {
		t.Fatalf("second AssignRole: %v", err)
	}
	if err := h.svc.AssignRole(ctx, "user-1", "no-such-role"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("unknown role: err = %v, want ErrNotFound", err)
	}

	names, err := h.roles.RolesForUser(ctx, "user-1")
	if err != nil || len(names) != 1 {
		t.Fatalf("roles = %v, %v", names, err)
	}

	if err := h.svc.RemoveRole(ctx, "user-1", account.RoleSupport); err != nil {
		t.Fatalf("RemoveRole: %v", err)
	}
	if err := h.svc.RemoveRole(ctx, "user-1", account.RoleSupport); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("remove again: err = %v, want ErrNotFound", err)
	}
}

func TestRequirePermission(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "s3cret-pass")
	seedSystemRole(t, h, account.RoleSupport, account.PermUserView)
	seedSystemRole(t, h, account.RoleSuperAdmin, account.PermissionAll)

	if err := h.svc.AssignRole(ctx, "user-1", account.RoleSupport); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := h.svc.RequirePermission(ctx, "user-1", account.PermUserView); err != nil {
		t.Fatalf("granted permission refused: %v", err)
	}
	if err := h.svc.RequirePermission(ctx, "user-1", account.PermSystemBackup); !errors.Is(err, auth.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	// The wildcard grants everything.
	if err := h.svc.AssignRole(ctx, "user-1", account.RoleSuperAdmin); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := h.svc.RequirePermission(ctx, "user-1", account.PermSystemBackup); err != nil {
		t.Fatalf("wildcard refused: %v", err)
	}
}

func TestListRolesScoping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedSystemRole(t, h, account.RoleCustomer, account.PermOrderView)

	if _, err := h.svc.CreateRole(ctx, auth.RoleRequest{
		CompanyID:   "company-7",
		Name:        "picker",
		Permissions: []string{"product.view"},
		Active:      true,
	}); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	list, err := h.svc.ListRoles(ctx, "company-7")
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("roles = %d, want system + company role", len(list))
	}

	other, err := h.svc.ListRoles(ctx, "company-9")
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("roles = %d, want system role only", len(other))
	}
}
