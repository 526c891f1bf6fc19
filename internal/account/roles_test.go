package account

import "testing"

func TestPermissionSetImplies(t *testing.T) {
	set := NewPermissionSet("product.view", "order.create")

	if !set.Implies(PermProductView) {
		t.Fatal("expected product.view to be granted")
	}
	if set.Implies(PermUserDelete) {
		t.Fatal("user.delete must not be granted")
	}
}

func TestWildcardImpliesEverything(t *testing.T) {
	set := NewPermissionSet("all")

	for _, p := range AllPermissions {
		if !set.Implies(p) {
			t.Fatalf("wildcard should imply %s", p)
		}
	}
}

func TestNewPermissionSetDropsUnknownKeys(t *testing.T) {
	set := NewPermissionSet("product.view", "warp.drive")

	if len(set) != 1 {
		t.Fatalf("expected 1 permission, got %d", len(set))
	}
	if set.Implies(Permission("warp.drive")) {
		t.Fatal("unknown permission must not be granted")
	}
}

func TestDefaultRoleByType(t *testing.T) {
	cases := map[Type]string{
		TypeCustomer: RoleCustomer,
		TypeVendor:   RoleVendor,
		TypeShopper:  RoleShopper,
		TypeAdmin:    RoleAdmin,
		TypeSupport:  RoleSupport,
	}
	for typ, want := range cases {
		if got := DefaultRole(typ); got != want {
			t.Fatalf("type %s: role = %s, want %s", typ, got, want)
		}
	}
}
