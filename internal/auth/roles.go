package auth

import (
	"context"
	"errors"
	"fmt"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/ids"
)

// RoleRequest is a role create or update request. An empty CompanyID makes
// the role system-wide.
type RoleRequest struct {
	CompanyID   string
	Name        string
	Description string
	Permissions []string
	Active      bool
}

// CreateRole adds a custom role. Names are unique; system roles are seeded
// by migration and never created here.
func (s *Service) CreateRole(ctx context.Context, req RoleRequest) (*account.Role, error) {
	if s.roles == nil {
		return nil, ErrStoreUnavailable
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	role := &account.Role{
		ID:          ids.New(),
		CompanyID:   req.CompanyID,
		Name:        account.NormalizeUsername(req.Name),
		Description: req.Description,
		Permissions: perms,
		SystemRole:  false,
		Active:      req.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, s.infra(err)
	}
	return role, nil
}

// UpdateRole changes a custom role. System roles are immutable.
func (s *Service) UpdateRole(ctx context.Context, roleID string, req RoleRequest) (*account.Role, error) {
	if s.roles == nil {
		return nil, ErrStoreUnavailable
	}
	role, err := s.roles.Find(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.infra(err)
	}
	if role.SystemRole {
		return nil, fmt.Errorf("%w: system role %q is immutable", ErrValidationFailed, role.Name)
	}
	perms, err := parsePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}
	role.Description = req.Description
	role.Permissions = perms
	role.Active = req.Active
	role.UpdatedAt = s.now().UTC()
	if err := s.roles.Update(ctx, role); err != nil {
		return nil, s.infra(err)
	}
	return role, nil
}

// DeleteRole removes a custom role and its assignments. System roles are
// immutable.
func (s *Service) DeleteRole(ctx context.Context, roleID string) error {
	if s.roles == nil {
		return ErrStoreUnavailable
	}
	role, err := s.roles.Find(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	if role.SystemRole {
		return fmt.Errorf("%w: system role %q is immutable", ErrValidationFailed, role.Name)
	}
	if err := s.roles.Delete(ctx, roleID); err != nil {
		return s.infra(err)
	}
	return nil
}

// GetRole returns one role by id.
func (s *Service) GetRole(ctx context.Context, roleID string) (*account.Role, error) {
	if s.roles == nil {
		return nil, ErrStoreUnavailable
	}
	role, err := s.roles.Find(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.infra(err)
	}
	return role, nil
}

// ListRoles returns the system-wide roles plus the company's own ones.
func (s *Service) ListRoles(ctx context.Context, companyID string) ([]*account.Role, error) {
	if s.roles == nil {
		return nil, ErrStoreUnavailable
	}
	list, err := s.roles.List(ctx, companyID)
	if err != nil {
		return nil, s.infra(err)
	}
	return list, nil
}

// AssignRole grants a role to a user. Assigning an already-held role is a
// no-op.
func (s *Service) AssignRole(ctx context.Context, userID, roleName string) error {
	if s.roles == nil {
		return ErrStoreUnavailable
	}
	if _, err := s.roles.FindByName(ctx, "", roleName); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	if err := s.roles.Assign(ctx, userID, roleName); err != nil {
		return s.infra(err)
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// RemoveRole revokes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, userID, roleName string) error {
	if s.roles == nil {
		return ErrStoreUnavailable
	}
	if err := s.roles.Remove(ctx, userID, roleName); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// UserPermissions returns the effective permission set across the user's
// active roles.
func (s *Service) UserPermissions(ctx context.Context, userID string) (account.PermissionSet, error) {
	if s.roles == nil {
		return account.PermissionSet{}, nil
	}
	set, err := s.roles.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, s.infra(err)
	}
	return set, nil
}

// RequirePermission checks that the user holds perm, directly or through
// the wildcard.
func (s *Service) RequirePermission(ctx context.Context, userID string, perm account.Permission) error {
	set, err := s.UserPermissions(ctx, userID)
	if err != nil {
		return err
	}
	if !set.Implies(perm) {
		return ErrUnauthorized
	}
	return nil
}

func parsePermissions(raw []string) (account.PermissionSet, error) {
	set := make(account.PermissionSet, len(raw))
	for _, r := range raw {
		p, ok := account.ParsePermission(r)
		if !ok {
			return nil, fmt.Errorf("%w: unknown permission %q", ErrValidationFailed, r)
		}
		set[p] = struct{}{}
	}
	return set, nil
}
