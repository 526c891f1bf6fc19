package mem

import (
	"context"
	"sync"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/auth"
)

// Roles holds role definitions and user assignments.
type Roles struct {
	mu          sync.Mutex
	byID        map[string]*account.Role
	assignments map[string][]string // userID -> role names
}

func NewRoles() *Roles {
	return &Roles{
		byID:        make(map[string]*account.Role),
		assignments: make(map[string][]string),
	}
}

// clone keeps the stored role private to the store, like mem.Accounts does.
func (m *Roles) clone(r *account.Role) *account.Role {
	cp := *r
	cp.Permissions = make(account.PermissionSet, len(r.Permissions))
	for p := range r.Permissions {
		cp.Permissions[p] = struct{}{}
	}
	return &cp
}

func (m *Roles) Create(_ context.Context, role *account.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.Name == role.Name && r.CompanyID == role.CompanyID {
			return auth.ErrAlreadyExists
		}
	}
	m.byID[role.ID] = m.clone(role)
	return nil
}

func (m *Roles) Find(_ context.Context, id string) (*account.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.byID[id]; ok {
		return m.clone(r), nil
	}
	return nil, auth.ErrNotFound
}

func (m *Roles) FindByName(_ context.Context, companyID, name string) (*account.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.byID {
		if r.Name == name && r.CompanyID == companyID {
			return m.clone(r), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Roles) List(_ context.Context, companyID string) ([]*account.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*account.Role
	for _, r := range m.byID {
		if r.CompanyID == "" || r.CompanyID == companyID {
			out = append(out, m.clone(r))
		}
	}
	return out, nil
}

func (m *Roles) Update(_ context.Context, role *account.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[role.ID]; !ok {
		return auth.ErrNotFound
	}
	m.byID[role.ID] = m.clone(role)
	return nil
}

func (m *Roles) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *Roles) Assign(_ context.Context, userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range m.assignments[userID] {
		if name == roleName {
			return nil
		}
	}
	m.assignments[userID] = append(m.assignments[userID], roleName)
	return nil
}

func (m *Roles) Remove(_ context.Context, userID, roleName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := m.assignments[userID]
	for i, name := range names {
		if name == roleName {
			m.assignments[userID] = append(names[:i], names[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *Roles) RolesForUser(_ context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.assignments[userID]...), nil
}

func (m *Roles) PermissionsForUser(_ context.Context, userID string) (account.PermissionSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(account.PermissionSet)
	for _, name := range m.assignments[userID] {
		for _, r := range m.byID {
			if r.Name == name && r.Active {
				for p := range r.Permissions {
					set[p] = struct{}{}
				}
			}
		}
	}
	return set, nil
}
