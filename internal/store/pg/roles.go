package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/auth"
)

var _ auth.RoleStore = (*RoleStore)(nil)

// RoleStore persists role definitions and user role assignments. Permission
// keys are stored as a jsonb array.
type RoleStore struct {
	db *sql.DB
}

const roleColumns = `id, company_id, name, description, permissions, system_role, active, created_at, updated_at`

func scanRole(row interface{ Scan(...any) error }) (*account.Role, error) {
	var (
		r     account.Role
		perms []byte
	)
	err := row.Scan(&r.ID, &r.CompanyID, &r.Name, &r.Description, &perms,
		&r.SystemRole, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	var keys []string
	_ = json.Unmarshal(perms, &keys)
	r.Permissions = account.NewPermissionSet(keys...)
	return &r, nil
}

func (s *RoleStore) Create(ctx context.Context, role *account.Role) error {
	perms, _ := json.Marshal(role.Permissions.Keys())
	_, err := s.db.ExecContext(ctx, `
		insert into roles(id, company_id, name, description, permissions, system_role, active, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,$8,$8)`,
		role.ID, role.CompanyID, role.Name, role.Description,
		perms, role.SystemRole, role.Active, role.CreatedAt,
	)
	if uniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *RoleStore) Find(ctx context.Context, id string) (*account.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id=$1`, id))
}

func (s *RoleStore) FindByName(ctx context.Context, companyID, name string) (*account.Role, error) {
	return scanRole(s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where company_id=$1 and name=$2`, companyID, name))
}

func (s *RoleStore) List(ctx context.Context, companyID string) ([]*account.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+roleColumns+` from roles
		where company_id='' or company_id=$1 order by name`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*account.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, role)
	}
	return res, rows.Err()
}

func (s *RoleStore) Update(ctx context.Context, role *account.Role) error {
	perms, _ := json.Marshal(role.Permissions.Keys())
	res, err := s.db.ExecContext(ctx, `
		update roles set description=$2, permissions=$3, active=$4, updated_at=$5
		where id=$1 and not system_role`,
		role.ID, role.Description, perms, role.Active, role.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RoleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from roles where id=$1 and not system_role`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RoleStore) Assign(ctx context.Context, userID, roleName string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_roles(user_id, role_id)
		select $1, id from roles where name=$2
		on conflict do nothing`, userID, roleName)
	return err
}

func (s *RoleStore) Remove(ctx context.Context, userID, roleName string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from user_roles
		where user_id=$1 and role_id in (select id from roles where name=$2)`,
		userID, roleName)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *RoleStore) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name from roles r
		join user_roles ur on ur.role_id=r.id
		where ur.user_id=$1 and r.active order by r.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *RoleStore) PermissionsForUser(ctx context.Context, userID string) (account.PermissionSet, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.permissions from roles r
		join user_roles ur on ur.role_id=r.id
		where ur.user_id=$1 and r.active`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(account.PermissionSet)
	for rows.Next() {
		var perms []byte
		if err := rows.Scan(&perms); err != nil {
			return nil, err
		}
		var keys []string
		_ = json.Unmarshal(perms, &keys)
		for p := range account.NewPermissionSet(keys...) {
			set[p] = struct{}{}
		}
	}
	return set, rows.Err()
}
