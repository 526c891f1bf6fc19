package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/auth"
)

var _ auth.AccountStore = (*AccountStore)(nil)

// AccountStore persists accounts.
type AccountStore struct {
	db *sql.DB
}

const accountColumns = `id, company_id, email, username, user_type, status, password_hash,
	failed_login_attempts, locked_until, last_login,
	two_factor_secret, two_factor_enabled,
	email_verified, email_verification_token, email_verification_expires,
	password_reset_token, password_reset_expires,
	created_at, updated_at, deleted_at`

func scanAccount(row interface{ Scan(...any) error }) (*account.Account, error) {
	var (
		a           account.Account
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
		verToken    sql.NullString
		verExpires  sql.NullTime
		resToken    sql.NullString
		resExpires  sql.NullTime
		deletedAt   sql.NullTime
	)
	err := row.Scan(
		&a.ID, &a.CompanyID, &a.Email, &a.Username, &a.Type, &a.Status, &a.PasswordHash,
		&a.FailedLoginAttempts, &lockedUntil, &lastLogin,
		&a.TwoFactorSecret, &a.TwoFactorEnabled,
		&a.EmailVerified, &verToken, &verExpires,
		&resToken, &resExpires,
		&a.CreatedAt, &a.UpdatedAt, &deletedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if lockedUntil.Valid {
		a.LockedUntil = &lockedUntil.Time
	}
	if lastLogin.Valid {
		a.LastLogin = &lastLogin.Time
	}
	a.EmailVerificationToken = verToken.String
	a.PasswordResetToken = resToken.String
	if verExpires.Valid {
		a.EmailVerificationExpires = &verExpires.Time
	}
	if resExpires.Valid {
		a.PasswordResetExpires = &resExpires.Time
	}
	if deletedAt.Valid {
		a.DeletedAt = &deletedAt.Time
	}
	return &a, nil
}

// Create inserts the account and its role assignments in one transaction so
// a failure never leaves a user without roles.
func (s *AccountStore) Create(ctx context.Context, a *account.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		insert into users(id, company_id, email, username, user_type, status, password_hash,
			email_verification_token, email_verification_expires, created_at, updated_at)
		values($1,$2,$3,$4,$5,$6,$7,nullif($8,''),$9,$10,$10)`,
		a.ID, a.CompanyID, a.Email, a.Username, a.Type, a.Status, a.PasswordHash,
		a.EmailVerificationToken, a.EmailVerificationExpires, a.CreatedAt,
	)
	if err != nil {
		if uniqueViolation(err) {
			return auth.ErrAlreadyExists
		}
		return err
	}
	for _, role := range a.Roles {
		if _, err := tx.ExecContext(ctx, `
			insert into user_roles(user_id, role_id)
			select $1, id from roles where name=$2
			on conflict do nothing`, a.ID, role); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *AccountStore) findBy(ctx context.Context, where string, arg any) (*account.Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from users where `+where, arg))
	if err != nil {
		return nil, err
	}
	if err := s.loadRoles(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AccountStore) loadRoles(ctx context.Context, a *account.Account) error {
	rows, err := s.db.QueryContext(ctx, `
		select r.name from roles r
		join user_roles ur on ur.role_id=r.id
		where ur.user_id=$1 and r.active order by r.name`, a.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	a.Roles = nil
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		a.Roles = append(a.Roles, name)
	}
	return rows.Err()
}

func (s *AccountStore) FindByID(ctx context.Context, id string) (*account.Account, error) {
	return s.findBy(ctx, `id=$1`, id)
}

func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	return s.findBy(ctx, `email=$1`, email)
}

func (s *AccountStore) FindByUsername(ctx context.Context, username string) (*account.Account, error) {
	return s.findBy(ctx, `username=$1`, username)
}

func (s *AccountStore) FindByVerificationToken(ctx context.Context, token string) (*account.Account, error) {
	if token == "" {
		return nil, auth.ErrNotFound
	}
	return s.findBy(ctx, `email_verification_token=$1`, token)
}

func (s *AccountStore) FindByResetToken(ctx context.Context, token string) (*account.Account, error) {
	if token == "" {
		return nil, auth.ErrNotFound
	}
	return s.findBy(ctx, `password_reset_token=$1`, token)
}

// RecordLoginFailure applies the lockout policy under a row lock so two
// concurrent failures never lose an increment.
func (s *AccountStore) RecordLoginFailure(ctx context.Context, id string, policy account.LockoutPolicy, now time.Time) (account.SecurityState, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return account.SecurityState{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var a account.Account
	var lockedUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		select failed_login_attempts, locked_until from users where id=$1 for update`,
		id).Scan(&a.FailedLoginAttempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.SecurityState{}, auth.ErrNotFound
		}
		return account.SecurityState{}, err
	}
	if lockedUntil.Valid {
		a.LockedUntil = &lockedUntil.Time
	}

	state := policy.OnFailure(&a, now)
	if _, err := tx.ExecContext(ctx, `
		update users set failed_login_attempts=$2, locked_until=$3, updated_at=$4 where id=$1`,
		id, state.FailedLoginAttempts, state.LockedUntil, now); err != nil {
		return account.SecurityState{}, err
	}
	if err := tx.Commit(); err != nil {
		return account.SecurityState{}, err
	}
	return state, nil
}

func (s *AccountStore) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, `
		update users set failed_login_attempts=0, locked_until=null, last_login=$2, updated_at=$2
		where id=$1`, id, now)
}

func (s *AccountStore) UpdatePassword(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `
		update users set password_hash=$2, updated_at=now() where id=$1`, id, hash)
}

func (s *AccountStore) SetVerificationToken(ctx context.Context, id, tok string, expires time.Time) error {
	return s.exec(ctx, `
		update users set email_verification_token=$2, email_verification_expires=$3, updated_at=now()
		where id=$1`, id, tok, expires)
}

func (s *AccountStore) MarkEmailVerified(ctx context.Context, id string) error {
	return s.exec(ctx, `
		update users set email_verified=true, email_verification_token=null,
			email_verification_expires=null,
			status=case when status='pending_verification' then 'active' else status end,
			updated_at=now()
		where id=$1`, id)
}

func (s *AccountStore) SetResetToken(ctx context.Context, id, tok string, expires time.Time) error {
	return s.exec(ctx, `
		update users set password_reset_token=$2, password_reset_expires=$3, updated_at=now()
		where id=$1`, id, tok, expires)
}

func (s *AccountStore) ClearResetToken(ctx context.Context, id, hash string) error {
	return s.exec(ctx, `
		update users set password_hash=$2, password_reset_token=null, password_reset_expires=null,
			updated_at=now()
		where id=$1`, id, hash)
}

func (s *AccountStore) SetTwoFactor(ctx context.Context, id, secret string, enabled bool) error {
	return s.exec(ctx, `
		update users set two_factor_secret=$2, two_factor_enabled=$3, updated_at=now()
		where id=$1`, id, secret, enabled)
}

func (s *AccountStore) SetLock(ctx context.Context, id string, until *time.Time) error {
	if until == nil {
		return s.exec(ctx, `
			update users set locked_until=null, failed_login_attempts=0, updated_at=now()
			where id=$1`, id)
	}
	return s.exec(ctx, `
		update users set locked_until=$2, updated_at=now() where id=$1`, id, *until)
}

func (s *AccountStore) UpdateStatus(ctx context.Context, id string, status account.Status) error {
	return s.exec(ctx, `
		update users set status=$2, updated_at=now() where id=$1`, id, status)
}

func (s *AccountStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	return s.exec(ctx, `
		update users set status='deleted', deleted_at=$2, updated_at=$2 where id=$1`, id, now)
}

func (s *AccountStore) Delete(ctx context.Context, id string) error {
	return s.exec(ctx, `delete from users where id=$1`, id)
}

// exec runs a single-row statement, translating zero affected rows into
// NotFound.
func (s *AccountStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
