package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/auth"
)

var accountRowColumns = []string{
	"id", "company_id", "email", "username", "user_type", "status", "password_hash",
	"failed_login_attempts", "locked_until", "last_login",
	"two_factor_secret", "two_factor_enabled",
	"email_verified", "email_verification_token", "email_verification_expires",
	"password_reset_token", "password_reset_expires",
	"created_at", "updated_at", "deleted_at",
}

// accountRow mirrors a verified account at rest: the verification and reset
// token columns are NULL, as they are on every row after verification.
func accountRow(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(accountRowColumns).AddRow(
		"user-1", "", "jo@example.com", "jo", "customer", "active", "$2a$10$hash",
		0, nil, nil,
		"", false,
		true, nil, nil,
		nil, nil,
		now, now, nil,
	)
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestAccountFindByEmail(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery("select .* from users where email=").
		WithArgs("jo@example.com").
		WillReturnRows(accountRow(now))
	mock.ExpectQuery("select r.name from roles").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("customer"))

	acc, err := NewStore(db).Accounts().FindByEmail(context.Background(), "jo@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if acc.ID != "user-1" || acc.Status != account.StatusActive {
		t.Fatalf("account = %+v", acc)
	}
	if len(acc.Roles) != 1 || acc.Roles[0] != "customer" {
		t.Fatalf("roles = %v", acc.Roles)
	}
	if acc.EmailVerificationToken != "" || acc.PasswordResetToken != "" {
		t.Fatalf("null token columns should scan as empty, got %q / %q",
			acc.EmailVerificationToken, acc.PasswordResetToken)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountFindByEmailNotFound(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery("select .* from users where email=").
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := NewStore(db).Accounts().FindByEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAccountCreateAssignsRolesInOneTx(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_roles").
		WithArgs("user-1", "customer").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := NewStore(db).Accounts().Create(context.Background(), &account.Account{
		ID: "user-1", Email: "jo@example.com", Username: "jo",
		Type: account.TypeCustomer, Status: account.StatusPendingVerification,
		Roles: []string{"customer"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountCreateRollsBackOnRoleFailure(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into user_roles").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := NewStore(db).Accounts().Create(context.Background(), &account.Account{
		ID: "user-1", Email: "jo@example.com", Username: "jo",
		Type: account.TypeCustomer, Status: account.StatusPendingVerification,
		Roles: []string{"customer"},
	})
	if err == nil {
		t.Fatal("want error when role assignment fails")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("insert into users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	mock.ExpectRollback()

	err := NewStore(db).Accounts().Create(context.Background(), &account.Account{
		ID: "user-1", Email: "jo@example.com", Username: "jo",
		Type: account.TypeCustomer, Status: account.StatusPendingVerification,
	})
	if !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestRecordLoginFailureLocks(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select failed_login_attempts, locked_until from users where id=.* for update").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(4, nil))
	mock.ExpectExec("update users set failed_login_attempts=").
		WithArgs("user-1", 5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	state, err := NewStore(db).Accounts().RecordLoginFailure(
		context.Background(), "user-1",
		account.LockoutPolicy{Threshold: 5, LockDuration: 30 * time.Minute}, now)
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if state.FailedLoginAttempts != 5 {
		t.Fatalf("attempts = %d, want 5", state.FailedLoginAttempts)
	}
	if state.LockedUntil == nil || !state.LockedUntil.Equal(now.Add(30*time.Minute)) {
		t.Fatalf("locked until = %v", state.LockedUntil)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRecordLoginFailureBelowThreshold(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select failed_login_attempts, locked_until from users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_login_attempts", "locked_until"}).AddRow(1, nil))
	mock.ExpectExec("update users set failed_login_attempts=").
		WithArgs("user-1", 2, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	state, err := NewStore(db).Accounts().RecordLoginFailure(
		context.Background(), "user-1", account.DefaultLockoutPolicy(), time.Now().UTC())
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if state.FailedLoginAttempts != 2 || state.LockedUntil != nil {
		t.Fatalf("state = %+v", state)
	}
}

func TestSetLockClearResetsCounter(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("update users set locked_until=null, failed_login_attempts=0").
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewStore(db).Accounts().SetLock(context.Background(), "user-1", nil); err != nil {
		t.Fatalf("SetLock: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountUpdateUnknownRow(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectExec("update users set status=").
		WithArgs("ghost", "suspended").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewStore(db).Accounts().UpdateStatus(context.Background(), "ghost", account.StatusSuspended)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
