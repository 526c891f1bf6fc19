package auth

import (
	"context"
	"time"

	"bazario.org/user-service/internal/account"
)

// AccountStore is the persistence contract for accounts. Implementations
// return ErrNotFound / ErrAlreadyExists from this package; any other error is
// treated as infrastructure failure. Multi-step mutations (failure counting,
// unlocks) must execute inside a single transaction so concurrent logins
// cannot lose updates.
type AccountStore interface {
	Create(ctx context.Context, acc *account.Account) error
	FindByID(ctx context.Context, id string) (*account.Account, error)
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
	FindByUsername(ctx context.Context, username string) (*account.Account, error)
	FindByVerificationToken(ctx context.Context, token string) (*account.Account, error)
	FindByResetToken(ctx context.Context, token string) (*account.Account, error)

	// RecordLoginFailure applies the lockout policy to the current row state
	// atomically and returns the resulting counter and lock.
	RecordLoginFailure(ctx context.Context, id string, policy account.LockoutPolicy, now time.Time) (account.SecurityState, error)
	// RecordLoginSuccess resets the counter, clears the lock and stamps
	// last-login.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error

	UpdatePassword(ctx context.Context, id, hash string) error
	SetVerificationToken(ctx context.Context, id, tok string, expires time.Time) error
	MarkEmailVerified(ctx context.Context, id string) error
	SetResetToken(ctx context.Context, id, tok string, expires time.Time) error
	ClearResetToken(ctx context.Context, id, hash string) error
	SetTwoFactor(ctx context.Context, id, secret string, enabled bool) error

	// SetLock sets or clears an administrative lock. Clearing also resets the
	// failed-login counter.
	SetLock(ctx context.Context, id string, until *time.Time) error
	UpdateStatus(ctx context.Context, id string, status account.Status) error
	SoftDelete(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// RoleStore manages role definitions and user role assignments.
type RoleStore interface {
	Create(ctx context.Context, role *account.Role) error
	Find(ctx context.Context, id string) (*account.Role, error)
	FindByName(ctx context.Context, companyID, name string) (*account.Role, error)
	List(ctx context.Context, companyID string) ([]*account.Role, error)
	Update(ctx context.Context, role *account.Role) error
	Delete(ctx context.Context, id string) error

	Assign(ctx context.Context, userID, roleName string) error
	Remove(ctx context.Context, userID, roleName string) error
	RolesForUser(ctx context.Context, userID string) ([]string, error)
	PermissionsForUser(ctx context.Context, userID string) (account.PermissionSet, error)
}

// ActivityType enumerates the recorded user activity events.
type ActivityType string

const (
	ActivityLogin              ActivityType = "login"
	ActivityLogout             ActivityType = "logout"
	ActivityFailedLogin        ActivityType = "failed_login_attempt"
	ActivityAccountCreated     ActivityType = "account_created"
	ActivityAccountLocked      ActivityType = "account_locked"
	ActivityAccountUnlocked    ActivityType = "account_unlocked"
	ActivityAccountDeleted     ActivityType = "account_deleted"
	ActivityPasswordChanged    ActivityType = "password_changed"
	ActivityPasswordResetAsked ActivityType = "password_reset_requested"
	ActivityEmailVerified      ActivityType = "email_verified"
	ActivityTwoFactorEnabled   ActivityType = "two_factor_enabled"
	ActivityTwoFactorDisabled  ActivityType = "two_factor_disabled"
	ActivitySessionStarted     ActivityType = "session_started"
	ActivitySessionTerminated  ActivityType = "session_terminated"
)

// Activity is one append-only user activity record.
type Activity struct {
	ID          string
	UserID      string
	Type        ActivityType
	Description string
	IP          string
	UserAgent   string
	Suspicious  bool
	CreatedAt   time.Time
}

// ActivityStore appends immutable activity records.
type ActivityStore interface {
	Append(ctx context.Context, entry *Activity) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Activity, error)
}

// SnapshotCache caches user snapshots by ID. Misses are cheap; the cache is
// never the source of truth.
type SnapshotCache interface {
	Get(ctx context.Context, id string) (*Snapshot, bool)
	Set(ctx context.Context, snap *Snapshot)
	Invalidate(ctx context.Context, id string)
}

// nopCache satisfies SnapshotCache when no cache backend is configured.
type nopCache struct{}

func (nopCache) Get(context.Context, string) (*Snapshot, bool) { return nil, false }
func (nopCache) Set(context.Context, *Snapshot)                {}
func (nopCache) Invalidate(context.Context, string)            {}
