package account

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive              Status = "active"
	StatusInactive            Status = "inactive"
	StatusSuspended           Status = "suspended"
	StatusPendingVerification Status = "pending_verification"
	StatusDeleted             Status = "deleted"
)

// ValidStatus reports whether s is one of the known account statuses.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPendingVerification, StatusDeleted:
		return true
	}
	return false
}

// Type distinguishes the kind of user an account was registered as.
type Type string

const (
	TypeCustomer Type = "customer"
	TypeVendor   Type = "vendor"
	TypeShopper  Type = "shopper"
	TypeAdmin    Type = "admin"
	TypeSupport  Type = "support"
)

// ParseType normalizes a user type string, defaulting to customer.
func ParseType(s string) Type {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeVendor:
		return TypeVendor
	case TypeShopper:
		return TypeShopper
	case TypeAdmin:
		return TypeAdmin
	case TypeSupport:
		return TypeSupport
	default:
		return TypeCustomer
	}
}

// Account is the identity and security state of a single user.
// Email and username are stored lowercased; uniqueness is enforced
// store-wide, not per company.
type Account struct {
	ID        string
	CompanyID string // empty means system-wide
	Email     string
	Username  string
	Type      Type
	Status    Status

	PasswordHash string

	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLogin           *time.Time

	TwoFactorSecret  string
	TwoFactorEnabled bool

	EmailVerified            bool
	EmailVerificationToken   string
	EmailVerificationExpires *time.Time
	PasswordResetToken       string
	PasswordResetExpires     *time.Time

	Roles []string

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Locked reports whether the account is currently locked out. A lock-until
// timestamp in the past no longer blocks login; expiry is lazy.
func (a *Account) Locked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// CanLogin reports whether the account status admits authentication.
// Accounts pending email verification may not log in until verified.
func (a *Account) CanLogin() bool {
	return a.Status == StatusActive
}

// SecurityState is the failed-attempt counter and lock decision produced by
// the lockout policy. It is computed in memory and persisted by the caller.
type SecurityState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
}

// LockoutPolicy decides when repeated failures lock an account.
type LockoutPolicy struct {
	Threshold    int
	LockDuration time.Duration
}

// DefaultLockoutPolicy mirrors the production defaults: five strikes, half an
// hour out.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, LockDuration: 30 * time.Minute}
}

// OnFailure increments the counter and sets a lock once the threshold is
// crossed. It does not persist; the orchestrator owns that step.
func (p LockoutPolicy) OnFailure(a *Account, now time.Time) SecurityState {
	state := SecurityState{
		FailedLoginAttempts: a.FailedLoginAttempts + 1,
		LockedUntil:         a.LockedUntil,
	}
	if p.Threshold > 0 && state.FailedLoginAttempts >= p.Threshold {
		until := now.Add(p.LockDuration)
		state.LockedUntil = &until
	}
	return state
}

// OnSuccess resets the counter and clears any lock, regardless of prior value.
func (p LockoutPolicy) OnSuccess() SecurityState {
	return SecurityState{FailedLoginAttempts: 0, LockedUntil: nil}
}

// NormalizeEmail lowercases and trims an email for case-insensitive matching.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeUsername lowercases and trims a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
