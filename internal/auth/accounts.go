package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/ids"
	"bazario.org/user-service/internal/password"
	"bazario.org/user-service/internal/session"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
)

const (
	verificationTokenTTL = 24 * time.Hour
	resetTokenTTL        = time.Hour
)

// RegisterRequest is an account creation request after syntactic validation.
type RegisterRequest struct {
	Email     string
	Username  string
	Password  string
	UserType  string
	CompanyID string
}

// Register creates an account in pending_verification and emits a
// verification email intent. Duplicate email or username is AlreadyExists.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*Snapshot, error) {
	now := s.now().UTC()

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	typ := account.ParseType(req.UserType)
	acc := &account.Account{
		ID:                       ids.New(),
		CompanyID:                req.CompanyID,
		Email:                    account.NormalizeEmail(req.Email),
		Username:                 account.NormalizeUsername(req.Username),
		Type:                     typ,
		Status:                   account.StatusPendingVerification,
		PasswordHash:             hash,
		EmailVerificationToken:   uuid.NewString(),
		EmailVerificationExpires: ptr(now.Add(verificationTokenTTL)),
		Roles:                    []string{account.DefaultRole(typ)},
		CreatedAt:                now,
		UpdatedAt:                now,
	}

	if err := s.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, ErrAlreadyExists
		}
		return nil, s.infra(err)
	}

	s.recordActivity(ctx, acc.ID, ActivityAccountCreated, "registered", session.Device{}, false)
	_ = s.notifier.SendVerificationEmail(ctx, acc.Email, acc.EmailVerificationToken)
	return s.snapshot(acc), nil
}

// GetUser returns a snapshot, consulting the cache first.
func (s *Service) GetUser(ctx context.Context, id string) (*Snapshot, error) {
	if snap, ok := s.cache.Get(ctx, id); ok {
		return snap, nil
	}
	acc, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, s.infra(err)
	}
	snap := s.snapshot(acc)
	s.cache.Set(ctx, snap)
	return snap, nil
}

// VerifyEmail consumes a verification token, marking the account active.
func (s *Service) VerifyEmail(ctx context.Context, tok string) (*Snapshot, error) {
	now := s.now().UTC()
	acc, err := s.accounts.FindByVerificationToken(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, s.infra(err)
	}
	if acc.EmailVerificationExpires == nil || acc.EmailVerificationExpires.Before(now) {
		return nil, ErrInvalidToken
	}
	if err := s.accounts.MarkEmailVerified(ctx, acc.ID); err != nil {
		return nil, s.infra(err)
	}
	s.cache.Invalidate(ctx, acc.ID)
	s.recordActivity(ctx, acc.ID, ActivityEmailVerified, "email verified", session.Device{}, false)

	acc.EmailVerified = true
	acc.Status = account.StatusActive
	acc.EmailVerificationToken = ""
	acc.EmailVerificationExpires = nil
	return s.snapshot(acc), nil
}

// ResendVerification issues a fresh verification token for an unverified
// account.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	acc, err := s.accounts.FindByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	if acc.EmailVerified {
		return fmt.Errorf("%w: email already verified", ErrValidationFailed)
	}
	tok := uuid.NewString()
	if err := s.accounts.SetVerificationToken(ctx, acc.ID, tok, s.now().UTC().Add(verificationTokenTTL)); err != nil {
		return s.infra(err)
	}
	return s.notifier.SendVerificationEmail(ctx, acc.Email, tok)
}

// InitiatePasswordReset issues a reset token and emits a reset email intent.
// Unknown emails are reported as NotFound to the caller; the REST layer may
// choose to mask this.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) error {
	acc, err := s.accounts.FindByEmail(ctx, account.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	tok := uuid.NewString()
	if err := s.accounts.SetResetToken(ctx, acc.ID, tok, s.now().UTC().Add(resetTokenTTL)); err != nil {
		return s.infra(err)
	}
	s.recordActivity(ctx, acc.ID, ActivityPasswordResetAsked, "password reset requested", session.Device{}, false)
	return s.notifier.SendPasswordResetEmail(ctx, acc.Email, tok)
}

// ResetPassword consumes a reset token and installs the new password.
func (s *Service) ResetPassword(ctx context.Context, tok, newPassword string) error {
	now := s.now().UTC()
	acc, err := s.accounts.FindByResetToken(ctx, tok)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidToken
		}
		return s.infra(err)
	}
	if acc.PasswordResetExpires == nil || acc.PasswordResetExpires.Before(now) {
		return ErrInvalidToken
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := s.accounts.ClearResetToken(ctx, acc.ID, hash); err != nil {
		return s.infra(err)
	}
	s.recordActivity(ctx, acc.ID, ActivityPasswordChanged, "password reset", session.Device{}, false)
	return nil
}

// ChangePassword replaces the password after verifying the current one.
// Existing sessions stay alive; callers wanting a global logout run
// LogoutAll as an explicit follow-up.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	acc, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	ok, err := password.Matches(currentPassword, acc.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify credential: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return fmt.Errorf("%w: new password must differ from the current one", ErrValidationFailed)
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if err := s.accounts.UpdatePassword(ctx, acc.ID, hash); err != nil {
		return s.infra(err)
	}
	s.recordActivity(ctx, acc.ID, ActivityPasswordChanged, "password changed", session.Device{}, false)
	return nil
}

// EnableTwoFactor provisions a TOTP secret and returns it with the
// otpauth:// provisioning URL.
func (s *Service) EnableTwoFactor(ctx context.Context, userID string) (secret, url string, err error) {
	acc, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", "", ErrNotFound
		}
		return "", "", s.infra(err)
	}
	if acc.TwoFactorEnabled {
		return "", "", fmt.Errorf("%w: two-factor already enabled", ErrValidationFailed)
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: acc.Email,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	if err := s.accounts.SetTwoFactor(ctx, acc.ID, key.Secret(), true); err != nil {
		return "", "", s.infra(err)
	}
	s.cache.Invalidate(ctx, acc.ID)
	s.recordActivity(ctx, acc.ID, ActivityTwoFactorEnabled, "two-factor enabled", session.Device{}, false)
	return key.Secret(), key.URL(), nil
}

// DisableTwoFactor turns off TOTP after verifying one last code.
func (s *Service) DisableTwoFactor(ctx context.Context, userID, code string) error {
	acc, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	if !acc.TwoFactorEnabled {
		return fmt.Errorf("%w: two-factor not enabled", ErrValidationFailed)
	}
	if !totp.Validate(code, acc.TwoFactorSecret) {
		return ErrInvalidCredentials
	}
	if err := s.accounts.SetTwoFactor(ctx, acc.ID, "", false); err != nil {
		return s.infra(err)
	}
	s.cache.Invalidate(ctx, acc.ID)
	s.recordActivity(ctx, acc.ID, ActivityTwoFactorDisabled, "two-factor disabled", session.Device{}, false)
	return nil
}

// VerifyTwoFactorCode checks a TOTP code against the stored secret.
func (s *Service) VerifyTwoFactorCode(ctx context.Context, userID, code string) (bool, error) {
	acc, err := s.accounts.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, ErrNotFound
		}
		return false, s.infra(err)
	}
	if !acc.TwoFactorEnabled || acc.TwoFactorSecret == "" {
		return false, nil
	}
	return totp.Validate(code, acc.TwoFactorSecret), nil
}

// LockAccount places an administrative lock and terminates all sessions.
func (s *Service) LockAccount(ctx context.Context, userID string, duration time.Duration) error {
	now := s.now().UTC()
	if duration <= 0 {
		duration = 365 * 24 * time.Hour
	}
	until := now.Add(duration)
	if err := s.accounts.SetLock(ctx, userID, &until); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	if _, err := s.sessions.TerminateAll(ctx, userID, session.ReasonAccountLock, now); err != nil {
		return s.infra(err)
	}
	s.cache.Invalidate(ctx, userID)
	s.recordActivity(ctx, userID, ActivityAccountLocked, "locked by administrator", session.Device{}, false)
	return nil
}

// UnlockAccount clears the lock and the failed-login counter early.
func (s *Service) UnlockAccount(ctx context.Context, userID string) error {
	if err := s.accounts.SetLock(ctx, userID, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	s.cache.Invalidate(ctx, userID)
	s.recordActivity(ctx, userID, ActivityAccountUnlocked, "unlocked by administrator", session.Device{}, false)
	return nil
}

// UpdateStatus moves the account to a new lifecycle status.
func (s *Service) UpdateStatus(ctx context.Context, userID string, status account.Status) error {
	if !account.ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidationFailed, status)
	}
	if err := s.accounts.UpdateStatus(ctx, userID, status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// SoftDeleteUser marks the account deleted and ends its sessions. The row
// stays for audit history.
func (s *Service) SoftDeleteUser(ctx context.Context, userID string) error {
	now := s.now().UTC()
	if err := s.accounts.SoftDelete(ctx, userID, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	if _, err := s.sessions.TerminateAll(ctx, userID, session.ReasonAdminAction, now); err != nil {
		return s.infra(err)
	}
	s.cache.Invalidate(ctx, userID)
	s.recordActivity(ctx, userID, ActivityAccountDeleted, "soft deleted", session.Device{}, false)
	return nil
}

// DeleteUser removes the account permanently. Irreversible, distinct from
// soft delete.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	now := s.now().UTC()
	if _, err := s.sessions.TerminateAll(ctx, userID, session.ReasonAdminAction, now); err != nil {
		return s.infra(err)
	}
	if err := s.accounts.Delete(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// UserActivities returns recent activity records, newest first.
func (s *Service) UserActivities(ctx context.Context, userID string, limit int) ([]*Activity, error) {
	if s.activities == nil {
		return nil, nil
	}
	list, err := s.activities.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, s.infra(err)
	}
	return list, nil
}

func ptr[T any](v T) *T { return &v }
