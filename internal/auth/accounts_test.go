package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/auth"
	"bazario.org/user-service/internal/session"

	"github.com/pquerna/otp/totp"
)

func TestRegister(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snap, err := h.svc.Register(ctx, auth.RegisterRequest{
		Email:    "New@Example.com",
		Username: "NewUser",
		Password: "s3cret-pass",
		UserType: "vendor",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if snap.Email != "new@example.com" || snap.Username != "newuser" {
		t.Fatalf("snapshot not normalized: %+v", snap)
	}
	if snap.Status != account.StatusPendingVerification {
		t.Fatalf("status = %q, want pending_verification", snap.Status)
	}
	if snap.Type != account.TypeVendor {
		t.Fatalf("type = %q, want vendor", snap.Type)
	}
	if len(snap.Roles) != 1 || snap.Roles[0] != account.RoleVendor {
		t.Fatalf("roles = %v, want [vendor]", snap.Roles)
	}

	// Registration does not admit login until the email is verified.
	_, err = h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "new@example.com", Password: "s3cret-pass"}, session.Device{})
	if !errors.Is(err, auth.ErrAccountInactive) {
		t.Fatalf("login before verification: err = %v, want ErrAccountInactive", err)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req := auth.RegisterRequest{Email: "dup@example.com", Username: "dup", Password: "s3cret-pass"}
	if _, err := h.svc.Register(ctx, req); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := h.svc.Register(ctx, req); !errors.Is(err, auth.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestVerifyEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, auth.RegisterRequest{
		Email: "v@example.com", Username: "v", Password: "s3cret-pass",
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	acc, _ := h.accounts.FindByEmail(ctx, "v@example.com")

	snap, err := h.svc.VerifyEmail(ctx, acc.EmailVerificationToken)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !snap.EmailVerified || snap.Status != account.StatusActive {
		t.Fatalf("snapshot = %+v", snap)
	}

	// Token is consumed.
	if _, err := h.svc.VerifyEmail(ctx, acc.EmailVerificationToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("reuse: err = %v, want ErrInvalidToken", err)
	}

	// Verification unlocks login.
	if _, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "v@example.com", Password: "s3cret-pass"}, session.Device{}); err != nil {
		t.Fatalf("login after verification: %v", err)
	}
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour).UTC()
	h.seedAccount(t, "s3cret-pass", func(a *account.Account) {
		a.Status = account.StatusPendingVerification
		a.EmailVerificationToken = "tok-expired"
		a.EmailVerificationExpires = &past
	})

	if _, err := h.svc.VerifyEmail(ctx, "tok-expired"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "old-pass-123")

	if err := h.svc.InitiatePasswordReset(ctx, "jo@example.com"); err != nil {
		t.Fatalf("InitiatePasswordReset: %v", err)
	}
	acc, _ := h.accounts.FindByID(ctx, "user-1")
	if acc.PasswordResetToken == "" || acc.PasswordResetExpires == nil {
		t.Fatal("reset token not stored")
	}

	if err := h.svc.ResetPassword(ctx, acc.PasswordResetToken, "new-pass-456"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	// Token is consumed.
	if err := h.svc.ResetPassword(ctx, acc.PasswordResetToken, "third-pass"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("reuse: err = %v, want ErrInvalidToken", err)
	}

	if _, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "jo", Password: "old-pass-123"}, session.Device{}); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("old password: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "jo", Password: "new-pass-456"}, session.Device{}); err != nil {
		t.Fatalf("new password: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "old-pass-123")

	login, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "jo", Password: "old-pass-123"}, session.Device{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := h.svc.ChangePassword(ctx, "user-1", "wrong", "new-pass-456"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("wrong current: err = %v, want ErrInvalidCredentials", err)
	}
	if err := h.svc.ChangePassword(ctx, "user-1", "old-pass-123", "old-pass-123"); !errors.Is(err, auth.ErrValidationFailed) {
		t.Fatalf("same password: err = %v, want ErrValidationFailed", err)
	}
	if err := h.svc.ChangePassword(ctx, "user-1", "old-pass-123", "new-pass-456"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// Existing sessions stay alive.
	if ok, _ := h.svc.IsSessionValid(ctx, login.SessionToken); !ok {
		t.Fatal("session terminated by password change")
	}
}

func TestTwoFactorLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "s3cret-pass")

	secret, url, err := h.svc.EnableTwoFactor(ctx, "user-1")
	if err != nil {
		t.Fatalf("EnableTwoFactor: %v", err)
	}
	if secret == "" || url == "" {
		t.Fatal("expected secret and provisioning URL")
	}
	if _, _, err := h.svc.EnableTwoFactor(ctx, "user-1"); !errors.Is(err, auth.ErrValidationFailed) {
		t.Fatalf("double enable: err = %v, want ErrValidationFailed", err)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	ok, err := h.svc.VerifyTwoFactorCode(ctx, "user-1", code)
	if err != nil || !ok {
		t.Fatalf("VerifyTwoFactorCode = %v, %v", ok, err)
	}

	if err := h.svc.DisableTwoFactor(ctx, "user-1", "000000"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("bad code: err = %v, want ErrInvalidCredentials", err)
	}
	code, _ = totp.GenerateCode(secret, time.Now())
	if err := h.svc.DisableTwoFactor(ctx, "user-1", code); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}

	acc, _ := h.accounts.FindByID(ctx, "user-1")
	if acc.TwoFactorEnabled || acc.TwoFactorSecret != "" {
		t.Fatal("two-factor state not cleared")
	}
}

func TestLockAndUnlockAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "s3cret-pass")

	login, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "jo", Password: "s3cret-pass"}, session.Device{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := h.svc.LockAccount(ctx, "user-1", time.Hour); err != nil {
		t.Fatalf("LockAccount: %v", err)
	}
	if ok, _ := h.svc.IsSessionValid(ctx, login.SessionToken); ok {
		t.Fatal("session survived administrative lock")
	}
	if _, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "jo", Password: "s3cret-pass"}, session.Device{}); !errors.Is(err, auth.ErrAccountLocked) {
		t.Fatalf("login while locked: err = %v, want ErrAccountLocked", err)
	}

	if err := h.svc.UnlockAccount(ctx, "user-1"); err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	if _, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "jo", Password: "s3cret-pass"}, session.Device{}); err != nil {
		t.Fatalf("login after unlock: %v", err)
	}
}

func TestSoftDeleteUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "s3cret-pass")

	login, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "jo", Password: "s3cret-pass"}, session.Device{})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := h.svc.SoftDeleteUser(ctx, "user-1"); err != nil {
		t.Fatalf("SoftDeleteUser: %v", err)
	}

	acc, err := h.accounts.FindByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("row must survive soft delete: %v", err)
	}
	if acc.Status != account.StatusDeleted || acc.DeletedAt == nil {
		t.Fatalf("account = %+v", acc)
	}
	if ok, _ := h.svc.IsSessionValid(ctx, login.SessionToken); ok {
		t.Fatal("session survived soft delete")
	}
}

func TestDeleteUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "s3cret-pass")

	if err := h.svc.DeleteUser(ctx, "user-1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := h.accounts.FindByID(ctx, "user-1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetUserCaches(t *testing.T) {
	h := newHarness(t, auth.WithCache(newCountingCache()))
	ctx := context.Background()
	h.seedAccount(t, "s3cret-pass")

	first, err := h.svc.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	// Second read is served from cache even after the row changes underneath.
	h.accounts.UpdateStatus(ctx, "user-1", account.StatusSuspended)
	second, err := h.svc.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if second.Status != first.Status {
		t.Fatal("expected cached snapshot")
	}

	// Mutations invalidate.
	if err := h.svc.UpdateStatus(ctx, "user-1", account.StatusActive); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	third, err := h.svc.GetUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if third.Status != account.StatusActive {
		t.Fatalf("status = %q, want active after invalidation", third.Status)
	}
}

func TestUserActivities(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedAccount(t, "s3cret-pass")

	if _, err := h.svc.Login(ctx, auth.Credentials{EmailOrUsername: "jo", Password: "s3cret-pass"}, session.Device{IP: "10.0.0.9"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	list, err := h.svc.UserActivities(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("UserActivities: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("expected activity records")
	}
	// Newest first: the top entry is the login itself.
	if list[0].Type != auth.ActivityLogin {
		t.Fatalf("top activity = %q, want login", list[0].Type)
	}
}

// countingCache is a trivial map cache for invalidation tests.
type countingCache struct {
	items map[string]*auth.Snapshot
}

func newCountingCache() *countingCache {
	return &countingCache{items: make(map[string]*auth.Snapshot)}
}

func (c *countingCache) Get(_ context.Context, id string) (*auth.Snapshot, bool) {
	snap, ok := c.items[id]
	return snap, ok
}

func (c *countingCache) Set(_ context.Context, snap *auth.Snapshot) {
	c.items[snap.ID] = snap
}

func (c *countingCache) Invalidate(_ context.Context, id string) {
	delete(c.items, id)
}
