package account

import (
	"testing"
	"time"
)

func TestLockoutPolicyLocksAtThreshold(t *testing.T) {
	policy := LockoutPolicy{Threshold: 5, LockDuration: 30 * time.Minute}
	now := time.Now().UTC()
	acc := &Account{}

	var state SecurityState
	for i := 0; i < 5; i++ {
		state = policy.OnFailure(acc, now)
		acc.FailedLoginAttempts = state.FailedLoginAttempts
		acc.LockedUntil = state.LockedUntil
	}

	if state.FailedLoginAttempts != 5 {
		t.Fatalf("expected 5 failures, got %d", state.FailedLoginAttempts)
	}
	if state.LockedUntil == nil {
		t.Fatal("expected lock to be set at threshold")
	}
	if got, want := *state.LockedUntil, now.Add(30*time.Minute); !got.Equal(want) {
		t.Fatalf("lock until = %v, want %v", got, want)
	}
	if !acc.Locked(now) {
		t.Fatal("account should be locked")
	}
}

func TestLockoutPolicyBelowThresholdDoesNotLock(t *testing.T) {
	policy := DefaultLockoutPolicy()
	now := time.Now().UTC()
	acc := &Account{FailedLoginAttempts: 3}

	state := policy.OnFailure(acc, now)
	if state.FailedLoginAttempts != 4 {
		t.Fatalf("expected 4 failures, got %d", state.FailedLoginAttempts)
	}
	if state.LockedUntil != nil {
		t.Fatal("lock must not be set below threshold")
	}
}

func TestOnSuccessResetsCounterAndLock(t *testing.T) {
	policy := DefaultLockoutPolicy()
	state := policy.OnSuccess()

	if state.FailedLoginAttempts != 0 {
		t.Fatalf("counter not reset: %d", state.FailedLoginAttempts)
	}
	if state.LockedUntil != nil {
		t.Fatal("lock not cleared")
	}
}

func TestLockedExpiresLazily(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	acc := &Account{LockedUntil: &past}

	if acc.Locked(now) {
		t.Fatal("expired lock must not block login")
	}

	future := now.Add(time.Minute)
	acc.LockedUntil = &future
	if !acc.Locked(now) {
		t.Fatal("future lock must block login")
	}
}

func TestCanLoginRequiresActiveStatus(t *testing.T) {
	cases := []struct {
		status  Status
		allowed bool
	}{
		{StatusActive, true},
		{StatusPendingVerification, false},
		{StatusInactive, false},
		{StatusSuspended, false},
		{StatusDeleted, false},
	}
	for _, tc := range cases {
		acc := &Account{Status: tc.status}
		if got := acc.CanLogin(); got != tc.allowed {
			t.Fatalf("status %s: CanLogin = %v, want %v", tc.status, got, tc.allowed)
		}
	}
}

func TestParseType(t *testing.T) {
	if got := ParseType("VENDOR"); got != TypeVendor {
		t.Fatalf("unexpected type: %s", got)
	}
	if got := ParseType("mystery"); got != TypeCustomer {
		t.Fatalf("unknown types default to customer, got %s", got)
	}
}
