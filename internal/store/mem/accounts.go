// Package mem provides in-memory store implementations. They back the unit
// and HTTP tests and let the service run without Postgres for local
// experiments. Data does not survive a restart.
package mem

import (
	"context"
	"sync"
	"time"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/auth"
)

// Accounts is an in-memory auth.AccountStore with the same locking discipline
// the SQL store gets from row locks.
type Accounts struct {
	mu   sync.Mutex
	byID map[string]*account.Account
}

func NewAccounts() *Accounts {
	return &Accounts{byID: make(map[string]*account.Account)}
}

func (m *Accounts) clone(a *account.Account) *account.Account {
	cp := *a
	cp.Roles = append([]string(nil), a.Roles...)
	return &cp
}

func (m *Accounts) Create(_ context.Context, acc *account.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == acc.Email || existing.Username == acc.Username {
			return auth.ErrAlreadyExists
		}
	}
	m.byID[acc.ID] = m.clone(acc)
	return nil
}

func (m *Accounts) find(pred func(*account.Account) bool) (*account.Account, error) {
	for _, a := range m.byID {
		if pred(a) {
			return m.clone(a), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Accounts) FindByID(_ context.Context, id string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.byID[id]; ok {
		return m.clone(a), nil
	}
	return nil, auth.ErrNotFound
}

func (m *Accounts) FindByEmail(_ context.Context, email string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(a *account.Account) bool { return a.Email == email })
}

func (m *Accounts) FindByUsername(_ context.Context, username string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(a *account.Account) bool { return a.Username == username })
}

func (m *Accounts) FindByVerificationToken(_ context.Context, tok string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(a *account.Account) bool {
		return tok != "" && a.EmailVerificationToken == tok
	})
}

func (m *Accounts) FindByResetToken(_ context.Context, tok string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(a *account.Account) bool {
		return tok != "" && a.PasswordResetToken == tok
	})
}

func (m *Accounts) mutate(id string, fn func(*account.Account)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	fn(a)
	return nil
}

// Mutate edits a stored account in place. Tests use it to seed edge states
// that have no dedicated store operation.
func (m *Accounts) Mutate(id string, fn func(*account.Account)) error {
	return m.mutate(id, fn)
}

func (m *Accounts) RecordLoginFailure(_ context.Context, id string, policy account.LockoutPolicy, now time.Time) (account.SecurityState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return account.SecurityState{}, auth.ErrNotFound
	}
	state := policy.OnFailure(a, now)
	a.FailedLoginAttempts = state.FailedLoginAttempts
	a.LockedUntil = state.LockedUntil
	return state, nil
}

func (m *Accounts) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	return m.mutate(id, func(a *account.Account) {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
		a.LastLogin = &now
	})
}

func (m *Accounts) UpdatePassword(_ context.Context, id, hash string) error {
	return m.mutate(id, func(a *account.Account) { a.PasswordHash = hash })
}

func (m *Accounts) SetVerificationToken(_ context.Context, id, tok string, expires time.Time) error {
	return m.mutate(id, func(a *account.Account) {
		a.EmailVerificationToken = tok
		a.EmailVerificationExpires = &expires
	})
}

func (m *Accounts) MarkEmailVerified(_ context.Context, id string) error {
	return m.mutate(id, func(a *account.Account) {
		a.EmailVerified = true
		a.EmailVerificationToken = ""
		a.EmailVerificationExpires = nil
		if a.Status == account.StatusPendingVerification {
			a.Status = account.StatusActive
		}
	})
}

func (m *Accounts) SetResetToken(_ context.Context, id, tok string, expires time.Time) error {
	return m.mutate(id, func(a *account.Account) {
		a.PasswordResetToken = tok
		a.PasswordResetExpires = &expires
	})
}

func (m *Accounts) ClearResetToken(_ context.Context, id, hash string) error {
	return m.mutate(id, func(a *account.Account) {
		a.PasswordHash = hash
		a.PasswordResetToken = ""
		a.PasswordResetExpires = nil
	})
}

func (m *Accounts) SetTwoFactor(_ context.Context, id, secret string, enabled bool) error {
	return m.mutate(id, func(a *account.Account) {
		a.TwoFactorSecret = secret
		a.TwoFactorEnabled = enabled
	})
}

func (m *Accounts) SetLock(_ context.Context, id string, until *time.Time) error {
	return m.mutate(id, func(a *account.Account) {
		a.LockedUntil = until
		if until == nil {
			a.FailedLoginAttempts = 0
		}
	})
}

func (m *Accounts) UpdateStatus(_ context.Context, id string, status account.Status) error {
	return m.mutate(id, func(a *account.Account) { a.Status = status })
}

func (m *Accounts) SoftDelete(_ context.Context, id string, now time.Time) error {
	return m.mutate(id, func(a *account.Account) {
		a.Status = account.StatusDeleted
		a.DeletedAt = &now
	})
}

func (m *Accounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}
