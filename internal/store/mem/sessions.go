package mem

import (
	"context"
	"sync"
	"time"

	"bazario.org/user-service/internal/auth"
	"bazario.org/user-service/internal/session"
)

// Sessions is an in-memory session.Store. RotateRefresh is a
// compare-and-swap under the lock so concurrent rotations behave like the
// conditional UPDATE in the SQL store.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]*session.Session
}

func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*session.Session)}
}

func (m *Sessions) clone(s *session.Session) *session.Session {
	cp := *s
	return &cp
}

func (m *Sessions) Create(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[s.ID] = m.clone(s)
	return nil
}

func (m *Sessions) FindByToken(_ context.Context, token string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.Token == token {
			return m.clone(s), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Sessions) FindByRefreshToken(_ context.Context, refreshToken string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if refreshToken != "" && s.RefreshToken == refreshToken {
			return m.clone(s), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Sessions) ActiveByUser(_ context.Context, userID string, now time.Time) ([]*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*session.Session
	for _, s := range m.byID {
		if s.UserID == userID && s.Valid(now) {
			out = append(out, m.clone(s))
		}
	}
	return out, nil
}

func (m *Sessions) ListByUser(_ context.Context, userID string) ([]*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*session.Session
	for _, s := range m.byID {
		if s.UserID == userID {
			out = append(out, m.clone(s))
		}
	}
	return out, nil
}

func (m *Sessions) CountActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	list, err := m.ActiveByUser(ctx, userID, now)
	return int64(len(list)), err
}

func (m *Sessions) Touch(_ context.Context, token string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.Token == token {
			s.LastActivity = now
		}
	}
	return nil
}

func (m *Sessions) RotateRefresh(_ context.Context, oldRefresh, newRefresh string, expiresAt, now time.Time) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.RefreshToken == oldRefresh && s.Valid(now) {
			s.RefreshToken = newRefresh
			s.ExpiresAt = expiresAt
			s.LastActivity = now
			return m.clone(s), nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *Sessions) Terminate(_ context.Context, token, reason string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byID {
		if s.Token == token {
			s.Terminate(reason, now)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *Sessions) TerminateAll(_ context.Context, userID, reason string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.byID {
		if s.UserID == userID && s.TerminatedAt == nil {
			s.Terminate(reason, now)
			n++
		}
	}
	return n, nil
}

func (m *Sessions) TerminateOthers(_ context.Context, userID, keepToken, reason string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.byID {
		if s.UserID == userID && s.Token != keepToken && s.TerminatedAt == nil {
			s.Terminate(reason, now)
			n++
		}
	}
	return n, nil
}

func (m *Sessions) TerminateByDevice(_ context.Context, deviceID, reason string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.byID {
		if s.Device.ID == deviceID && s.TerminatedAt == nil {
			s.Terminate(reason, now)
			n++
		}
	}
	return n, nil
}

func (m *Sessions) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.byID {
		if s.Status == session.StatusActive && !s.ExpiresAt.After(now) {
			s.Status = session.StatusExpired
			n++
		}
	}
	return n, nil
}
