// Package session models one authenticated device or browser instance and
// the durable store that tracks it for revocation and auditing.
package session

import (
	"context"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
	StatusInvalid    Status = "invalid"
)

// Termination reasons recorded on the session row.
const (
	ReasonUserLogout   = "user_logout"
	ReasonAdminAction  = "admin_action"
	ReasonDeviceLogout = "device_logout"
	ReasonRotated      = "token_rotated"
	ReasonExpired      = "expired"
	ReasonAccountLock  = "account_locked"
)

// Device captures the client metadata recorded at login.
type Device struct {
	Type      string // web, mobile, tablet
	ID        string
	IP        string
	UserAgent string
	Location  string
}

// Session binds a refresh token to a user and device.
type Session struct {
	ID           string
	UserID       string
	Token        string // opaque, unique
	RefreshToken string // unique while set, cleared on revocation
	Status       Status
	Device       Device

	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time

	TerminatedAt     *time.Time
	TerminatedReason string
}

// Valid is the one validity predicate: active status, unexpired, and never
// terminated. Every caller goes through this; status and expiry must not
// drift apart.
func (s *Session) Valid(now time.Time) bool {
	return s.Status == StatusActive && s.ExpiresAt.After(now) && s.TerminatedAt == nil
}

// Terminate transitions the session in memory. Persistence is the caller's
// explicit step. Terminating an already-terminated session is a no-op.
func (s *Session) Terminate(reason string, now time.Time) {
	if s.TerminatedAt != nil {
		return
	}
	s.Status = StatusTerminated
	s.TerminatedAt = &now
	s.TerminatedReason = reason
	s.RefreshToken = ""
}

// Store is the durable record of sessions. Implementations must keep the
// refresh token unique across all rows and must apply Terminate and
// RotateRefresh atomically; two concurrent writers may race but must never
// leave a partial write visible.
type Store interface {
	Create(ctx context.Context, s *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	FindByRefreshToken(ctx context.Context, refreshToken string) (*Session, error)
	ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*Session, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	CountActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error)

	// Touch updates last-activity; it is a no-op on an unknown token.
	Touch(ctx context.Context, token string, now time.Time) error

	// RotateRefresh atomically swaps oldRefresh for newRefresh on a currently
	// valid session and extends its expiry. Exactly one of two concurrent
	// rotations of the same token succeeds; the loser gets ErrNotFound.
	RotateRefresh(ctx context.Context, oldRefresh, newRefresh string, expiresAt, now time.Time) (*Session, error)

	Terminate(ctx context.Context, token, reason string, now time.Time) error
	TerminateAll(ctx context.Context, userID, reason string, now time.Time) (int64, error)
	TerminateOthers(ctx context.Context, userID, keepToken, reason string, now time.Time) (int64, error)
	TerminateByDevice(ctx context.Context, deviceID, reason string, now time.Time) (int64, error)

	// SweepExpired is a bookkeeping pass: it flips active sessions past their
	// expiry to expired. Validity never depends on it running.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}
