package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"bazario.org/user-service/internal/auth"
	"bazario.org/user-service/internal/session"
)

var _ session.Store = (*SessionStore)(nil)

// SessionStore persists sessions. The refresh_token column carries a unique
// index, so even a buggy caller cannot leave two live sessions sharing one
// refresh token.
type SessionStore struct {
	db *sql.DB
}

const sessionColumns = `id, user_id, token, refresh_token, status,
	device_type, device_id, ip_address, user_agent, location,
	created_at, last_activity, expires_at, terminated_at, terminated_reason`

func scanSession(row interface{ Scan(...any) error }) (*session.Session, error) {
	var (
		s            session.Session
		refresh      sql.NullString
		terminatedAt sql.NullTime
		reason       sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.Token, &refresh, &s.Status,
		&s.Device.Type, &s.Device.ID, &s.Device.IP, &s.Device.UserAgent, &s.Device.Location,
		&s.CreatedAt, &s.LastActivity, &s.ExpiresAt, &terminatedAt, &reason,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if refresh.Valid {
		s.RefreshToken = refresh.String
	}
	if terminatedAt.Valid {
		s.TerminatedAt = &terminatedAt.Time
	}
	if reason.Valid {
		s.TerminatedReason = reason.String
	}
	return &s, nil
}

func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into user_sessions(id, user_id, token, refresh_token, status,
			device_type, device_id, ip_address, user_agent, location,
			created_at, last_activity, expires_at)
		values($1,$2,$3,nullif($4,''),$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		sess.ID, sess.UserID, sess.Token, sess.RefreshToken, sess.Status,
		sess.Device.Type, sess.Device.ID, sess.Device.IP, sess.Device.UserAgent, sess.Device.Location,
		sess.CreatedAt, sess.LastActivity, sess.ExpiresAt,
	)
	if uniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *SessionStore) FindByToken(ctx context.Context, token string) (*session.Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from user_sessions where token=$1`, token))
}

func (s *SessionStore) FindByRefreshToken(ctx context.Context, refreshToken string) (*session.Session, error) {
	if refreshToken == "" {
		return nil, auth.ErrNotFound
	}
	return scanSession(s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from user_sessions where refresh_token=$1`, refreshToken))
}

func (s *SessionStore) list(ctx context.Context, query string, args ...any) ([]*session.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*session.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, sess)
	}
	return res, rows.Err()
}

func (s *SessionStore) ActiveByUser(ctx context.Context, userID string, now time.Time) ([]*session.Session, error) {
	return s.list(ctx, `
		select `+sessionColumns+` from user_sessions
		where user_id=$1 and status='active' and expires_at>$2 and terminated_at is null
		order by last_activity desc`, userID, now)
}

func (s *SessionStore) ListByUser(ctx context.Context, userID string) ([]*session.Session, error) {
	return s.list(ctx, `
		select `+sessionColumns+` from user_sessions
		where user_id=$1 order by created_at desc`, userID)
}

func (s *SessionStore) CountActiveByUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		select count(*) from user_sessions
		where user_id=$1 and status='active' and expires_at>$2 and terminated_at is null`,
		userID, now).Scan(&n)
	return n, err
}

func (s *SessionStore) Touch(ctx context.Context, token string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		update user_sessions set last_activity=$2 where token=$1`, token, now)
	return err
}

// RotateRefresh is a conditional swap: the update matches only a currently
// valid session still holding oldRefresh, so of two racing rotations exactly
// one sees an affected row.
func (s *SessionStore) RotateRefresh(ctx context.Context, oldRefresh, newRefresh string, expiresAt, now time.Time) (*session.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		update user_sessions
		set refresh_token=$2, expires_at=$3, last_activity=$4
		where refresh_token=$1 and status='active' and expires_at>$4 and terminated_at is null
		returning `+sessionColumns,
		oldRefresh, newRefresh, expiresAt, now)
	return scanSession(row)
}

func (s *SessionStore) Terminate(ctx context.Context, token, reason string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update user_sessions
		set status='terminated', terminated_at=$3, terminated_reason=$2, refresh_token=null
		where token=$1 and terminated_at is null`, token, reason, now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// Distinguish an already-terminated session (no-op) from a token that
	// never existed.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from user_sessions where token=$1)`, token).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return auth.ErrNotFound
	}
	return nil
}

func (s *SessionStore) terminateWhere(ctx context.Context, where, reason string, now time.Time, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update user_sessions
		set status='terminated', terminated_at=$1, terminated_reason=$2, refresh_token=null
		where terminated_at is null and `+where,
		append([]any{now, reason}, args...)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SessionStore) TerminateAll(ctx context.Context, userID, reason string, now time.Time) (int64, error) {
	return s.terminateWhere(ctx, `user_id=$3`, reason, now, userID)
}

func (s *SessionStore) TerminateOthers(ctx context.Context, userID, keepToken, reason string, now time.Time) (int64, error) {
	return s.terminateWhere(ctx, `user_id=$3 and token<>$4`, reason, now, userID, keepToken)
}

func (s *SessionStore) TerminateByDevice(ctx context.Context, deviceID, reason string, now time.Time) (int64, error) {
	return s.terminateWhere(ctx, `device_id=$3`, reason, now, deviceID)
}

func (s *SessionStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		update user_sessions set status='expired'
		where status='active' and expires_at<=$1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
