// Package auth composes credential verification, lockout policy, token
// issuance and session tracking into the login, refresh and logout flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bazario.org/user-service/internal/account"
	"bazario.org/user-service/internal/ids"
	"bazario.org/user-service/internal/obs"
	"bazario.org/user-service/internal/password"
	"bazario.org/user-service/internal/session"
	"bazario.org/user-service/internal/token"

	"github.com/pquerna/otp/totp"
)

const defaultSessionTTL = 7 * 24 * time.Hour

// Snapshot is the account view returned to the REST layer. It never carries
// credential material.
type Snapshot struct {
	ID               string         `json:"id"`
	CompanyID        string         `json:"companyId,omitempty"`
	Email            string         `json:"email"`
	Username         string         `json:"username"`
	Type             account.Type   `json:"type"`
	Status           account.Status `json:"status"`
	EmailVerified    bool           `json:"emailVerified"`
	TwoFactorEnabled bool           `json:"twoFactorEnabled"`
	Roles            []string       `json:"roles,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	LastLogin        *time.Time     `json:"lastLogin,omitempty"`
}

// AuthResult is returned from login and refresh.
type AuthResult struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	TokenType    string    `json:"tokenType"`
	ExpiresIn    int64     `json:"expiresIn"`
	SessionToken string    `json:"sessionToken"`
	User         *Snapshot `json:"user"`
}

// Credentials is a login request after syntactic validation upstream.
type Credentials struct {
	EmailOrUsername string
	Password        string
	TwoFactorCode   string
}

// Service owns the transaction boundaries and side-effect ordering of every
// authentication flow.
type Service struct {
	accounts   AccountStore
	sessions   session.Store
	roles      RoleStore
	activities ActivityStore
	codec      *token.Codec
	notifier   Notifier
	cache      SnapshotCache

	lockout    account.LockoutPolicy
	sessionTTL time.Duration
	issuer     string
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithLockoutPolicy overrides the failed-login threshold and lock duration.
func WithLockoutPolicy(p account.LockoutPolicy) Option {
	return func(s *Service) {
		if p.Threshold > 0 {
			s.lockout = p
		}
	}
}

// WithSessionTTL configures session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithNotifier wires the notification dispatcher.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithCache wires the user snapshot cache.
func WithCache(c SnapshotCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithRoleStore wires role management.
func WithRoleStore(r RoleStore) Option {
	return func(s *Service) { s.roles = r }
}

// WithActivityStore wires user activity recording.
func WithActivityStore(a ActivityStore) Option {
	return func(s *Service) { s.activities = a }
}

// WithIssuer sets the display issuer used in TOTP provisioning URLs.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the orchestrator.
func NewService(accounts AccountStore, sessions session.Store, codec *token.Codec, opts ...Option) (*Service, error) {
	if accounts == nil || sessions == nil || codec == nil {
		return nil, errors.New("auth: account store, session store and token codec are required")
	}
	s := &Service{
		accounts:   accounts,
		sessions:   sessions,
		codec:      codec,
		notifier:   LogNotifier{},
		cache:      nopCache{},
		lockout:    account.DefaultLockoutPolicy(),
		sessionTTL: defaultSessionTTL,
		issuer:     "bazario-users",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login runs the full attempt state machine: lookup, lock check, status
// check, credential check, token mint, session persist. Lookup and
// credential failures are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, creds Credentials, dev session.Device) (*AuthResult, error) {
	now := s.now().UTC()

	acc, err := s.lookup(ctx, creds.EmailOrUsername)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.LoginAttempts.WithLabelValues("unknown_account").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if acc.Locked(now) {
		obs.LoginAttempts.WithLabelValues("locked").Inc()
		s.recordActivity(ctx, acc.ID, ActivityFailedLogin, "login attempt on locked account", dev, true)
		return nil, ErrAccountLocked
	}
	if !acc.CanLogin() {
		obs.LoginAttempts.WithLabelValues("inactive").Inc()
		return nil, ErrAccountInactive
	}

	ok, err := password.Matches(creds.Password, acc.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify credential: %w", err)
	}
	if !ok {
		state, ferr := s.accounts.RecordLoginFailure(ctx, acc.ID, s.lockout, now)
		if ferr != nil {
			return nil, s.infra(ferr)
		}
		obs.LoginAttempts.WithLabelValues("bad_password").Inc()
		s.recordActivity(ctx, acc.ID, ActivityFailedLogin, "invalid password", dev, false)
		if state.LockedUntil != nil && acc.LockedUntil == nil {
			obs.AccountLockouts.Inc()
			s.recordActivity(ctx, acc.ID, ActivityAccountLocked,
				fmt.Sprintf("locked after %d failed attempts", state.FailedLoginAttempts), dev, true)
		}
		return nil, ErrInvalidCredentials
	}

	if acc.TwoFactorEnabled {
		if creds.TwoFactorCode == "" {
			return nil, ErrTwoFactorRequired
		}
		if !totp.Validate(creds.TwoFactorCode, acc.TwoFactorSecret) {
			obs.LoginAttempts.WithLabelValues("bad_totp").Inc()
			s.recordActivity(ctx, acc.ID, ActivityFailedLogin, "invalid two-factor code", dev, true)
			return nil, ErrInvalidCredentials
		}
	}

	if err := s.accounts.RecordLoginSuccess(ctx, acc.ID, now); err != nil {
		return nil, s.infra(err)
	}

	result, err := s.startSession(ctx, acc, dev, now)
	if err != nil {
		return nil, err
	}
	obs.LoginAttempts.WithLabelValues("success").Inc()
	s.recordActivity(ctx, acc.ID, ActivityLogin, "login", dev, false)
	return result, nil
}

func (s *Service) startSession(ctx context.Context, acc *account.Account, dev session.Device, now time.Time) (*AuthResult, error) {
	accessToken, err := s.codec.IssueAccess(acc.ID, acc.Email, acc.CompanyID, acc.Roles)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refreshToken, err := s.codec.IssueRefresh(acc.ID, acc.Email)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	sessionToken, err := ids.Token(32)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	sess := &session.Session{
		ID:           ids.New(),
		UserID:       acc.ID,
		Token:        sessionToken,
		RefreshToken: refreshToken,
		Status:       session.StatusActive,
		Device:       dev,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, s.infra(err)
	}
	s.recordActivity(ctx, acc.ID, ActivitySessionStarted, "session started", dev, false)

	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		SessionToken: sessionToken,
		User:         s.snapshot(acc),
	}, nil
}

// Refresh exchanges a still-valid refresh token for a new access+refresh
// pair. The session's stored refresh token rotates in place; exactly one of
// two racing calls wins, the other fails with invalid credentials.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	now := s.now().UTC()

	claims, err := s.codec.Parse(refreshToken)
	if err != nil {
		obs.TokenRefreshes.WithLabelValues("invalid_token").Inc()
		return nil, ErrInvalidToken
	}
	if claims.Kind() != token.KindRefresh {
		obs.TokenRefreshes.WithLabelValues("wrong_kind").Inc()
		return nil, ErrInvalidToken
	}

	acc, err := s.accounts.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.TokenRefreshes.WithLabelValues("unknown_account").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, s.infra(err)
	}
	if !acc.CanLogin() || acc.Locked(now) {
		obs.TokenRefreshes.WithLabelValues("inactive").Inc()
		return nil, ErrInvalidCredentials
	}

	newAccess, err := s.codec.IssueAccess(acc.ID, acc.Email, acc.CompanyID, acc.Roles)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	newRefresh, err := s.codec.IssueRefresh(acc.ID, acc.Email)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	sess, err := s.sessions.RotateRefresh(ctx, refreshToken, newRefresh, now.Add(s.sessionTTL), now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.TokenRefreshes.WithLabelValues("reused_or_revoked").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, s.infra(err)
	}

	obs.TokenRefreshes.WithLabelValues("success").Inc()
	return &AuthResult{
		AccessToken:  newAccess,
		RefreshToken: newRefresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.codec.AccessTTL().Seconds()),
		SessionToken: sess.Token,
		User:         s.snapshot(acc),
	}, nil
}

// Logout terminates the session bound to the token. Terminating twice is a
// no-op; a token that never existed is NotFound.
func (s *Service) Logout(ctx context.Context, sessionToken string) error {
	now := s.now().UTC()
	if err := s.sessions.Terminate(ctx, sessionToken, session.ReasonUserLogout, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return s.infra(err)
	}
	obs.SessionsTerminated.WithLabelValues(session.ReasonUserLogout).Inc()
	return nil
}

// LogoutAll terminates every session of the user.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	now := s.now().UTC()
	n, err := s.sessions.TerminateAll(ctx, userID, session.ReasonUserLogout, now)
	if err != nil {
		return s.infra(err)
	}
	for ; n > 0; n-- {
		obs.SessionsTerminated.WithLabelValues(session.ReasonUserLogout).Inc()
	}
	s.recordActivity(ctx, userID, ActivityLogout, "logout all devices", session.Device{}, false)
	return nil
}

// TerminateOtherSessions keeps one session and terminates the rest.
func (s *Service) TerminateOtherSessions(ctx context.Context, userID, keepToken string) (int64, error) {
	n, err := s.sessions.TerminateOthers(ctx, userID, keepToken, session.ReasonDeviceLogout, s.now().UTC())
	if err != nil {
		return 0, s.infra(err)
	}
	return n, nil
}

// IsSessionValid applies the session validity predicate to the stored row.
func (s *Service) IsSessionValid(ctx context.Context, sessionToken string) (bool, error) {
	sess, err := s.sessions.FindByToken(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, s.infra(err)
	}
	return sess.Valid(s.now().UTC()), nil
}

// TouchSession updates last-activity; unknown sessions are ignored.
func (s *Service) TouchSession(ctx context.Context, sessionToken string) error {
	if err := s.sessions.Touch(ctx, sessionToken, s.now().UTC()); err != nil {
		return s.infra(err)
	}
	return nil
}

// UserSessions lists every session of a user, newest first.
func (s *Service) UserSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	list, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.infra(err)
	}
	return list, nil
}

// ActiveSessions lists currently valid sessions of a user.
func (s *Service) ActiveSessions(ctx context.Context, userID string) ([]*session.Session, error) {
	list, err := s.sessions.ActiveByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, s.infra(err)
	}
	return list, nil
}

// SweepExpiredSessions flips active-but-expired sessions to expired. Purely
// bookkeeping; validity checks expiry directly.
func (s *Service) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.SweepExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, s.infra(err)
	}
	obs.SessionsSwept.Add(float64(n))
	return n, nil
}

// AuthenticateToken verifies an access token and returns its claims.
func (s *Service) AuthenticateToken(_ context.Context, raw string) (*token.Claims, error) {
	claims, err := s.codec.Parse(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Kind() != token.KindAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) lookup(ctx context.Context, emailOrUsername string) (*account.Account, error) {
	acc, err := s.accounts.FindByEmail(ctx, account.NormalizeEmail(emailOrUsername))
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, s.infra(err)
	}
	acc, err = s.accounts.FindByUsername(ctx, account.NormalizeUsername(emailOrUsername))
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, s.infra(err)
	}
	return nil, ErrNotFound
}

func (s *Service) snapshot(acc *account.Account) *Snapshot {
	return &Snapshot{
		ID:               acc.ID,
		CompanyID:        acc.CompanyID,
		Email:            acc.Email,
		Username:         acc.Username,
		Type:             acc.Type,
		Status:           acc.Status,
		EmailVerified:    acc.EmailVerified,
		TwoFactorEnabled: acc.TwoFactorEnabled,
		Roles:            acc.Roles,
		CreatedAt:        acc.CreatedAt,
		LastLogin:        acc.LastLogin,
	}
}

func (s *Service) recordActivity(ctx context.Context, userID string, typ ActivityType, description string, dev session.Device, suspicious bool) {
	if s.activities == nil {
		return
	}
	entry := &Activity{
		ID:          ids.New(),
		UserID:      userID,
		Type:        typ,
		Description: description,
		IP:          dev.IP,
		UserAgent:   dev.UserAgent,
		Suspicious:  suspicious,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.activities.Append(ctx, entry); err != nil {
		obs.LogEvent(map[string]any{
			"level": "warn",
			"msg":   "activity append failed",
			"type":  string(typ),
			"error": err.Error(),
		})
	}
}

// infra converts a non-taxonomy store error into StoreUnavailable. Taxonomy
// errors pass through unchanged.
func (s *Service) infra(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
