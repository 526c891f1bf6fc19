// Package token creates and parses the signed access and refresh tokens that
// carry identity and authorization claims between services.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kinds embedded in the "type" claim.
const (
	KindAccess  = "ACCESS"
	KindRefresh = "REFRESH"
)

// ErrInvalidToken indicates the token failed validation: bad signature,
// malformed structure, or past expiry. Callers get a single error kind.
var ErrInvalidToken = errors.New("token: invalid token")

// Claims is the wire contract shared with every other service.
type Claims struct {
	UserID    string   `json:"userId"`
	Email     string   `json:"email"`
	CompanyID string   `json:"companyId,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	TokenType string   `json:"type"`
	jwt.RegisteredClaims
}

// Kind returns the token kind claim.
func (c *Claims) Kind() string { return c.TokenType }

// Codec signs and verifies tokens with a process-wide HMAC-SHA-512 secret.
// The secret is injected at construction, never read from ambient state.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Codec behavior.
type Option func(*Codec)

// WithIssuer overrides the issuer claim.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec constructs a Codec. The secret must carry enough entropy for
// HMAC-SHA-512; anything shorter than 32 bytes is rejected.
func NewCodec(secret string, opts ...Option) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < 32 {
		return nil, errors.New("token: secret must be at least 32 bytes")
	}
	c := &Codec{
		secret:     []byte(secret),
		issuer:     "bazario-users",
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// IssueAccess mints a short-lived access token embedding identity and roles.
func (c *Codec) IssueAccess(userID, email, companyID string, roles []string) (string, error) {
	return c.sign(Claims{
		UserID:    userID,
		Email:     email,
		CompanyID: companyID,
		Roles:     dedupe(roles),
		TokenType: KindAccess,
	}, c.accessTTL)
}

// IssueRefresh mints a long-lived refresh token carrying identity only.
func (c *Codec) IssueRefresh(userID, email string) (string, error) {
	return c.sign(Claims{
		UserID:    userID,
		Email:     email,
		TokenType: KindRefresh,
	}, c.refreshTTL)
}

func (c *Codec) sign(claims Claims, ttl time.Duration) (string, error) {
	if strings.TrimSpace(claims.UserID) == "" {
		return "", errors.New("token: userID is required")
	}
	now := c.now().UTC()
	// A unique jti keeps two tokens minted within the same second distinct,
	// which refresh rotation depends on.
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    c.issuer,
		Subject:   claims.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(c.secret)
}

// Parse verifies the signature, structure and expiry of a token. Expiry is
// enforced here, not left to callers.
func (c *Codec) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS512 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithExpirationRequired(), jwt.WithIssuer(c.issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != KindAccess && claims.TokenType != KindRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func dedupe(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.TrimSpace(strings.ToLower(role))
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
