package auth

import "errors"

// Error taxonomy exposed to the REST layer. Authentication failures use
// deliberately uniform wording so a caller cannot enumerate accounts.
var (
	ErrNotFound           = errors.New("auth: not found")
	ErrAlreadyExists      = errors.New("auth: already exists")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrAccountInactive    = errors.New("auth: account inactive")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrValidationFailed   = errors.New("auth: validation failed")
	ErrTwoFactorRequired  = errors.New("auth: two-factor code required")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrStoreUnavailable   = errors.New("auth: store unavailable")
)
