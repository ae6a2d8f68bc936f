package apperrors

import (
	"errors"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	// Callers must not be able to tell which one happened.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")

	// Single error for every federated verification failure.
	// Which sub-check failed must not leak to the caller.
	ErrProviderTokenInvalid = errors.New("provider token invalid")
)
