package repository

import (
	"context"
	"time"

	"github.com/techx/identity/internal/models"
)

type CreateUserParams struct {
	Email          string
	HashedPassword *string
	FirstName      string
	LastName       string
	Avatar         *string

	IsEmailVerified bool
	AuthProvider    string
	GoogleID        *string
	GooglePicture   *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with the email (or google id) exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, arg CreateUserParams) (models.User, error)

	// Get user by id, email or provider subject id
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// Single lookup for federated login: match by email or by google id
	GetUserByEmailOrGoogleID(ctx context.Context, email string, googleID string) (models.User, error)

	// Replace the password hash
	UpdatePassword(ctx context.Context, userID int64, hashedPassword string) error

	// Store provider linkage on an existing account and mark the email verified
	// Must not touch the password hash
	LinkGoogle(ctx context.Context, userID int64, googleID string, picture *string) (models.User, error)

	// Recovery flow state transitions
	SetOTP(ctx context.Context, userID int64, code string, expiresAt time.Time, requestedAt time.Time) error
	IncrementOTPAttempts(ctx context.Context, userID int64) (attempts int, err error)
	ClearOTP(ctx context.Context, userID int64, verifiedAt time.Time) error

	// Drop the verification mark so one verified code allows one reset only
	ConsumeOTPVerification(ctx context.Context, userID int64) error
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token and return the stored row
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token even if it is expired or revoked already
	Get(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Mark token revoked
	// Exactly one of concurrent callers may succeed: if the token is revoked
	// already it must return apperrors.ErrRefreshTokenRevoked, if it does not
	// exist apperrors.ErrRefreshTokenNotFound
	MarkRevoked(ctx context.Context, tokenString string) (models.RefreshToken, error)

	// Revoke every non-revoked token of the user
	RevokeAllForUser(ctx context.Context, userID int64) (revoked int64, err error)

	// Drop rows whose expiry passed before the given moment
	DeleteExpired(ctx context.Context, before time.Time) (deleted int64, err error)
}

// Storage aggregates repositories and runs them in one transaction when needed
type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo

	// Run fn within a database transaction
	// Storage passed to fn operates on the transaction connection
	InTx(ctx context.Context, fn func(Storage) error) error
}
