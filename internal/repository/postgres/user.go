package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/techx/identity/internal/apperrors"
	"github.com/techx/identity/internal/models"
	"github.com/techx/identity/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, created_at, updated_at, email, password_hash, first_name, last_name, avatar,
is_active, is_email_verified, auth_provider, google_id, google_picture,
otp_code, otp_expires_at, otp_attempts, otp_last_request_at, otp_last_verified_at`

const createUser = `-- name: CreateUser
INSERT INTO users (email, password_hash, first_name, last_name, avatar, is_email_verified, auth_provider, google_id, google_picture)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, arg repository.CreateUserParams) (models.User, error) {
	provider := arg.AuthProvider
	if provider == "" {
		provider = models.AuthProviderEmail
	}

	rows, _ := r.DB.Query(ctx, createUser,
		arg.Email, arg.HashedPassword, arg.FirstName, arg.LastName, arg.Avatar,
		arg.IsEmailVerified, provider, arg.GoogleID, arg.GooglePicture,
	)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const getUserByID = `-- name: GetUserByID
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (r *UserRepo) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByID, id)
	return collectUser(rows)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + `
FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmail, email)
	return collectUser(rows)
}

const getUserByEmailOrGoogleID = `-- name: GetUserByEmailOrGoogleID
SELECT ` + userColumns + `
FROM users
WHERE email = $1 OR google_id = $2
LIMIT 1
`

func (r *UserRepo) GetUserByEmailOrGoogleID(ctx context.Context, email string, googleID string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, getUserByEmailOrGoogleID, email, googleID)
	return collectUser(rows)
}

const updatePassword = `-- name: UpdatePassword
UPDATE users
SET password_hash = $2, updated_at = now()
WHERE id = $1
RETURNING id
`

func (r *UserRepo) UpdatePassword(ctx context.Context, userID int64, hashedPassword string) error {
	rows, _ := r.DB.Query(ctx, updatePassword, userID, hashedPassword)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const linkGoogle = `-- name: LinkGoogle
UPDATE users
SET google_id = $2, google_picture = $3, is_email_verified = TRUE, updated_at = now()
WHERE id = $1
RETURNING ` + userColumns

func (r *UserRepo) LinkGoogle(ctx context.Context, userID int64, googleID string, picture *string) (models.User, error) {
	rows, _ := r.DB.Query(ctx, linkGoogle, userID, googleID, picture)
	return collectUser(rows)
}

const setOTP = `-- name: SetOTP
UPDATE users
SET otp_code = $2, otp_expires_at = $3, otp_attempts = 0, otp_last_request_at = $4, updated_at = now()
WHERE id = $1
RETURNING id
`

func (r *UserRepo) SetOTP(ctx context.Context, userID int64, code string, expiresAt time.Time, requestedAt time.Time) error {
	rows, _ := r.DB.Query(ctx, setOTP, userID, code, expiresAt, requestedAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const incrementOTPAttempts = `-- name: IncrementOTPAttempts
UPDATE users
SET otp_attempts = otp_attempts + 1, updated_at = now()
WHERE id = $1
RETURNING otp_attempts
`

func (r *UserRepo) IncrementOTPAttempts(ctx context.Context, userID int64) (int, error) {
	rows, _ := r.DB.Query(ctx, incrementOTPAttempts, userID)
	attempts, err := pgx.CollectOneRow(rows, pgx.RowTo[int])

	switch {
	case err == nil:
		return attempts, nil
	case errors.Is(err, pgx.ErrNoRows):
		return 0, apperrors.ErrUserNotFound
	default:
		return 0, fmt.Errorf("db error: %w", err)
	}
}

const clearOTP = `-- name: ClearOTP
UPDATE users
SET otp_code = NULL, otp_expires_at = NULL, otp_attempts = 0, otp_last_verified_at = $2, updated_at = now()
WHERE id = $1
RETURNING id
`

// Clear the code so it can never validate twice
func (r *UserRepo) ClearOTP(ctx context.Context, userID int64, verifiedAt time.Time) error {
	rows, _ := r.DB.Query(ctx, clearOTP, userID, verifiedAt)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

const consumeOTPVerification = `-- name: ConsumeOTPVerification
UPDATE users
SET otp_last_verified_at = NULL, updated_at = now()
WHERE id = $1
RETURNING id
`

func (r *UserRepo) ConsumeOTPVerification(ctx context.Context, userID int64) error {
	rows, _ := r.DB.Query(ctx, consumeOTPVerification, userID)
	_, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])

	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.ErrUserNotFound
	default:
		return fmt.Errorf("db error: %w", err)
	}
}

func collectUser(rows pgx.Rows) (models.User, error) {
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.CreatedAt, &u.UpdatedAt, &u.Email, &u.HashedPassword, &u.FirstName, &u.LastName, &u.Avatar,
		&u.IsActive, &u.IsEmailVerified, &u.AuthProvider, &u.GoogleID, &u.GooglePicture,
		&u.OTPCode, &u.OTPExpiresAt, &u.OTPAttempts, &u.OTPLastRequestAt, &u.OTPLastVerifiedAt,
	)
	return u, err
}
