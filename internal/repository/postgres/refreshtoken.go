package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/techx/identity/internal/apperrors"
	"github.com/techx/identity/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const tokenColumns = `id, user_id, token, created_at, updated_at, expires_at, revoked`

const saveToken = `-- name: SaveToken
INSERT INTO refresh_tokens (user_id, token, expires_at)
VALUES ($1, $2, $3)
RETURNING ` + tokenColumns

func (r *RefreshTokenRepo) Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken, token.UserID, token.Token, token.ExpiresAt)
	stored, err := pgx.CollectOneRow(rows, rowToToken)
	if err != nil {
		return stored, fmt.Errorf("db error: %w", err)
	}
	return stored, nil
}

const getToken = `-- name: GetToken
SELECT ` + tokenColumns + `
FROM refresh_tokens
WHERE token = $1
`

// Get token by its string
// Returns the row even if it is expired or revoked already
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenString)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const markTokenRevoked = `-- name: MarkTokenRevoked
UPDATE refresh_tokens
SET revoked = TRUE, updated_at = now()
WHERE token = $1 AND NOT revoked
RETURNING ` + tokenColumns

// Mark token revoked
// The WHERE clause guards the rotation race: of two concurrent calls on the
// same token exactly one matches the row, the other gets ErrRefreshTokenRevoked
func (r *RefreshTokenRepo) MarkRevoked(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, markTokenRevoked, tokenString)
	token, err := pgx.CollectOneRow(rows, rowToToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return r.classifyMiss(ctx, tokenString)
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

// No row matched: either the token never existed or it is revoked already
func (r *RefreshTokenRepo) classifyMiss(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	token, err := r.Get(ctx, tokenString)
	if err != nil {
		return token, err
	}
	return token, fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenRevoked)
}

const revokeAllForUser = `-- name: RevokeAllForUser
UPDATE refresh_tokens
SET revoked = TRUE, updated_at = now()
WHERE user_id = $1 AND NOT revoked
`

func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID int64) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllForUser, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

const deleteExpired = `-- name: DeleteExpired
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpired, before)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return tag.RowsAffected(), nil
}

func rowToToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt, &t.Revoked)
	return t, err
}
