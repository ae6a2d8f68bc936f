package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/techx/identity/internal/apperrors"
	"github.com/techx/identity/internal/models"
	"github.com/techx/identity/internal/repository"
	"github.com/techx/identity/internal/service/auth/tokenmanager"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

type Config struct {
	// Hasher to use during registration or login
	// BcryptHasher is used when empty
	Hasher PasswordHasher
}

type RegisterParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Session manager: login, register, refresh rotation, revocation, password change
type AuthService struct {
	token   *tokenmanager.TokenManager
	hasher  PasswordHasher
	storage repository.Storage
}

func NewService(cfg Config, token *tokenmanager.TokenManager, storage repository.Storage) (*AuthService, error) {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	if token == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	return &AuthService{
		token:   token,
		hasher:  hasher,
		storage: storage,
	}, nil
}

// Register creates the account and issues the first token pair.
// Account insert and refresh token insert commit in one transaction.
func (s *AuthService) Register(ctx context.Context, arg RegisterParams) (models.TokenPair, models.User, error) {
	var pair models.TokenPair
	var user models.User

	hash, err := s.hasher.Hash(arg.Password)
	if err != nil {
		return pair, user, fmt.Errorf("can't use this as password, error=%w", err)
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err = st.User().CreateUser(ctx, repository.CreateUserParams{
			Email:          arg.Email,
			HashedPassword: &hash,
			FirstName:      arg.FirstName,
			LastName:       arg.LastName,
			AuthProvider:   models.AuthProviderEmail,
		})
		if err != nil {
			return err
		}

		pair, err = s.token.GeneratePair(ctx, user, st.Refresh())
		return err
	})
	if err != nil {
		return pair, user, err
	}

	return pair, user, nil
}

// Login verifies credentials and issues a fresh pair.
// Unknown email, missing hash and wrong password all surface the same error.
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.TokenPair, models.User, error) {
	var pair models.TokenPair

	user, err := s.storage.User().GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return pair, user, apperrors.ErrInvalidCredentials
	case err != nil:
		return pair, user, err
	}

	if user.HashedPassword == nil || !user.IsActive {
		return pair, user, apperrors.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(*user.HashedPassword, password); err != nil {
		return pair, user, apperrors.ErrInvalidCredentials
	}

	pair, err = s.token.GeneratePair(ctx, user, s.storage.Refresh())
	if err != nil {
		return pair, user, fmt.Errorf("token could not be generated. Err: %w", err)
	}

	return pair, user, nil
}

// Refresh rotates the pair: the presented token is revoked and a new pair
// is issued in the same transaction, so at most one of two racing calls
// on the same string succeeds.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (models.TokenPair, models.User, error) {
	var pair models.TokenPair
	var user models.User

	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		token, err := st.Refresh().MarkRevoked(ctx, refresh)
		if err != nil {
			return err
		}

		if token.ExpiresAt.Before(time.Now()) {
			return fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenExpired)
		}

		user, err = st.User().GetUserByID(ctx, token.UserID)
		if err != nil {
			return err
		}

		pair, err = s.token.GeneratePair(ctx, user, st.Refresh())
		return err
	})
	if err != nil {
		return pair, user, err
	}

	return pair, user, nil
}

// Revoke marks the token revoked (logout).
// Revoking an unknown or already revoked token is a no-op, not an error,
// so callers can't probe which session strings exist.
func (s *AuthService) Revoke(ctx context.Context, refresh string) error {
	_, err := s.storage.Refresh().MarkRevoked(ctx, refresh)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return nil
	case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
		return nil
	default:
		return err
	}
}

// ChangePassword swaps the hash when the current password verifies.
// Fail-soft: missing account, missing hash and wrong current password all
// report false without detail. On success every live session of the account
// is revoked together with the hash swap.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, current string, newPassword string) (bool, error) {
	user, err := s.storage.User().GetUserByID(ctx, userID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return false, nil
	case err != nil:
		return false, err
	}

	if user.HashedPassword == nil {
		return false, nil
	}

	if err := s.hasher.Compare(*user.HashedPassword, current); err != nil {
		return false, nil
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("can't use this as password, error=%w", err)
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		if err := st.User().UpdatePassword(ctx, userID, hash); err != nil {
			return err
		}
		_, err := st.Refresh().RevokeAllForUser(ctx, userID)
		return err
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// GetUser returns the account for an already authenticated id
func (s *AuthService) GetUser(ctx context.Context, userID int64) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}
