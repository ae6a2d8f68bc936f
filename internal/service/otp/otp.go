package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/techx/identity/internal/apperrors"
	"github.com/techx/identity/internal/logger"
	"github.com/techx/identity/internal/models"
	"github.com/techx/identity/internal/notifier"
	"github.com/techx/identity/internal/repository"
	"github.com/techx/identity/internal/service/auth"
)

const (
	defaultCodeTTL        = 5 * time.Minute
	defaultResendInterval = 60 * time.Second
	defaultMaxAttempts    = 5
	defaultVerifyWindow   = 10 * time.Minute

	codeDigits = 6
	codeMax    = 1000000 // 10^codeDigits

	// Cap on the fire-and-forget delivery goroutine
	deliveryTimeout = 10 * time.Second
)

type Config struct {
	// How long an issued code stays valid
	CodeTTL time.Duration

	// Minimal pause between two code requests for one account
	ResendInterval time.Duration

	// Failed comparisons allowed before the issuance is burned
	MaxAttempts int

	// How long after verification a password reset is still allowed
	VerifyWindow time.Duration

	// Hasher for the new password, BcryptHasher when empty
	Hasher auth.PasswordHasher
}

// Recovery flow: issue a short numeric code, verify it under an attempt cap,
// exchange the verification for one password reset.
// Every outcome is a plain bool so callers can't enumerate accounts.
type Service struct {
	codeTTL        time.Duration
	resendInterval time.Duration
	maxAttempts    int
	verifyWindow   time.Duration

	hasher  auth.PasswordHasher
	storage repository.Storage
	sender  notifier.Sender
	logger  logger.Logger
}

func NewService(cfg Config, storage repository.Storage, sender notifier.Sender, l logger.Logger) (*Service, error) {
	if storage == nil || sender == nil {
		return nil, errors.New("storage and sender must not be nil")
	}

	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.ResendInterval == 0 {
		cfg.ResendInterval = defaultResendInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.VerifyWindow == 0 {
		cfg.VerifyWindow = defaultVerifyWindow
	}
	if cfg.Hasher == nil {
		cfg.Hasher = auth.BcryptHasher{}
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		codeTTL:        cfg.CodeTTL,
		resendInterval: cfg.ResendInterval,
		maxAttempts:    cfg.MaxAttempts,
		verifyWindow:   cfg.VerifyWindow,
		hasher:         cfg.Hasher,
		storage:        storage,
		sender:         sender,
		logger:         l,
	}, nil
}

// RequestCode issues a new code for the account and hands it to the sender.
// Unknown accounts and rate-limited requests report plain false.
// Delivery runs detached: its failure never undoes the issued code.
func (s *Service) RequestCode(ctx context.Context, email string) (bool, error) {
	user, err := s.getUser(ctx, email)
	if err != nil || user == nil {
		return false, err
	}

	now := time.Now()
	if user.OTPLastRequestAt != nil && now.Sub(*user.OTPLastRequestAt) < s.resendInterval {
		return false, nil
	}

	code, err := generateCode()
	if err != nil {
		return false, fmt.Errorf("error while generating code. Err: %w", err)
	}

	if err := s.storage.User().SetOTP(ctx, user.ID, code, now.Add(s.codeTTL), now); err != nil {
		return false, err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := s.sender.SendOTP(ctx, user.Email, code); err != nil {
			s.logger.Warn("OTP delivery failed", "error", err)
		}
	}()

	return true, nil
}

// VerifyCode checks the code against the pending issuance.
// Each mismatch increments the attempt counter; once the cap is reached the
// issuance is dead even for the correct code. A matching code is cleared so
// it can never verify twice.
func (s *Service) VerifyCode(ctx context.Context, email string, code string) (bool, error) {
	user, err := s.getUser(ctx, email)
	if err != nil || user == nil {
		return false, err
	}

	now := time.Now()
	switch {
	case user.OTPCode == nil:
		return false, nil
	case user.OTPExpiresAt == nil || user.OTPExpiresAt.Before(now):
		return false, nil
	case user.OTPAttempts >= s.maxAttempts:
		return false, nil
	}

	if subtle.ConstantTimeCompare([]byte(*user.OTPCode), []byte(code)) != 1 {
		if _, err := s.storage.User().IncrementOTPAttempts(ctx, user.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := s.storage.User().ClearOTP(ctx, user.ID, now); err != nil {
		return false, err
	}

	return true, nil
}

// ResetPassword replaces the password of an account whose code was verified
// within the verify window. The verification mark is consumed and every live
// session is revoked in the same transaction as the hash swap.
func (s *Service) ResetPassword(ctx context.Context, email string, newPassword string) (bool, error) {
	user, err := s.getUser(ctx, email)
	if err != nil || user == nil {
		return false, err
	}

	now := time.Now()
	if user.OTPLastVerifiedAt == nil || now.Sub(*user.OTPLastVerifiedAt) > s.verifyWindow {
		return false, nil
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, fmt.Errorf("can't use this as password, error=%w", err)
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		if err := st.User().UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		if err := st.User().ConsumeOTPVerification(ctx, user.ID); err != nil {
			return err
		}
		_, err := st.Refresh().RevokeAllForUser(ctx, user.ID)
		return err
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// getUser maps "not found" to a nil user so callers return a generic false
func (s *Service) getUser(ctx context.Context, email string) (*models.User, error) {
	user, err := s.storage.User().GetUserByEmail(ctx, email)

	switch {
	case err == nil:
		return &user, nil
	case errors.Is(err, apperrors.ErrUserNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// generateCode returns a zero-padded numeric code from crypto/rand
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
