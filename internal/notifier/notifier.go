package notifier

import (
	"context"

	"github.com/techx/identity/internal/logger"
)

// Sender delivers a recovery code to the account out-of-band.
// Delivery is an external concern: failures must never roll back
// state the caller has already committed.
type Sender interface {
	SendOTP(ctx context.Context, email string, code string) error
}

// LogSender writes codes to the log instead of delivering them.
// Used in development and as a fallback when no broker is configured.
type LogSender struct {
	Logger logger.Logger
}

func (s LogSender) SendOTP(ctx context.Context, email string, code string) error {
	s.Logger.Info("OTP issued", "email", email, "code", code)
	return nil
}
