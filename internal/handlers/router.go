package handlers

import (
	"context"
	"net/http"

	"github.com/techx/identity/internal/handlers/middleware"
	"github.com/techx/identity/internal/logger"
	"github.com/techx/identity/internal/models"
	"github.com/techx/identity/internal/service/auth"
	"github.com/techx/identity/internal/service/auth/tokenmanager"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type authService interface {
	// Register user with email and password
	// Has to return apperrors.ErrUserAlreadyExists if the email is taken
	Register(ctx context.Context, arg auth.RegisterParams) (models.TokenPair, models.User, error)

	// Login with email and password
	// Has to return apperrors.ErrInvalidCredentials on any credential failure
	Login(ctx context.Context, email string, password string) (models.TokenPair, models.User, error)

	// Rotate the pair using a refresh token
	// Expired, revoked and unknown tokens return refresh token errors
	Refresh(ctx context.Context, refresh string) (models.TokenPair, models.User, error)

	// Revoke the refresh token, no-op when it is unknown or revoked already
	Revoke(ctx context.Context, refresh string) error

	// Swap the password hash, false on any credential failure
	ChangePassword(ctx context.Context, userID int64, current string, newPassword string) (bool, error)

	// Get account of an authenticated user
	GetUser(ctx context.Context, userID int64) (models.User, error)
}

type googleService interface {
	// Verify the provider token and resolve or create the local account
	// Has to return apperrors.ErrProviderTokenInvalid on any verification failure
	Authenticate(ctx context.Context, providerToken string) (models.TokenPair, models.User, error)
}

type recoveryService interface {
	RequestCode(ctx context.Context, email string) (bool, error)
	VerifyCode(ctx context.Context, email string, code string) (bool, error)
	ResetPassword(ctx context.Context, email string, newPassword string) (bool, error)
}

type accessParser interface {
	ParseAccess(access string) (tokenmanager.AccessTokenClaims, error)
}

func NewRouter(
	authService authService,
	googleService googleService,
	recoveryService recoveryService,
	parser accessParser,
	logger logger.Logger,
) http.Handler {
	requireAuth := middleware.RequireAuth()
	withAuth := func(h http.Handler) http.Handler {
		return requireAuth(h)
	}

	apiauth := http.NewServeMux()

	apiauth.Handle("POST /register", handleRegister(authService, logger))
	apiauth.Handle("POST /login", handleLogin(authService, logger))
	apiauth.Handle("POST /refresh", handleTokenRefresh(authService, logger))
	apiauth.Handle("POST /logout", handleLogout(authService, logger))
	apiauth.Handle("POST /google", handleGoogleAuth(googleService, logger))

	apiauth.Handle("POST /password/forgot", handleForgotPassword(recoveryService, logger))
	apiauth.Handle("POST /password/verify-otp", handleVerifyOTP(recoveryService, logger))
	apiauth.Handle("POST /password/reset", handleResetPassword(recoveryService, logger))

	apiauth.Handle("POST /password/change", withAuth(handleChangePassword(authService, logger)))
	apiauth.Handle("GET /me", withAuth(handleMe(authService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/auth/", http.StripPrefix("/api/auth", apiauth))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
		middleware.Identify(parser),
	)

	return handler
}
