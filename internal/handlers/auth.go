package handlers

import (
	"errors"
	"net/http"

	"github.com/techx/identity/internal/apperrors"
	"github.com/techx/identity/internal/handlers/render"
	"github.com/techx/identity/internal/handlers/userctx"
	"github.com/techx/identity/internal/logger"
	"github.com/techx/identity/internal/models"
	"github.com/techx/identity/internal/service/auth"
)

// AuthResponse is returned from every endpoint that issues a token pair
type AuthResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	User         models.PublicUser `json:"user"`
}

func authResponse(pair models.TokenPair, user models.User) AuthResponse {
	return AuthResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
		User:         user.Public(),
	}
}

func handleRegister(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Email     string `json:"email" validate:"required,email,max=255"`
		Password  string `json:"password" validate:"required,min=8,max=128"`
		FirstName string `json:"first_name" validate:"required,max=100"`
		LastName  string `json:"last_name" validate:"required,max=100"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, user, err := authService.Register(r.Context(), auth.RegisterParams{
			Email:     data.Email,
			Password:  data.Password,
			FirstName: data.FirstName,
			LastName:  data.LastName,
		})
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User with this email already exists", http.StatusConflict)
			default:
				logger.Error("register failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, authResponse(pair, user))
	})
}

func handleLogin(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, user, err := authService.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCredentials):
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				logger.Error("login failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, authResponse(pair, user))
	})
}

func handleTokenRefresh(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, user, err := authService.Refresh(r.Context(), data.RefreshToken)
		if err != nil {
			// All refresh failures look the same to the caller
			switch {
			case errors.Is(err, apperrors.ErrRefreshTokenNotFound),
				errors.Is(err, apperrors.ErrRefreshTokenRevoked),
				errors.Is(err, apperrors.ErrRefreshTokenExpired):
				render.ServiceError(w, "Invalid or expired refresh token", http.StatusUnauthorized)
			default:
				logger.Error("refresh failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, authResponse(pair, user))
	})
}

func handleLogout(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		if err := authService.Revoke(r.Context(), data.RefreshToken); err != nil {
			logger.Error("logout failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Message: "Logged out"})
	})
}

func handleGoogleAuth(googleService googleService, logger logger.Logger) http.Handler {
	type request struct {
		IDToken string `json:"id_token" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, user, err := googleService.Authenticate(r.Context(), data.IDToken)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrProviderTokenInvalid):
				render.ServiceError(w, "Google authentication failed", http.StatusUnauthorized)
			default:
				logger.Error("google auth failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, authResponse(pair, user))
	})
}

func handleChangePassword(authService authService, logger logger.Logger) http.Handler {
	type request struct {
		CurrentPassword string `json:"current_password" validate:"required"`
		NewPassword     string `json:"new_password" validate:"required,min=8,max=128"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, _ := userctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		ok, err := authService.ChangePassword(r.Context(), ident.UserID, data.CurrentPassword, data.NewPassword)
		if err != nil {
			logger.Error("change password failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			render.ServiceError(w, "Password not changed", http.StatusBadRequest)
			return
		}

		render.JSON(w, response{Message: "Password changed successfully"})
	})
}
