package handlers

import (
	"net/http"

	"github.com/techx/identity/internal/handlers/render"
	"github.com/techx/identity/internal/logger"
)

// Recovery endpoints answer with the same generic failure for every reason
// (unknown email, rate limit, expired code, attempt cap) so they leak nothing
// about which accounts exist or which check failed.

func handleForgotPassword(recoveryService recoveryService, logger logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		ok, err := recoveryService.RequestCode(r.Context(), data.Email)
		if err != nil {
			logger.Error("OTP request failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			render.ServiceError(w, "Unable to send recovery code", http.StatusBadRequest)
			return
		}

		render.JSON(w, response{Message: "Recovery code sent"})
	})
}

func handleVerifyOTP(recoveryService recoveryService, logger logger.Logger) http.Handler {
	type request struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"code" validate:"required,len=6,numeric"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		ok, err := recoveryService.VerifyCode(r.Context(), data.Email, data.Code)
		if err != nil {
			logger.Error("OTP verification failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			render.ServiceError(w, "Invalid or expired code", http.StatusBadRequest)
			return
		}

		render.JSON(w, response{Message: "Code verified"})
	})
}

func handleResetPassword(recoveryService recoveryService, logger logger.Logger) http.Handler {
	type request struct {
		Email       string `json:"email" validate:"required,email"`
		NewPassword string `json:"new_password" validate:"required,min=8,max=128"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		ok, err := recoveryService.ResetPassword(r.Context(), data.Email, data.NewPassword)
		if err != nil {
			logger.Error("password reset failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if !ok {
			render.ServiceError(w, "Password reset not allowed", http.StatusBadRequest)
			return
		}

		render.JSON(w, response{Message: "Password reset successfully"})
	})
}
