package handlers

import (
	"net/http"

	"github.com/techx/identity/internal/handlers/render"
	"github.com/techx/identity/internal/handlers/userctx"
	"github.com/techx/identity/internal/logger"
)

func handleMe(authService authService, logger logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// RequireAuth guarantees the identity is present
		ident, _ := userctx.FromContext(r.Context())

		user, err := authService.GetUser(r.Context(), ident.UserID)
		if err != nil {
			logger.Error("get user failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, user.Public())
	})
}
