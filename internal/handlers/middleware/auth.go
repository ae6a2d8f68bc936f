package middleware

import (
	"net/http"
	"strings"

	"github.com/techx/identity/internal/handlers/render"
	"github.com/techx/identity/internal/handlers/userctx"
	"github.com/techx/identity/internal/service/auth/tokenmanager"
)

type accessParser interface {
	ParseAccess(access string) (tokenmanager.AccessTokenClaims, error)
}

// Identify attaches the identity from a valid bearer token to the request
// context and nothing more. Missing or invalid tokens let the request pass
// unauthenticated: rejecting is RequireAuth's job, so endpoints that work
// without identity stay reachable.
func Identify(parser accessParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parser.ParseAccess(token)
			if err != nil {
				// Invalid token is treated as no identity, not as an error
				next.ServeHTTP(w, r)
				return
			}

			userID, err := claims.UserID()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := userctx.New(r.Context(), userctx.Identity{
				UserID: userID,
				Email:  claims.Email,
				Name:   claims.Name,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that carry no identity in the context.
// Must run after Identify.
func RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := userctx.FromContext(r.Context()); !ok {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}

	return token, true
}
