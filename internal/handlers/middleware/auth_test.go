package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techx/identity/internal/handlers/userctx"
	"github.com/techx/identity/internal/models"
	"github.com/techx/identity/internal/service/auth/tokenmanager"
)

func newParser(t *testing.T) *tokenmanager.TokenManager {
	t.Helper()

	m, err := tokenmanager.New(tokenmanager.Config{
		SecretKey: "test-secret-key-that-is-long-enough",
	})
	require.NoError(t, err)
	return m
}

// Terminal handler that records the identity it saw
func identityProbe(got **userctx.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ident, ok := userctx.FromContext(r.Context()); ok {
			*got = &ident
		}
		w.WriteHeader(http.StatusOK)
	})
}

// Refresh repo stub: tests here only need the access token
type discardRefreshRepo struct{}

func (discardRefreshRepo) Save(_ context.Context, token models.RefreshToken) (models.RefreshToken, error) {
	return token, nil
}

func (discardRefreshRepo) Get(context.Context, string) (models.RefreshToken, error) {
	panic("not implemented")
}

func (discardRefreshRepo) MarkRevoked(context.Context, string) (models.RefreshToken, error) {
	panic("not implemented")
}

func (discardRefreshRepo) RevokeAllForUser(context.Context, int64) (int64, error) {
	panic("not implemented")
}

func (discardRefreshRepo) DeleteExpired(context.Context, time.Time) (int64, error) {
	panic("not implemented")
}

func issueAccess(t *testing.T, m *tokenmanager.TokenManager, user models.User) string {
	t.Helper()

	pair, err := m.GeneratePair(t.Context(), user, discardRefreshRepo{})
	require.NoError(t, err)
	return pair.Access.Value
}

func TestIdentify(t *testing.T) {
	t.Parallel()

	parser := newParser(t)

	t.Run("valid token attaches identity", func(t *testing.T) {
		access := issueAccess(t, parser, models.User{ID: 42, Email: "user@techx.io", FirstName: "Jamie"})

		var got *userctx.Identity
		handler := Identify(parser)(identityProbe(&got))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got, "identity should be attached")
		assert.EqualValues(t, 42, got.UserID)
		assert.Equal(t, "user@techx.io", got.Email)
	})

	t.Run("requests without identity still pass", func(t *testing.T) {
		headers := map[string]string{
			"no header":     "",
			"not bearer":    "Basic dXNlcjpwd2Q=",
			"garbage token": "Bearer not-a-jwt",
			"empty token":   "Bearer ",
		}

		for name, header := range headers {
			t.Run(name, func(t *testing.T) {
				var got *userctx.Identity
				handler := Identify(parser)(identityProbe(&got))

				req := httptest.NewRequest(http.MethodGet, "/", nil)
				if header != "" {
					req.Header.Set("Authorization", header)
				}
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, req)

				assert.Equal(t, http.StatusOK, rec.Code, "request must pass through")
				assert.Nil(t, got, "no identity should be attached")
			})
		}
	})

	t.Run("bearer scheme is case insensitive", func(t *testing.T) {
		access := issueAccess(t, parser, models.User{ID: 7, Email: "user@techx.io"})

		var got *userctx.Identity
		handler := Identify(parser)(identityProbe(&got))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "bearer "+access)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.NotNil(t, got)
		assert.EqualValues(t, 7, got.UserID)
	})
}

func TestRequireAuth(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects anonymous request", func(t *testing.T) {
		handler := RequireAuth()(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error": "service_error", "message": "Unauthorized"}`, rec.Body.String())
	})

	t.Run("passes identified request", func(t *testing.T) {
		handler := RequireAuth()(next)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(userctx.New(req.Context(), userctx.Identity{UserID: 42}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
