package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techx/identity/internal/apperrors"
	"github.com/techx/identity/internal/logger"
	"github.com/techx/identity/internal/models"
	"github.com/techx/identity/internal/service/auth"
	"github.com/techx/identity/internal/service/auth/tokenmanager"
)

var testUser = models.User{
	ID:           42,
	Email:        "user@techx.io",
	FirstName:    "Jamie",
	LastName:     "Fox",
	IsActive:     true,
	AuthProvider: models.AuthProviderEmail,
}

var testPair = models.TokenPair{
	Access:  models.IssuedToken{Value: "access-token"},
	Refresh: models.IssuedToken{Value: "refresh-token"},
}

// Scripted auth service: each method returns whatever the test configured
// and records the arguments it was called with
type fakeAuthService struct {
	err     error
	changed bool

	gotRegister auth.RegisterParams
	gotEmail    string
	gotPassword string
	gotRefresh  string
	gotUserID   int64
}

func (f *fakeAuthService) Register(_ context.Context, arg auth.RegisterParams) (models.TokenPair, models.User, error) {
	f.gotRegister = arg
	return testPair, testUser, f.err
}

func (f *fakeAuthService) Login(_ context.Context, email string, password string) (models.TokenPair, models.User, error) {
	f.gotEmail, f.gotPassword = email, password
	return testPair, testUser, f.err
}

func (f *fakeAuthService) Refresh(_ context.Context, refresh string) (models.TokenPair, models.User, error) {
	f.gotRefresh = refresh
	return testPair, testUser, f.err
}

func (f *fakeAuthService) Revoke(_ context.Context, refresh string) error {
	f.gotRefresh = refresh
	return f.err
}

func (f *fakeAuthService) ChangePassword(_ context.Context, userID int64, current string, newPassword string) (bool, error) {
	f.gotUserID, f.gotPassword = userID, newPassword
	return f.changed, f.err
}

func (f *fakeAuthService) GetUser(_ context.Context, userID int64) (models.User, error) {
	f.gotUserID = userID
	return testUser, f.err
}

type fakeGoogleService struct {
	err      error
	gotToken string
}

func (f *fakeGoogleService) Authenticate(_ context.Context, providerToken string) (models.TokenPair, models.User, error) {
	f.gotToken = providerToken
	return testPair, testUser, f.err
}

type fakeRecoveryService struct {
	ok  bool
	err error

	gotEmail string
	gotCode  string
}

func (f *fakeRecoveryService) RequestCode(_ context.Context, email string) (bool, error) {
	f.gotEmail = email
	return f.ok, f.err
}

func (f *fakeRecoveryService) VerifyCode(_ context.Context, email string, code string) (bool, error) {
	f.gotEmail, f.gotCode = email, code
	return f.ok, f.err
}

func (f *fakeRecoveryService) ResetPassword(_ context.Context, email string, _ string) (bool, error) {
	f.gotEmail = email
	return f.ok, f.err
}

type routerFakes struct {
	auth     *fakeAuthService
	google   *fakeGoogleService
	recovery *fakeRecoveryService
	manager  *tokenmanager.TokenManager
}

func newTestRouter(t *testing.T) (http.Handler, *routerFakes) {
	t.Helper()

	manager, err := tokenmanager.New(tokenmanager.Config{
		SecretKey: "test-secret-key-that-is-long-enough",
	})
	require.NoError(t, err)

	fakes := &routerFakes{
		auth:     &fakeAuthService{},
		google:   &fakeGoogleService{},
		recovery: &fakeRecoveryService{},
		manager:  manager,
	}

	router := NewRouter(fakes.auth, fakes.google, fakes.recovery, manager, logger.NewNoOpLogger())
	return router, fakes
}

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

func doJSON(t *testing.T, router http.Handler, method string, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func assertAuthResponse(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()

	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var got AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "access-token", got.AccessToken)
	assert.Equal(t, "refresh-token", got.RefreshToken)
	assert.EqualValues(t, 42, got.User.ID)
	assert.Equal(t, "user@techx.io", got.User.Email)
}

func TestHandleRegister(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		router, fakes := newTestRouter(t)

		body := `{"email":"user@techx.io","password":"secret-password","first_name":"Jamie","last_name":"Fox"}`
		rec := doJSON(t, router, http.MethodPost, "/api/auth/register", body, nil)

		assertAuthResponse(t, rec)
		assert.Equal(t, "user@techx.io", fakes.auth.gotRegister.Email)
		assert.Equal(t, "secret-password", fakes.auth.gotRegister.Password)
	})

	t.Run("email taken gives 409", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.auth.err = apperrors.ErrUserAlreadyExists

		body := `{"email":"user@techx.io","password":"secret-password","first_name":"Jamie","last_name":"Fox"}`
		rec := doJSON(t, router, http.MethodPost, "/api/auth/register", body, nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("validation failures give 400 with field map", func(t *testing.T) {
		router, _ := newTestRouter(t)

		body := `{"email":"not-an-email","password":"short","first_name":"","last_name":"Fox"}`
		rec := doJSON(t, router, http.MethodPost, "/api/auth/register", body, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var got struct {
			Error  string            `json:"error"`
			Fields map[string]string `json:"fields"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "validation_failed", got.Error)
		assert.Contains(t, got.Fields, "email")
		assert.Contains(t, got.Fields, "password")
		assert.Contains(t, got.Fields, "first_name")
	})

	t.Run("broken json gives 400", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/auth/register", `{"email":`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleLogin(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		router, fakes := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/auth/login",
			`{"email":"user@techx.io","password":"secret-password"}`, nil)

		assertAuthResponse(t, rec)
		assert.Equal(t, "user@techx.io", fakes.auth.gotEmail)
	})

	t.Run("bad credentials give 401", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.auth.err = apperrors.ErrInvalidCredentials

		rec := doJSON(t, router, http.MethodPost, "/api/auth/login",
			`{"email":"user@techx.io","password":"wrong"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandleTokenRefresh(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		router, fakes := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/auth/refresh",
			`{"refresh_token":"some-refresh-token"}`, nil)

		assertAuthResponse(t, rec)
		assert.Equal(t, "some-refresh-token", fakes.auth.gotRefresh)
	})

	t.Run("every token failure gives the same 401", func(t *testing.T) {
		for name, err := range map[string]error{
			"not found": apperrors.ErrRefreshTokenNotFound,
			"revoked":   apperrors.ErrRefreshTokenRevoked,
			"expired":   apperrors.ErrRefreshTokenExpired,
		} {
			t.Run(name, func(t *testing.T) {
				router, fakes := newTestRouter(t)
				fakes.auth.err = err

				rec := doJSON(t, router, http.MethodPost, "/api/auth/refresh",
					`{"refresh_token":"some-refresh-token"}`, nil)

				assert.Equal(t, http.StatusUnauthorized, rec.Code)
				assert.Contains(t, rec.Body.String(), "Invalid or expired refresh token")
			})
		}
	})
}

func TestHandleLogout(t *testing.T) {
	t.Parallel()

	router, fakes := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/logout",
		`{"refresh_token":"some-refresh-token"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "some-refresh-token", fakes.auth.gotRefresh)
}

func TestHandleGoogleAuth(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		router, fakes := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/auth/google",
			`{"id_token":"provider-token"}`, nil)

		assertAuthResponse(t, rec)
		assert.Equal(t, "provider-token", fakes.google.gotToken)
	})

	t.Run("invalid provider token gives 401", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.google.err = apperrors.ErrProviderTokenInvalid

		rec := doJSON(t, router, http.MethodPost, "/api/auth/google",
			`{"id_token":"provider-token"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRecoveryHandlers(t *testing.T) {
	t.Parallel()

	t.Run("forgot password ok", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.recovery.ok = true

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/forgot",
			`{"email":"user@techx.io"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user@techx.io", fakes.recovery.gotEmail)
	})

	t.Run("forgot password refused is a generic 400", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.recovery.ok = false

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/forgot",
			`{"email":"nobody@techx.io"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("verify otp ok", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.recovery.ok = true

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/verify-otp",
			`{"email":"user@techx.io","code":"123456"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "123456", fakes.recovery.gotCode)
	})

	t.Run("verify otp rejects non numeric code", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/verify-otp",
			`{"email":"user@techx.io","code":"abc123"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reset password ok", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.recovery.ok = true

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/reset",
			`{"email":"user@techx.io","new_password":"brand-new-password"}`, nil)

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("reset password refused is a generic 400", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.recovery.ok = false

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/reset",
			`{"email":"user@techx.io","new_password":"brand-new-password"}`, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthorizedEndpoints(t *testing.T) {
	t.Parallel()

	bearer := func(t *testing.T, manager *tokenmanager.TokenManager) map[string]string {
		t.Helper()
		pair, err := manager.GeneratePair(t.Context(), testUser, discardRefreshRepo{})
		require.NoError(t, err)
		return map[string]string{"Authorization": "Bearer " + pair.Access.Value}
	}

	t.Run("me requires auth", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("me returns the public account", func(t *testing.T) {
		router, fakes := newTestRouter(t)

		rec := doJSON(t, router, http.MethodGet, "/api/auth/me", "", bearer(t, fakes.manager))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 42, fakes.auth.gotUserID, "id must come from the token")

		var got models.PublicUser
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "user@techx.io", got.Email)
	})

	t.Run("change password requires auth", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/change",
			`{"current_password":"old","new_password":"brand-new-password"}`, nil)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("change password ok", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.auth.changed = true

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/change",
			`{"current_password":"old-password","new_password":"brand-new-password"}`,
			bearer(t, fakes.manager))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 42, fakes.auth.gotUserID)
	})

	t.Run("change password refused is 400", func(t *testing.T) {
		router, fakes := newTestRouter(t)
		fakes.auth.changed = false

		rec := doJSON(t, router, http.MethodPost, "/api/auth/password/change",
			`{"current_password":"wrong","new_password":"brand-new-password"}`,
			bearer(t, fakes.manager))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Password not changed")
	})
}

func TestRouting(t *testing.T) {
	t.Parallel()

	t.Run("unknown path gives 404", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodPost, "/api/auth/unknown", "{}", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("wrong method gives 405", func(t *testing.T) {
		router, _ := newTestRouter(t)

		rec := doJSON(t, router, http.MethodGet, "/api/auth/login", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
