package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/techx/identity/internal/apperrors"
	"github.com/techx/identity/internal/logger"
	"github.com/techx/identity/internal/models"
	"github.com/techx/identity/internal/repository"
	"github.com/techx/identity/internal/service/auth/tokenmanager"
)

const (
	defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"
	defaultTimeout      = 5 * time.Second
)

type Config struct {
	// OAuth client id the provider token must be issued for
	// Required to be set
	ClientID string

	// Introspection endpoint, default is Google's tokeninfo
	TokenInfoURL string

	// Outbound call timeout
	Timeout time.Duration
}

// Federated identity linker: verifies a Google id token and finds,
// creates or links the local account it belongs to
type Service struct {
	clientID     string
	tokenInfoURL string
	client       *http.Client

	token   *tokenmanager.TokenManager
	storage repository.Storage
	logger  logger.Logger
}

func NewService(cfg Config, token *tokenmanager.TokenManager, storage repository.Storage, l logger.Logger) (*Service, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google client id must not be empty")
	}
	if token == nil || storage == nil {
		return nil, errors.New("token manager and storage must not be nil")
	}

	if cfg.TokenInfoURL == "" {
		cfg.TokenInfoURL = defaultTokenInfoURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &Service{
		clientID:     cfg.ClientID,
		tokenInfoURL: cfg.TokenInfoURL,
		client:       &http.Client{Timeout: cfg.Timeout},
		token:        token,
		storage:      storage,
		logger:       l,
	}, nil
}

// Authenticate verifies the provider token, resolves the local account and
// issues a token pair for it. Every verification failure surfaces as
// apperrors.ErrProviderTokenInvalid, the failing sub-check is only logged.
func (s *Service) Authenticate(ctx context.Context, providerToken string) (models.TokenPair, models.User, error) {
	var pair models.TokenPair
	var user models.User

	info, err := s.verifyToken(ctx, providerToken)
	if err != nil {
		s.logger.Warn("provider token verification failed", "error", err)
		return pair, user, apperrors.ErrProviderTokenInvalid
	}

	err = s.storage.InTx(ctx, func(st repository.Storage) error {
		user, err = s.resolveUser(ctx, st, info)
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

// resolveUser finds the account by email or google id, creates one from the
// provider data, or links the provider id to an existing password account
func (s *Service) resolveUser(ctx context.Context, st repository.Storage, info userInfo) (models.User, error) {
	user, err := st.User().GetUserByEmailOrGoogleID(ctx, info.Email, info.Subject)

	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		// Provider-issued emails are trusted as verified
		return st.User().CreateUser(ctx, repository.CreateUserParams{
			Email:           info.Email,
			FirstName:       info.GivenName,
			LastName:        info.FamilyName,
			Avatar:          info.Picture,
			IsEmailVerified: true,
			AuthProvider:    models.AuthProviderGoogle,
			GoogleID:        &info.Subject,
			GooglePicture:   info.Picture,
		})
	case err != nil:
		return user, err
	}

	// Existing password account seen from this provider for the first time:
	// link it without touching the password
	if user.GoogleID == nil {
		return st.User().LinkGoogle(ctx, user.ID, info.Subject, info.Picture)
	}

	return user, nil
}

type userInfo struct {
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	Picture    *string
}

// tokeninfo response; exp may come quoted or bare depending on the endpoint
type tokenInfoResponse struct {
	Aud        string   `json:"aud"`
	Exp        unixTime `json:"exp"`
	Sub        string   `json:"sub"`
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name"`
	FamilyName string   `json:"family_name"`
	Picture    string   `json:"picture"`
}

type unixTime int64

func (u *unixTime) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid exp claim: %w", err)
	}

	*u = unixTime(v)
	return nil
}

func (s *Service) verifyToken(ctx context.Context, providerToken string) (userInfo, error) {
	var info userInfo

	ctx, cancel := context.WithTimeout(ctx, s.client.Timeout)
	defer cancel()

	reqURL := s.tokenInfoURL + "?id_token=" + url.QueryEscape(providerToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return info, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return info, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	var ti tokenInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&ti); err != nil {
		return info, fmt.Errorf("failed to decode response: %w", err)
	}

	if ti.Aud != s.clientID {
		return info, errors.New("token audience does not match client id")
	}

	if time.Unix(int64(ti.Exp), 0).Before(time.Now()) {
		return info, errors.New("token expired")
	}

	if ti.Sub == "" || ti.Email == "" {
		return info, errors.New("token has no subject or email")
	}

	info = userInfo{
		Subject:    ti.Sub,
		Email:      ti.Email,
		GivenName:  ti.GivenName,
		FamilyName: ti.FamilyName,
	}
	if ti.Picture != "" {
		info.Picture = &ti.Picture
	}

	return info, nil
}
