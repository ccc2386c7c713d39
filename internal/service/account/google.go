package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"coffeehouse/internal/domain"
	accountrepo "coffeehouse/internal/repository/account"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
	stateTTL           = 10 * time.Minute
)

// GoogleConfig enables Google sign-in. RedirectURL must point at the
// /oauth/google/callback route of this service.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// StateSecret signs the state parameter that carries the success/failure URLs.
	StateSecret []byte
	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

type googleProvider struct {
	oauth       *oauth2.Config
	stateSecret []byte
	userInfoURL string
	now         func() time.Time
}

type stateClaims struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	jwt.RegisteredClaims
}

type googleUser struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func newGoogleProvider(cfg GoogleConfig) *googleProvider {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfo := cfg.UserInfoURL
	if userInfo == "" {
		userInfo = defaultUserInfoURL
	}
	return &googleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		stateSecret: cfg.StateSecret,
		userInfoURL: userInfo,
		now:         time.Now,
	}
}

func (g *googleProvider) AuthURL(successURL, failureURL string) (string, error) {
	now := g.now()
	claims := stateClaims{
		Success: successURL,
		Failure: failureURL,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}
	state, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.stateSecret)
	if err != nil {
		return "", fmt.Errorf("sign oauth state: %w", err)
	}
	return g.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

func (g *googleProvider) parseState(state string) (*stateClaims, error) {
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state, claims, func(*jwt.Token) (interface{}, error) {
		return g.stateSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.now))
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func (g *googleProvider) fetchUser(ctx context.Context, code string) (googleUser, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return googleUser{}, fmt.Errorf("exchange code: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return googleUser{}, err
	}
	resp, err := g.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return googleUser{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return googleUser{}, fmt.Errorf("fetch userinfo: status %d", resp.StatusCode)
	}
	var u googleUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return googleUser{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if u.Subject == "" {
		return googleUser{}, errors.New("userinfo without subject")
	}
	return u, nil
}

// HandleGoogleCallback finishes the provider round trip and returns where the browser
// goes next: the success URL carrying userId and a one-time secret, or the failure URL.
// An error is returned only when the state cannot be trusted.
func (s *Service) HandleGoogleCallback(ctx context.Context, query url.Values) (string, error) {
	if s.google == nil {
		return "", domain.ErrOAuthUnavailable
	}
	claims, err := s.google.parseState(query.Get("state"))
	if err != nil {
		return "", domain.Invalid("oauth state is invalid or expired")
	}
	if e := query.Get("error"); e != "" || query.Get("code") == "" {
		s.logger.Info("google sign-in declined", zap.String("error", e))
		return claims.Failure, nil
	}

	user, err := s.google.fetchUser(ctx, query.Get("code"))
	if err != nil {
		s.logger.Warn("google sign-in failed", zap.Error(err))
		return claims.Failure, nil
	}
	a, err := s.accountForGoogle(ctx, user)
	if err != nil {
		s.logger.Warn("google account resolution failed", zap.String("email", user.Email), zap.Error(err))
		return claims.Failure, nil
	}
	t, err := s.tokens.Issue(ctx, a.ID, kindOAuth, oauthTokenTTL)
	if err != nil {
		s.logger.Error("issue oauth secret", zap.Error(err))
		return claims.Failure, nil
	}
	return withQuery(claims.Success, url.Values{"userId": {a.ID}, "secret": {t.Token}})
}

func (s *Service) accountForGoogle(ctx context.Context, u googleUser) (*accountrepo.Account, error) {
	a, err := s.repo.GetByGoogleSubject(ctx, u.Subject)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if u.Email == "" {
		return nil, domain.Invalid("google account has no email")
	}

	existing, err := s.repo.GetByEmail(ctx, u.Email)
	switch {
	case err == nil:
		if !u.EmailVerified {
			return nil, fmt.Errorf("%w: unverified google email matches an existing account", domain.ErrAlreadyExists)
		}
		if err := s.repo.LinkGoogleSubject(ctx, existing.ID, u.Subject); err != nil {
			return nil, err
		}
		existing.GoogleSubject = u.Subject
		return existing, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}

	return s.repo.Create(ctx, accountrepo.Account{
		ID:            uuid.NewString(),
		Email:         u.Email,
		Name:          u.Name,
		GoogleSubject: u.Subject,
	})
}

func withQuery(raw string, extra url.Values) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", domain.Invalid("bad redirect url %q", raw)
	}
	q := u.Query()
	for k, vs := range extra {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
