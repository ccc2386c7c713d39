package appwrite

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
)

const (
	opCreateSession      = "create session"
	opCreateTokenSession = "create token session"
)

type sessionResponse struct {
	ID     string `json:"$id"`
	UserID string `json:"userId"`
	Secret string `json:"secret"`
}

type userResponse struct {
	ID    string `json:"$id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u userResponse) identity() domain.Identity {
	return domain.Identity{ID: u.ID, Name: u.Name, Email: u.Email}
}

func (c *Client) CreateSession(ctx context.Context, email, password string) (remote.Credential, error) {
	var out sessionResponse
	err := c.do(ctx, opCreateSession, http.MethodPost, "/account/sessions/email", nil, nil, map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return remote.Credential{}, err
	}
	return remote.Credential{SessionID: out.ID, Secret: out.Secret}, nil
}

func (c *Client) CurrentIdentity(ctx context.Context, cred remote.Credential) (domain.Identity, error) {
	if cred.IsZero() {
		return domain.Identity{}, &domain.AuthenticationError{Message: "no active session"}
	}
	var out userResponse
	if err := c.do(ctx, "get account", http.MethodGet, "/account", nil, &cred, nil, &out); err != nil {
		return domain.Identity{}, err
	}
	return out.identity(), nil
}

func (c *Client) CreateIdentity(ctx context.Context, id, email, password, name string) (domain.Identity, error) {
	var out userResponse
	err := c.do(ctx, "create account", http.MethodPost, "/account", nil, nil, map[string]string{
		"userId":   id,
		"email":    email,
		"password": password,
		"name":     name,
	}, &out)
	if err != nil {
		return domain.Identity{}, err
	}
	return out.identity(), nil
}

// OAuthRedirectURL returns the provider handoff URL. The browser returns to successURL
// with userId and secret query parameters, which CompleteOAuth exchanges for a session.
func (c *Client) OAuthRedirectURL(_ context.Context, provider, successURL, failureURL string) (string, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return "", domain.Invalid("provider required")
	}
	q := url.Values{}
	q.Set("project", c.cfg.ProjectID)
	q.Set("success", successURL)
	q.Set("failure", failureURL)
	return c.cfg.Endpoint + "/account/tokens/oauth2/" + url.PathEscape(provider) + "?" + q.Encode(), nil
}

func (c *Client) CompleteOAuth(ctx context.Context, callback url.Values) (remote.Credential, error) {
	userID := strings.TrimSpace(callback.Get("userId"))
	secret := strings.TrimSpace(callback.Get("secret"))
	if userID == "" || secret == "" {
		return remote.Credential{}, &domain.AuthenticationError{Message: "oauth callback is missing userId or secret"}
	}
	var out sessionResponse
	err := c.do(ctx, opCreateTokenSession, http.MethodPost, "/account/sessions/token", nil, nil, map[string]string{
		"userId": userID,
		"secret": secret,
	}, &out)
	if err != nil {
		return remote.Credential{}, err
	}
	return remote.Credential{SessionID: out.ID, Secret: out.Secret}, nil
}

func (c *Client) DeleteSession(ctx context.Context, cred remote.Credential, sessionID string) error {
	if sessionID == "" {
		sessionID = remote.CurrentSession
	}
	return c.do(ctx, "delete session", http.MethodDelete, "/account/sessions/"+url.PathEscape(sessionID), nil, &cred, nil, nil)
}
