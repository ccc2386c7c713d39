// Package appwrite adapts the Appwrite v1 REST API to the remote ports.
package appwrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/remote"
	"go.uber.org/zap"
)

// Config holds the project coordinates of an Appwrite instance.
type Config struct {
	Endpoint   string
	ProjectID  string
	DatabaseID string
	APIKey     string
	Timeout    time.Duration
}

// Client talks to Appwrite. It implements both remote.IdentityService and remote.DocumentStore.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

var (
	_ remote.IdentityService = (*Client)(nil)
	_ remote.DocumentStore   = (*Client)(nil)
)

// New builds a Client. A zero timeout falls back to 10 seconds.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type apiError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
	Type    string `json:"type"`
}

// do sends one request. A non-nil cred authenticates as that user session; otherwise the
// API key (when configured) authenticates as the server.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, cred *remote.Credential, body, out interface{}) error {
	u := c.cfg.Endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("X-Appwrite-Project", c.cfg.ProjectID)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred != nil {
		req.Header.Set("X-Appwrite-Session", cred.Secret)
	} else if c.cfg.APIKey != "" {
		req.Header.Set("X-Appwrite-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.RemoteServiceError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.RemoteServiceError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 400 {
		mapped := c.mapError(op, cred != nil, resp.StatusCode, payload)
		c.logger.Debug("appwrite request failed",
			zap.String("op", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Error(mapped),
		)
		return mapped
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &domain.RemoteServiceError{Op: op, StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

// mapError turns an error response into the domain taxonomy. Credential rejections are
// AuthenticationErrors only when signing in; on calls made with a session they mean the
// session is gone, and on server calls they are ordinary remote failures.
func (c *Client) mapError(op string, sessionCall bool, status int, payload []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(payload, &apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(payload))
	}
	rejected := isCredentialRejection(status, apiErr.Type)
	switch {
	case rejected && signInOps[op]:
		return &domain.AuthenticationError{Message: apiErr.Message}
	case rejected && sessionCall:
		return &domain.RemoteServiceError{Op: op, StatusCode: status, Message: apiErr.Message, Err: domain.ErrNotAuthenticated}
	case status == http.StatusNotFound:
		return &domain.RemoteServiceError{Op: op, StatusCode: status, Message: apiErr.Message, Err: domain.ErrNotFound}
	case status == http.StatusConflict:
		return &domain.RemoteServiceError{Op: op, StatusCode: status, Message: apiErr.Message, Err: domain.ErrAlreadyExists}
	default:
		return &domain.RemoteServiceError{Op: op, StatusCode: status, Message: apiErr.Message}
	}
}

// signInOps exchange user-supplied secrets for a session.
var signInOps = map[string]bool{
	opCreateSession:      true,
	opCreateTokenSession: true,
}

func isCredentialRejection(status int, typ string) bool {
	switch typ {
	case "user_invalid_credentials", "user_blocked", "user_invalid_token", "user_unauthorized", "general_unauthorized_scope":
		return true
	}
	return status == http.StatusUnauthorized
}
