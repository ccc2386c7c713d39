package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"coffeehouse/internal/domain"
	"coffeehouse/internal/metrics"
	"coffeehouse/internal/storefront"
	"coffeehouse/internal/validation"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	oauthSuccessPath = "/menu"
	oauthFailurePath = "/login?error=oauth_failed"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email       string                 `json:"email" validate:"required,email"`
	Password    string                 `json:"password" validate:"required"`
	Name        string                 `json:"name" validate:"max=128"`
	Phone       string                 `json:"phone" validate:"max=32"`
	Preferences map[string]interface{} `json:"preferences"`
	Newsletter  bool                   `json:"newsletter"`
}

type sessionResponse struct {
	Authenticated bool             `json:"authenticated"`
	State         string           `json:"state"`
	User          *domain.Identity `json:"user"`
}

func toSession(client *storefront.Client) sessionResponse {
	id := client.Session.Current()
	return sessionResponse{
		Authenticated: id != nil,
		State:         client.Session.State().String(),
		User:          id,
	}
}

func (h *handlers) getSession(c *gin.Context) {
	var resp sessionResponse
	if h.withClient(c, func(client *storefront.Client) error {
		client.Session.CheckCurrentSession(c.Request.Context())
		resp = toSession(client)
		return nil
	}) {
		c.JSON(http.StatusOK, resp)
	}
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	var resp sessionResponse
	ok := h.withClient(c, func(client *storefront.Client) error {
		_, err := client.Session.Login(c.Request.Context(), req.Email, req.Password)
		metrics.RecordAuth("login", authOutcome(err))
		if err != nil {
			return err
		}
		resp = toSession(client)
		return nil
	})
	if ok {
		c.JSON(http.StatusOK, resp)
	}
}

func (h *handlers) register(c *gin.Context) {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeError(c, h.logger, err)
		return
	}
	extras := domain.ProfileExtras{
		Phone:           req.Phone,
		Preferences:     req.Preferences,
		NewsletterOptIn: req.Newsletter,
	}
	var resp sessionResponse
	ok := h.withClient(c, func(client *storefront.Client) error {
		_, err := client.Session.Register(c.Request.Context(), req.Email, req.Password, strings.TrimSpace(req.Name), extras)
		metrics.RecordAuth("register", authOutcome(err))
		if err != nil {
			return err
		}
		resp = toSession(client)
		return nil
	})
	if ok {
		c.JSON(http.StatusCreated, resp)
	}
}

func (h *handlers) logout(c *gin.Context) {
	ok := h.withClient(c, func(client *storefront.Client) error {
		err := client.Session.Logout(c.Request.Context())
		metrics.RecordAuth("logout", authOutcome(err))
		return err
	})
	if ok {
		c.Status(http.StatusNoContent)
	}
}

func (h *handlers) googleRedirect(c *gin.Context) {
	base := strings.TrimRight(h.deps.PublicBaseURL, "/")
	var target string
	ok := h.withClient(c, func(client *storefront.Client) error {
		var err error
		target, err = client.Session.LoginWithGoogleRedirect(c.Request.Context(), base+"/auth/callback", base+oauthFailurePath)
		return err
	})
	if ok {
		c.Redirect(http.StatusFound, target)
	}
}

// oauthCallback is where the identity service sends the browser back. Failures land on
// the login page instead of an error body.
func (h *handlers) oauthCallback(c *gin.Context) {
	base := strings.TrimRight(h.deps.PublicBaseURL, "/")
	err := h.deps.Clients.Do(c.Request.Context(), deviceID(c), func(client *storefront.Client) error {
		_, err := client.Session.CompleteOAuth(c.Request.Context(), c.Request.URL.Query())
		return err
	})
	metrics.RecordAuth("oauth", authOutcome(err))
	if err != nil {
		h.logger.Warn("oauth callback failed", zap.String("device_id", deviceID(c)), zap.Error(err))
		c.Redirect(http.StatusFound, base+oauthFailurePath)
		return
	}
	c.Redirect(http.StatusFound, base+oauthSuccessPath)
}

func (h *handlers) googleCallback(c *gin.Context) {
	next, err := h.deps.Google.HandleGoogleCallback(c.Request.Context(), c.Request.URL.Query())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Redirect(http.StatusFound, next)
}

func authOutcome(err error) string {
	var authErr *domain.AuthenticationError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &authErr), errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrAlreadyExists):
		return "rejected"
	default:
		return "error"
	}
}
