package httpserver

import (
	"errors"
	"net/http"

	"coffeehouse/internal/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Message string `json:"message"`
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var authErr *domain.AuthenticationError
	var remoteErr *domain.RemoteServiceError
	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrEmptyCart):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrOAuthUnavailable):
		return http.StatusNotImplemented
	case errors.As(err, &remoteErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	var authErr *domain.AuthenticationError
	switch {
	case errors.As(err, &authErr):
		msg = authErr.Message
	case errors.Is(err, domain.ErrNotAuthenticated):
		msg = domain.ErrNotAuthenticated.Error()
	case errors.Is(err, domain.ErrEmptyCart):
		msg = domain.ErrEmptyCart.Error()
	case status == http.StatusInternalServerError:
		msg = "internal error"
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, errorBody{Message: msg})
}
