package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotAuthenticated is returned when an action needs a signed-in identity.
	ErrNotAuthenticated = errors.New("please login to continue")
	// ErrEmptyCart is returned by checkout when the cart has no lines.
	ErrEmptyCart = errors.New("your cart is empty")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = errors.New("invalid input")
	// ErrOAuthUnavailable indicates the identity service has no federated login configured.
	ErrOAuthUnavailable = errors.New("oauth login is not available")
)

// AuthenticationError reports credentials rejected by the identity service.
// Message is the remote service's text, passed through unchanged.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	return e.Message
}

// RemoteServiceError is an opaque network or service failure from a remote collaborator.
type RemoteServiceError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *RemoteServiceError) Error() string {
	switch {
	case e.Message != "" && e.StatusCode != 0:
		return fmt.Sprintf("%s: remote status=%d: %s", e.Op, e.StatusCode, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": remote service error"
	}
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// Invalid wraps ErrInvalidInput with a human readable reason.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
