package identity

import (
	"errors"
	"net/http"
)

// Domain errors for authentication operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrMissingToken       = errors.New("missing bearer token")
	ErrAgentInactive      = errors.New("agent account is deactivated")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrForbidden          = errors.New("role not permitted")
)

// MapHTTPStatus maps identity domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAgentInactive), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAgentNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
