package sessions

import (
	"errors"
	"net/http"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/identity"
)

// Domain errors for access session operations.
var (
	ErrNotFound       = errors.New("session not found")
	ErrFarmerNotFound = errors.New("farmer not found")
	ErrConflict       = errors.New("farmer already has an open access session")
	ErrInvalidOtp     = errors.New("invalid or expired otp")
	ErrInvalidState   = errors.New("invalid session state")
	ErrInactive       = errors.New("session is not active")
	ErrOtpDelivery    = errors.New("otp delivery failed, please retry")
	ErrRateLimited    = errors.New("too many otp requests for this farmer")
	ErrInvalidRequest = errors.New("invalid access request")
)

// RateLimitError reports that the farmer's OTP budget is spent until ResetAt.
// It matches ErrRateLimited.
type RateLimitError struct {
	ResetAt time.Time
	now     time.Time
}

func (e *RateLimitError) Error() string { return ErrRateLimited.Error() }
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter returns the time remaining until the budget refills.
func (e *RateLimitError) RetryAfter() time.Duration {
	return e.ResetAt.Sub(e.now)
}

// MapHTTPStatus maps session domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFarmerNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidOtp):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInactive):
		return http.StatusForbidden
	case errors.Is(err, ErrOtpDelivery):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	}
	return identity.MapHTTPStatus(err)
}
