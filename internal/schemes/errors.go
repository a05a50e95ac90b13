package schemes

import (
	"errors"
	"net/http"
)

// Domain errors for catalog operations.
var (
	ErrNotFound         = errors.New("scheme not found")
	ErrAlreadyPublished = errors.New("staged item already published")
)

// MapHTTPStatus maps catalog domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrAlreadyPublished) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
