package farmers

import (
	"errors"
	"net/http"
)

// Domain errors for farmer directory operations.
var (
	ErrNotFound     = errors.New("farmer not found")
	ErrInvalidQuery = errors.New("query must be a farmer id or phone number")
)

// MapHTTPStatus maps farmer domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrInvalidQuery) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
