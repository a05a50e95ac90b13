package staging

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/kisaanseva/internal/schemes"
)

var (
	ErrNotFound        = errors.New("staged item not found")
	ErrInvalidState    = errors.New("staged item is not pending")
	ErrVersionConflict = errors.New("staged item was modified")
	ErrInvalidItem     = errors.New("invalid staged item")
	ErrDuplicate       = errors.New("source record is already staged")
)

// MapHTTPStatus maps staging errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidState),
		errors.Is(err, schemes.ErrAlreadyPublished),
		errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrVersionConflict):
		return http.StatusPreconditionFailed
	case errors.Is(err, ErrInvalidItem):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
