// Package handlers provides JSON response helpers shared by domain HTTP handlers.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"
)

// ErrEmptyBody indicates a request that requires a JSON body was sent without one.
var ErrEmptyBody = errors.New("request body is empty")

// RespondJSON writes data as a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RetryAfter is implemented by errors that know how long the caller should
// wait before retrying.
type RetryAfter interface {
	RetryAfter() time.Duration
}

// RespondError logs err and writes it as a JSON error body.
// Server errors are logged at error level; client errors at warn. When err
// wraps a RetryAfter with a positive delay, a Retry-After header in whole
// seconds is set.
func RespondError(w http.ResponseWriter, logger *slog.Logger, status int, err error) {
	var ra RetryAfter
	if errors.As(err, &ra) {
		if d := ra.RetryAfter(); d > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.Seconds()))))
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "error", err)
	}
	RespondJSON(w, status, map[string]string{"error": err.Error()})
}

// RespondMessage writes a {"message": ...} body.
func RespondMessage(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"message": message})
}

// DecodeJSON decodes the request body into T. Unknown fields are rejected.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return v, ErrEmptyBody
		}
		return v, fmt.Errorf("decode request: %w", err)
	}
	return v, nil
}
