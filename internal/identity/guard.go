package identity

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/JaimeStill/kisaanseva/pkg/handlers"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

// Authenticator resolves a raw bearer token to a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*Principal, error)
}

// Guard returns a route guard that authenticates the bearer token and, when
// roles are given, requires the principal to hold one of them.
func Guard(auth Authenticator, logger *slog.Logger, roles ...Role) routes.Guard {
	logger = logger.With("middleware", "auth")
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			p, err := auth.Authenticate(r.Context(), bearerToken(r))
			if err != nil {
				handlers.RespondError(w, logger, MapHTTPStatus(err), err)
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, p.Role) {
				handlers.RespondError(w, logger, http.StatusForbidden, ErrForbidden)
				return
			}
			next(w, r.WithContext(WithPrincipal(r.Context(), p)))
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
