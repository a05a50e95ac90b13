package routes

import (
	"net/http"

	"github.com/JaimeStill/kisaanseva/pkg/openapi"
)

// Route binds a method and path pattern to a handler. Public routes skip the
// enclosing group's Guard.
type Route struct {
	Method  string
	Pattern string
	Handler http.HandlerFunc
	Public  bool
	OpenAPI *openapi.Operation
}

// Guard wraps a handler, typically to enforce authentication.
type Guard func(http.HandlerFunc) http.HandlerFunc

func (r Route) wrap(g Guard) http.HandlerFunc {
	if g == nil || r.Public {
		return r.Handler
	}
	return g(r.Handler)
}
