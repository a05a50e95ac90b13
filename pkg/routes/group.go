package routes

import (
	"net/http"
	"strings"

	"github.com/JaimeStill/kisaanseva/pkg/openapi"
)

// Group organizes routes under a common prefix. A Guard applies to the group
// and every child that does not set its own.
type Group struct {
	Prefix   string
	Routes   []Route
	Children []Group
	Guard    Guard
}

// Register adds every route of groups to mux, wrapped by its effective Guard.
func Register(mux *http.ServeMux, groups ...Group) {
	walk(groups, "", nil, func(path string, route Route, guard Guard) {
		mux.HandleFunc(route.Method+" "+path, route.wrap(guard))
	})
}

// Walk calls fn for every route with its full path. guarded reports whether
// Register wraps the route with a Guard.
func Walk(fn func(method, path string, route Route, guarded bool), groups ...Group) {
	walk(groups, "", nil, func(path string, route Route, guard Guard) {
		fn(route.Method, path, route, guard != nil && !route.Public)
	})
}

// Describe adds an operation to spec for every route carrying OpenAPI
// metadata. Guarded operations require bearer authentication.
func Describe(spec *openapi.Spec, basePath string, groups ...Group) {
	Walk(func(method, path string, route Route, guarded bool) {
		if route.OpenAPI == nil {
			return
		}
		op := *route.OpenAPI
		if guarded {
			op.Security = openapi.BearerSecurity()
		}
		spec.AddOperation(method, basePath+strings.TrimSuffix(path, "..."), &op)
	}, groups...)
}

func walk(groups []Group, prefix string, inherited Guard, visit func(string, Route, Guard)) {
	for _, g := range groups {
		guard := inherited
		if g.Guard != nil {
			guard = g.Guard
		}
		full := prefix + g.Prefix
		for _, r := range g.Routes {
			visit(full+r.Pattern, r, guard)
		}
		walk(g.Children, full, guard, visit)
	}
}
