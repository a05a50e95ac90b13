package routes_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/JaimeStill/kisaanseva/pkg/openapi"
	"github.com/JaimeStill/kisaanseva/pkg/routes"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func deny(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func sessionGroups() []routes.Group {
	return []routes.Group{
		{
			Prefix: "/auth",
			Routes: []routes.Route{
				{Method: "POST", Pattern: "/login", Handler: ok, OpenAPI: &openapi.Operation{Summary: "Login"}},
			},
		},
		{
			Prefix: "/service",
			Guard:  deny,
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/ping", Handler: ok, Public: true},
			},
			Children: []routes.Group{
				{
					Prefix: "/sessions",
					Routes: []routes.Route{
						{Method: "POST", Pattern: "/request", Handler: ok, OpenAPI: &openapi.Operation{Summary: "Request session"}},
						{Method: "GET", Pattern: "/{id}", Handler: ok},
					},
				},
			},
		},
	}
}

func TestRegister(t *testing.T) {
	mux := http.NewServeMux()
	routes.Register(mux, sessionGroups()...)

	tests := []struct {
		name       string
		method     string
		path       string
		auth       bool
		wantStatus int
	}{
		{"ungrouped guard", "POST", "/auth/login", false, http.StatusOK},
		{"public route skips guard", "GET", "/service/ping", false, http.StatusOK},
		{"child inherits guard", "POST", "/service/sessions/request", false, http.StatusUnauthorized},
		{"child with credentials", "POST", "/service/sessions/request", true, http.StatusOK},
		{"path parameter", "GET", "/service/sessions/123", true, http.StatusOK},
		{"method mismatch", "DELETE", "/service/sessions/123", true, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth {
				req.Header.Set("Authorization", "Bearer token")
			}
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestWalk(t *testing.T) {
	guarded := make(map[string]bool)
	routes.Walk(func(method, path string, route routes.Route, g bool) {
		guarded[method+" "+path] = g
	}, sessionGroups()...)

	want := map[string]bool{
		"POST /auth/login":               false,
		"GET /service/ping":              false,
		"POST /service/sessions/request": true,
		"GET /service/sessions/{id}":     true,
	}

	if len(guarded) != len(want) {
		t.Fatalf("walked %d routes, want %d", len(guarded), len(want))
	}
	for route, g := range want {
		got, ok := guarded[route]
		if !ok {
			t.Errorf("route %s not walked", route)
			continue
		}
		if got != g {
			t.Errorf("route %s guarded = %v, want %v", route, got, g)
		}
	}
}

func TestDescribe(t *testing.T) {
	spec := openapi.NewSpec("Test", "1.0.0")
	routes.Describe(spec, "/api", sessionGroups()...)

	if len(spec.Paths) != 2 {
		t.Fatalf("paths: got %d, want 2", len(spec.Paths))
	}

	login := spec.Paths["/api/auth/login"]
	if login == nil || login.Post == nil {
		t.Fatal("login operation missing")
	}
	if login.Post.Security != nil {
		t.Error("login should not require bearer auth")
	}

	request := spec.Paths["/api/service/sessions/request"]
	if request == nil || request.Post == nil {
		t.Fatal("session request operation missing")
	}
	if request.Post.Security == nil {
		t.Error("guarded operation should require bearer auth")
	}
}
