package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/api"
	"github.com/JaimeStill/kisaanseva/internal/config"
	"github.com/JaimeStill/kisaanseva/internal/infrastructure"
	"github.com/JaimeStill/kisaanseva/pkg/database"
	"github.com/JaimeStill/kisaanseva/pkg/middleware"
	"github.com/JaimeStill/kisaanseva/pkg/pagination"
	"github.com/JaimeStill/kisaanseva/pkg/storage"
)

func validConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     "1m",
			WriteTimeout:    "2m",
			ShutdownTimeout: "30s",
		},
		Database: database.Config{
			Host:            "localhost",
			Port:            5432,
			Name:            "kisaanseva",
			User:            "kisaanseva",
			Password:        "kisaanseva",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: "15m",
			ConnTimeout:     "5s",
		},
		Storage: storage.Config{ContainerName: "forms"},
		API: config.APIConfig{
			BasePath:    "/api",
			MaxBodySize: "1MB",
			CORS:        middleware.CORSConfig{Enabled: false},
			Pagination: pagination.Config{
				DefaultPageSize: 20,
				MaxPageSize:     100,
			},
		},
		Auth: config.AuthConfig{
			JWTSecret:       "0123456789abcdef0123456789abcdef",
			Issuer:          "kisaanseva",
			AccessTokenTTL:  "15m",
			RefreshTokenTTL: "168h",
		},
		Sessions: config.SessionsConfig{
			SessionTTL:     "30m",
			ChallengeTTL:   "5m",
			MaxOTPAttempts: 5,
			SweepInterval:  "1m",
			OTPLength:      6,
			OTPRateLimit:   5,
			OTPRateWindow:  "1h",
			OTPSecret:      "otp-test-secret",
		},
		Fanout: config.FanoutConfig{
			BatchSize:     100,
			Concurrency:   4,
			Timeout:       "30s",
			RetryInterval: "5m",
			MaxAttempts:   5,
		},
		Integrations: config.IntegrationsConfig{
			MatchingTimeout: "10s",
			SMSTimeout:      "10s",
		},
		ShutdownTimeout: "30s",
		Version:         "0.1.0",
	}
}

func setupInfra(t *testing.T, cfg *config.Config) *infrastructure.Infrastructure {
	t.Helper()
	infra, err := infrastructure.New(cfg)
	if err != nil {
		t.Fatalf("infrastructure.New() error = %v", err)
	}
	t.Cleanup(func() { infra.Database.Connection().Close() })
	return infra
}

func TestNewRuntime(t *testing.T) {
	cfg := validConfig()
	infra := setupInfra(t, cfg)

	runtime := api.NewRuntime(cfg, infra)

	if runtime.Pagination.DefaultPageSize != 20 {
		t.Errorf("pagination default page size: got %d, want 20", runtime.Pagination.DefaultPageSize)
	}
	if runtime.Logger == nil {
		t.Error("runtime logger is nil")
	}
	if runtime.Database == nil || runtime.Storage == nil || runtime.Events == nil {
		t.Error("runtime should carry database, storage, and events")
	}
	if runtime.Lifecycle != infra.Lifecycle {
		t.Error("runtime should share the infrastructure lifecycle")
	}
}

func TestRuntimeWithoutCache(t *testing.T) {
	cfg := validConfig()
	infra := setupInfra(t, cfg)
	runtime := api.NewRuntime(cfg, infra)

	if runtime.Cache != nil {
		t.Fatal("cache should be nil without redis configured")
	}

	limiter := runtime.Limiter()
	for i := range 3 {
		d, err := limiter.Allow(t.Context(), "otp:agent-1", 2, time.Hour)
		if err != nil {
			t.Fatalf("Allow() error = %v", err)
		}
		if want := i < 2; d.Allowed != want {
			t.Errorf("request %d: allowed = %v, want %v", i+1, d.Allowed, want)
		}
	}

	refresh := runtime.RefreshStore()
	if err := refresh.Save(t.Context(), "agent-1", "tok-1", time.Hour); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if ok, err := refresh.Consume(t.Context(), "agent-1", "tok-1"); err != nil || !ok {
		t.Errorf("Consume() = %v, %v; want true", ok, err)
	}
}

func TestNewDomain(t *testing.T) {
	cfg := validConfig()
	infra := setupInfra(t, cfg)

	domain := api.NewDomain(cfg, api.NewRuntime(cfg, infra))

	if domain.Identity == nil || domain.Sessions == nil || domain.Gateway == nil {
		t.Error("access systems not wired")
	}
	if domain.Staging == nil || domain.Schemes == nil || domain.Audit == nil || domain.Farmers == nil {
		t.Error("catalog systems not wired")
	}
}

func TestModuleRoutes(t *testing.T) {
	cfg := validConfig()
	infra := setupInfra(t, cfg)

	m, err := api.NewModule(cfg, infra)
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}
	if m.Prefix() != "/api" {
		t.Errorf("prefix: got %s, want /api", m.Prefix())
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"staging requires auth", "GET", "/api/staging", "", http.StatusUnauthorized},
		{"audit requires auth", "GET", "/api/audit", "", http.StatusUnauthorized},
		{"schemes require auth", "GET", "/api/schemes", "", http.StatusUnauthorized},
		{"session request requires auth", "POST", "/api/service/request-access", `{}`, http.StatusUnauthorized},
		{"gateway requires auth", "GET", "/api/service/session/7c9e6679-7425-40de-944b-e07fc1f90ae7/farmer", "", http.StatusUnauthorized},
		{"farmer access log requires auth", "GET", "/api/farmers/KSXR7BM2QAL/access-log", "", http.StatusUnauthorized},
		{"login is public", "POST", "/api/service/auth/login", ``, http.StatusBadRequest},
		{"unknown route", "GET", "/api/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			m.Serve(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestOpenAPISpec(t *testing.T) {
	cfg := validConfig()
	infra := setupInfra(t, cfg)

	m, err := api.NewModule(cfg, infra)
	if err != nil {
		t.Fatalf("NewModule() error = %v", err)
	}

	rec := httptest.NewRecorder()
	m.Serve(rec, httptest.NewRequest("GET", "/api/openapi.json", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	var spec struct {
		Info struct {
			Version string `json:"version"`
		} `json:"info"`
		Paths      map[string]map[string]json.RawMessage `json:"paths"`
		Components struct {
			Schemas map[string]json.RawMessage `json:"schemas"`
		} `json:"components"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&spec); err != nil {
		t.Fatalf("decode spec: %v", err)
	}

	if spec.Info.Version != "0.1.0" {
		t.Errorf("version: got %s, want 0.1.0", spec.Info.Version)
	}
	for _, path := range []string{
		"/service/auth/login",
		"/service/request-access",
		"/service/verify-access",
		"/staging/{id}/approve",
		"/staging/{id}/reject",
	} {
		if _, ok := spec.Paths[path]; !ok {
			t.Errorf("spec missing path %s", path)
		}
	}
	for _, schema := range []string{"StagedItem", "Approval", "SchemeContent"} {
		if _, ok := spec.Components.Schemas[schema]; !ok {
			t.Errorf("spec missing schema %s", schema)
		}
	}
}
