// Package api assembles the API module with all domain systems and route registration.
package api

import (
	"net/http"

	"github.com/JaimeStill/kisaanseva/internal/config"
	"github.com/JaimeStill/kisaanseva/internal/infrastructure"
	"github.com/JaimeStill/kisaanseva/pkg/middleware"
	"github.com/JaimeStill/kisaanseva/pkg/module"
)

// NewModule creates the API module with all domain handlers and middleware,
// and schedules the domain's background jobs on the infrastructure lifecycle.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(cfg, runtime)

	mux := http.NewServeMux()
	if err := registerRoutes(mux, domain, cfg, runtime); err != nil {
		return nil, err
	}

	domain.Start(runtime.Lifecycle, runtime)

	maxBody := cfg.API.MaxBodySizeBytes()

	// Logger and Metrics sit directly above the mux so they observe the
	// matched route pattern.
	m := module.New(cfg.API.BasePath, mux)
	m.Use(
		middleware.RequestID(),
		middleware.Recover(runtime.Logger),
		middleware.CORS(&cfg.API.CORS),
		func(next http.Handler) http.Handler {
			return http.MaxBytesHandler(next, maxBody)
		},
		middleware.Logger(runtime.Logger),
		middleware.Metrics(),
	)

	return m, nil
}
