package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/config"
	"github.com/JaimeStill/kisaanseva/internal/infrastructure"
)

// Server ties the HTTP listener to the infrastructure lifecycle.
type Server struct {
	infra  *infrastructure.Infrastructure
	http   *httpServer
	logger *slog.Logger
}

func NewServer(cfg *config.Config) (*Server, error) {
	infra, err := infrastructure.New(cfg)
	if err != nil {
		return nil, err
	}

	modules, err := NewModules(infra, cfg)
	if err != nil {
		return nil, fmt.Errorf("build modules: %w", err)
	}

	router := buildRouter(infra)
	modules.Mount(router)

	logger := infra.Logger.With("version", cfg.Version, "env", cfg.Env())
	logger.Info("kisaanseva initialized",
		"addr", cfg.Server.Addr(),
		"base_path", cfg.API.BasePath,
		"blob_storage", cfg.Storage.Enabled(),
		"redis", cfg.Redis.Enabled(),
		"kafka", cfg.Events.Enabled(),
	)

	return &Server{
		infra:  infra,
		http:   newHTTPServer(&cfg.Server, router, infra.Logger),
		logger: logger,
	}, nil
}

// Start registers the infrastructure hooks and binds the listener. Readiness
// flips once every startup hook has returned.
func (s *Server) Start() error {
	if err := s.infra.Start(); err != nil {
		return err
	}
	if err := s.http.Start(s.infra.Lifecycle); err != nil {
		return err
	}

	go func() {
		began := time.Now()
		s.infra.Lifecycle.WaitForStartup()
		s.logger.Info("startup complete", "elapsed", time.Since(began).Round(time.Millisecond))
	}()

	return nil
}

func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info("shutting down", "timeout", timeout)
	return s.infra.Lifecycle.Shutdown(timeout)
}
