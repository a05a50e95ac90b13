package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/JaimeStill/kisaanseva/internal/config"
	"github.com/JaimeStill/kisaanseva/pkg/formatting"
	"github.com/JaimeStill/kisaanseva/pkg/lifecycle"
)

type httpServer struct {
	srv   *http.Server
	log   *slog.Logger
	drain time.Duration
}

func newHTTPServer(cfg *config.ServerConfig, handler http.Handler, logger *slog.Logger) *httpServer {
	log := logger.With("system", "http")
	return &httpServer{
		srv: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeoutDuration(),
			ReadHeaderTimeout: cfg.ReadHeaderTimeoutDuration(),
			WriteTimeout:      cfg.WriteTimeoutDuration(),
			IdleTimeout:       cfg.IdleTimeoutDuration(),
			MaxHeaderBytes:    cfg.MaxHeaderBytes(),
			ErrorLog:          slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		},
		log:   log,
		drain: cfg.ShutdownTimeoutDuration(),
	}
}

// Start binds the port before returning so a taken address fails startup.
// Requests are served until the coordinator shuts down, when in-flight
// requests get the drain window before connections are cut.
func (s *httpServer) Start(lc *lifecycle.Coordinator) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}

	s.log.Info("server listening",
		"addr", ln.Addr().String(),
		"max_header", formatting.ByteSize(s.srv.MaxHeaderBytes),
	)

	go func() {
		if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server stopped unexpectedly", "error", err)
		}
	}()

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		s.stop()
	})

	return nil
}

func (s *httpServer) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()

	began := time.Now()
	err := s.srv.Shutdown(ctx)
	if err == nil {
		s.log.Info("server drained", "elapsed", time.Since(began).Round(time.Millisecond))
		return
	}

	s.log.Warn("drain window elapsed, closing open connections", "error", err)
	if err := s.srv.Close(); err != nil {
		s.log.Error("server close failed", "error", err)
	}
}
