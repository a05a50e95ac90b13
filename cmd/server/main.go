// Command server runs the KisaanSeva API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/JaimeStill/kisaanseva/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("kisaanseva exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return errors.Join(fmt.Errorf("start server: %w", err), srv.Shutdown(cfg.ShutdownTimeoutDuration()))
	}

	<-ctx.Done()
	stopped := context.Cause(ctx)
	srv.logger.Info("stop requested", "cause", stopped)

	if err := srv.Shutdown(cfg.ShutdownTimeoutDuration()); err != nil {
		return err
	}
	srv.logger.Info("kisaanseva stopped")
	return nil
}
