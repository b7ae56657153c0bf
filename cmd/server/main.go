// Command server exposes split sessions over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maauso/dropthemike/internal/bootstrap"
	"github.com/maauso/dropthemike/internal/config"
	"github.com/maauso/dropthemike/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("dropthemike server starting", slog.Any("config", cfg))

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer deps.Close()

	handlers := server.NewHandlers(deps.SplitService, deps.Storage, logger,
		server.WithDefaults(cfg.DefaultParts, cfg.Quality()),
	)
	routerCfg := server.DefaultConfig()
	routerCfg.Metrics = deps.Recorder.Handler()
	router := server.NewRouter(handlers, logger, routerCfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads of long recordings stream for a while.
		ReadTimeout:  30 * time.Minute,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown requested")
	}

	return shutdown(srv, deps, logger)
}

// shutdown drains HTTP traffic first, then cancels splits still running.
func shutdown(srv *http.Server, deps *bootstrap.Dependencies, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := deps.SplitService.Shutdown(ctx); err != nil {
		return fmt.Errorf("stop running splits: %w", err)
	}
	logger.Info("stopped")
	return nil
}
