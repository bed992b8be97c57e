package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-chat/backend/internal/grpcserver"
	"stock-chat/backend/pkg/config"
	"stock-chat/backend/pkg/di"
	"stock-chat/backend/pkg/logger"
	"stock-chat/backend/pkg/observability"
	"stock-chat/backend/pkg/router"
	"stock-chat/backend/pkg/secrets"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	if err := run(cfg, log); err != nil {
		log.LogError(err, "Server stopped with error")
		os.Exit(1)
	}
	log.Info("Server exited gracefully")
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting stock chat backend",
		"env", cfg.Server.Env,
		"driver", cfg.Database.Driver,
		"port", cfg.Server.Port,
	)

	vault, err := secrets.NewVaultManager(secrets.ConfigFromApp(cfg), log)
	if err != nil {
		return err
	}
	defer vault.Close()
	if err := secrets.Resolve(ctx, vault, cfg, log); err != nil {
		return err
	}

	if cfg.Observability.TracingEnabled {
		shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName, nil)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(flushCtx)
		}()
	}

	metrics, err := observability.SetupMetrics(cfg.Observability.ServiceName)
	if err != nil {
		return err
	}
	defer func() { _ = metrics.Shutdown(context.Background()) }()

	container, err := di.New(ctx, cfg, log)
	if err != nil {
		return err
	}

	container.Health.Start(ctx)
	go container.Sessions.Run(ctx)

	r := router.New(container, metrics.Handler())
	r.SetupRoutes()
	defer r.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: cfg.Server.Timeout,
	}
	grpcSrv := grpcserver.New(container.Health, log)

	errCh := make(chan error, 2)
	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := grpcSrv.ListenAndServe(cfg.Server.GRPCPort); err != nil {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case serveErr = <-errCh:
		log.LogError(serveErr, "Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// hijacked WebSocket connections are not covered by Shutdown; the
	// container drains them
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	grpcSrv.Stop(shutdownCtx)
	if err := container.Close(shutdownCtx); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	return serveErr
}
