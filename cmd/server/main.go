package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"penguinapi/config"
	"penguinapi/db"
	phttp "penguinapi/http"
	"penguinapi/logging"
	"penguinapi/ml"
	"penguinapi/monitoring"
)

func main() {
	configPath := pflag.String("config", "", "path to YAML config file")
	pflag.Parse()

	// 1. Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Load model in the background; the server reports "loading" until done
	lifecycle := ml.NewLifecycle()
	loader := ml.NewLoader(ml.LoaderConfig{
		ModelPath:   cfg.Model.Path,
		InfoPath:    cfg.Model.InfoPath,
		WaitTimeout: cfg.Model.WaitTimeout,
	}, logger)
	go func() {
		if err := lifecycle.Load(ctx, loader); err != nil {
			logger.Error("model failed to load, serving in degraded mode",
				zap.String("path", cfg.Model.Path),
				zap.Error(err),
			)
		}
	}()

	metrics := monitoring.NewMetrics(func() float64 { return float64(lifecycle.State()) })

	hub := monitoring.NewHub(logger)
	go hub.Run(ctx)

	api := phttp.API{
		Service:   phttp.ServiceInfo{Name: cfg.Service.Name, Version: cfg.Service.Version},
		Lifecycle: lifecycle,
		Metrics:   metrics,
		Feed:      hub,
	}

	// 3. Optional prediction audit log
	var audit *db.AuditLog
	if cfg.Audit.Path != "" {
		audit, err = db.OpenAuditLog(cfg.Audit.Path, cfg.Audit.Buffer, logger)
		if err != nil {
			logger.Fatal("failed to open audit log", zap.String("path", cfg.Audit.Path), zap.Error(err))
		}
		api.Audit = audit
		logger.Info("prediction audit log enabled", zap.String("path", cfg.Audit.Path))
	}

	// 4. Start HTTP server
	server := phttp.NewServer(phttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}, phttp.NewAPI(api, logger))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 5. Handle graceful shutdown
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if audit != nil {
		if err := audit.Close(); err != nil {
			logger.Error("close audit log", zap.Error(err))
		}
	}

	logger.Info("exiting")
}
