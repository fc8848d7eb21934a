package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	logutil "github.com/edgecomet/pdfgen/internal/common/logger"
	"github.com/edgecomet/pdfgen/internal/common/metricsserver"
	"github.com/edgecomet/pdfgen/internal/render/metrics"
	"github.com/edgecomet/pdfgen/internal/render/service"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP rendering service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	initialLogger, err := logutil.NewDefaultLogger()
	if err != nil {
		return err
	}
	initialLogger.Info("Loading configuration", zap.String("path", configPath))

	cfg, err := loadConfig(configPath)
	if err != nil {
		initialLogger.Error("Failed to load configuration", zap.Error(err))
		return err
	}

	// INFO during startup even if the configured level is higher
	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create configured logger: %w", err)
	}
	logger := dynamicLogger.Logger
	defer logger.Sync()

	logger.Info("PDF service starting",
		zap.String("service", cfg.Server.ID),
		zap.String("listen", cfg.Server.Listen))
	for _, warning := range cfg.Warnings() {
		logger.Warn("Configuration warning", zap.String("detail", warning))
	}

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)
	metricsServer, err := metricsserver.Start(cfg.Metrics, metricsCollector.ServeHTTP, logger)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	svc := service.NewServer(cfg.Server.ID, metricsCollector, logger)
	serverTimeout := cfg.Render.CalculateServerTimeout()
	server := &fasthttp.Server{
		Handler:      svc.Handler(),
		ReadTimeout:  serverTimeout,
		WriteTimeout: serverTimeout,
		IdleTimeout:  serverTimeout,
		Name:         "PDFService/" + cfg.Server.ID,
	}

	// Bind before wiring so /health answers 503 while dependencies come up
	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("listen", ln.Addr().String()))
		if err := server.Serve(ln); err != nil {
			serverErrCh <- err
		}
	}()

	comps, err := buildComponents(cfg, metricsCollector, logger)
	if err != nil {
		logger.Error("Startup failed", zap.Error(err))
		_ = server.Shutdown()
		return err
	}
	defer comps.Close()

	svc.MarkReady(comps.pipeline, comps.registry)
	logger.Info("PDF service ready",
		zap.String("service", cfg.Server.ID),
		zap.Strings("templates", comps.registry.Templates()),
		zap.Duration("server_timeout", serverTimeout))

	dynamicLogger.SwitchToConfiguredLevel()

	select {
	case <-ctx.Done():
		dynamicLogger.EnsureInfoLevelForShutdown()
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		dynamicLogger.EnsureInfoLevelForShutdown()
		logger.Error("Server error", zap.Error(err))
	}

	logger.Info("Shutting down gracefully...")

	if metricsServer != nil {
		metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
		metricsCancel()
	}

	// in-flight renders finish and release their locks
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	logger.Info("PDF service stopped")
	return nil
}
