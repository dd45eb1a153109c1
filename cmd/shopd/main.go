// Package main is the entry point for a downstream shop service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/perfect8/shopgw/internal/config"
	"github.com/perfect8/shopgw/internal/health"
	"github.com/perfect8/shopgw/internal/observability"
	"github.com/perfect8/shopgw/internal/secrets"
	"github.com/perfect8/shopgw/internal/service"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Printf("shopd version %s\n", version)
		fmt.Printf("  Build time: %s\n", buildTime)
		fmt.Printf("  Git commit: %s\n", gitCommit)
		return
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	observability.SetGlobalLogger(logger)

	cfg := loadConfig(flags.configPath, logger)
	run(cfg, logger)
}

func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("SHOPD_CONFIG_PATH", "configs/shopd.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("SHOPD_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("SHOPD_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// loadConfig loads the configuration and resolves Vault-held service keys.
func loadConfig(configPath string, logger observability.Logger) *config.ServiceConfig {
	logger.Info("starting shopd",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	path, err := config.ResolveConfigPath(configPath)
	if err != nil {
		logger.Fatal("failed to resolve configuration path", observability.Error(err))
	}

	cfg, err := config.LoadServiceConfig(path)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if cfg.Vault.Enabled {
		source, err := secrets.NewVaultSource(cfg.Vault, secrets.WithSourceLogger(logger))
		if err != nil {
			logger.Fatal("failed to create vault source", observability.Error(err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		keys, err := source.ServiceKeys(ctx)
		if err != nil {
			logger.Fatal("failed to read service keys from vault", observability.Error(err))
		}
		cfg.ServiceKeys = keys

		if err := cfg.Validate(); err != nil {
			logger.Fatal("invalid configuration", observability.Error(err))
		}
	}

	return cfg
}

func run(cfg *config.ServiceConfig, logger observability.Logger) {
	metrics := service.NewMetrics(cfg.ServiceName)

	srv, err := service.New(cfg,
		service.WithServerLogger(logger),
		service.WithServerMetrics(metrics),
	)
	if err != nil {
		logger.Fatal("failed to initialize service", observability.Error(err))
	}

	checker := health.NewChecker(version)
	metricsServer := startMetricsServer(cfg, checker, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("service failed", observability.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", observability.String("signal", sig.String()))
	}

	checker.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", observability.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("service stopped")
}

// startMetricsServer serves /metrics and the health endpoints on the
// metrics port.
func startMetricsServer(cfg *config.ServiceConfig, checker *health.Checker, logger observability.Logger) *http.Server {
	if !cfg.Observability.Metrics.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())
	mux.Handle("/health/", checker.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Observability.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", observability.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", observability.Error(err))
		}
	}()

	return server
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
