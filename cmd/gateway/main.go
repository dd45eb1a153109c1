// Package main is the entry point for the edge gateway.
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
	"github.com/perfect8/shopgw/internal/gateway"
	"github.com/perfect8/shopgw/internal/health"
	"github.com/perfect8/shopgw/internal/observability"
	"github.com/perfect8/shopgw/internal/secrets"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadConfig(flags.configPath, logger)
	run(cfg, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("SHOPGW_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("SHOPGW_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("SHOPGW_LOG_FORMAT", "json"),
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

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("shopgw gateway version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadConfig loads the configuration and resolves Vault-held secrets.
// Any failure here, including a short signing secret, is fatal before the
// listener opens.
func loadConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting shopgw gateway",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	path, err := config.ResolveConfigPath(configPath)
	if err != nil {
		logger.Fatal("failed to resolve configuration path", observability.Error(err))
	}

	cfg, err := config.LoadGatewayConfig(path)
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

		secret, err := source.TokenSecret(ctx)
		if err != nil {
			logger.Fatal("failed to read signing secret from vault", observability.Error(err))
		}
		cfg.Token.Secret = secret

		// Re-validate with the resolved secret.
		if err := cfg.Validate(); err != nil {
			logger.Fatal("invalid configuration", observability.Error(err))
		}
	}

	return cfg
}

// run assembles the gateway and serves until a shutdown signal.
func run(cfg *config.GatewayConfig, configPath string, logger observability.Logger) {
	tracer, err := observability.NewTracer(cfg.Observability.Tracing)
	if err != nil {
		logger.Fatal("failed to initialize tracing", observability.Error(err))
	}

	metrics := gateway.NewMetrics("gateway")

	gw, err := gateway.New(cfg,
		gateway.WithGatewayLogger(logger),
		gateway.WithGatewayMetrics(metrics),
		gateway.WithGatewayTracer(tracer),
	)
	if err != nil {
		logger.Fatal("failed to initialize gateway", observability.Error(err))
	}

	checker := health.NewChecker(version)
	for _, b := range cfg.Backends {
		checker.AddCheck(health.NewHTTPCheck(b.Name, b.URL+"/health/live", 3*time.Second))
	}

	metricsServer := startMetricsServer(cfg, checker, logger)

	// The identity configuration is read once; a changed file on disk
	// takes effect only after a restart, so the watcher just says so.
	watcher, err := config.NewWatcher(configPath, func(path string) {
		logger.Warn("configuration changed on disk, restart required to apply",
			observability.String("path", path),
		)
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Warn("config watcher unavailable", observability.Error(err))
	} else if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("gateway failed", observability.Error(err))
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", observability.String("signal", sig.String()))
	}

	checker.SetDraining(true)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}
	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", observability.Error(err))
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	if tracer != nil {
		_ = tracer.Shutdown(shutdownCtx)
	}

	logger.Info("gateway stopped")
}

// startMetricsServer serves /metrics and the health endpoints on the
// metrics port.
func startMetricsServer(cfg *config.GatewayConfig, checker *health.Checker, logger observability.Logger) *http.Server {
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

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
