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

	"github.com/rs/zerolog"

	"github.com/fileevent-populator/internal/api"
	"github.com/fileevent-populator/internal/config"
	"github.com/fileevent-populator/internal/logging"
	"github.com/fileevent-populator/internal/metrics"
	"github.com/fileevent-populator/internal/runner"
	"github.com/fileevent-populator/internal/store"
)

const appName = "fileevent-populator"

// Exit codes
const (
	exitOK           = 0
	exitRecordFailed = 1
	exitSetupFailed  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	dataFileType := flag.String("dataFileType", "", "Configuration section naming the data file type to process")
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	serve := flag.Bool("serve", false, "Serve the read-only events API instead of running")
	flag.Parse()

	bootLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if *dataFileType == "" && !*serve {
		bootLogger.Error().Msg("-dataFileType is required")
		flag.Usage()
		return exitSetupFailed
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error().Err(err).Str("config", *configPath).Msg("Failed to load configuration")
		return exitSetupFailed
	}

	logCtx, err := logging.New(cfg.Logging, appName)
	if err != nil {
		bootLogger.Error().Err(err).Msg("Failed to initialize logging")
		return exitSetupFailed
	}
	defer logCtx.Close()

	logger := logCtx.Logger
	if path := logCtx.FilePath(); path != "" {
		logger.Info().Str("log_file", path).Msg("Logging to file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *serve {
		return serveAPI(ctx, cfg, logger)
	}
	return publish(ctx, cfg, *dataFileType, logger)
}

func publish(ctx context.Context, cfg *config.Config, dataFileType string, logger zerolog.Logger) int {
	r := runner.New(cfg, runner.Options{Logger: logger, Metrics: metrics.New()})

	summary, err := r.Run(ctx, dataFileType)
	if err != nil {
		if runner.IsSetupError(err) {
			logger.Error().Err(err).Msg("Run setup failed")
		} else {
			logger.Error().Err(err).Msg("Run failed")
		}
		return exitSetupFailed
	}

	if summary.Result.Failed > 0 {
		logger.Warn().Int("failed", summary.Result.Failed).Msg("Some file events could not be published")
		return exitRecordFailed
	}
	return exitOK
}

func serveAPI(ctx context.Context, cfg *config.Config, logger zerolog.Logger) int {
	gateway, err := store.Open(store.Options{
		Driver:       cfg.SQL.Driver,
		DSN:          cfg.SQL.DataSourceName(),
		Table:        cfg.SQL.EventTable,
		TemplatePath: cfg.SQL.InsertTemplateFilePath,
		Logger:       logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to open event store")
		return exitSetupFailed
	}
	defer gateway.Close()

	server := api.NewServer(cfg.Server, gateway, metrics.New().WithProcessCollectors(), logger)

	// Setup graceful shutdown
	go func() {
		<-ctx.Done()
		logger.Info().Msg("Shutdown signal received, stopping server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error during server shutdown")
		}
	}()

	logger.Info().Str("addr", fmt.Sprintf("http://%s", server.Addr)).Msg("Starting API server")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("Server error")
		return exitSetupFailed
	}

	logger.Info().Msg("API server stopped")
	return exitOK
}
