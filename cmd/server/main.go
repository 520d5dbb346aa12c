package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/wa-assistant/internal/background"
	"github.com/lexiqai/wa-assistant/internal/bridge"
	"github.com/lexiqai/wa-assistant/internal/config"
	"github.com/lexiqai/wa-assistant/internal/observability"
	"github.com/lexiqai/wa-assistant/internal/runtime"
	"github.com/lexiqai/wa-assistant/internal/settings"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("transcription_provider", cfg.TranscriptionProvider).
		Str("settings_file", cfg.SettingsFile).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Assistant server starting")

	router, breakers, keys, err := background.Setup(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up background router")
	}
	logger.Info().Str("source", keys.Source()).Msg("OpenAI key lookup configured")

	mux := http.NewServeMux()

	// Runtime messages from content-side agents
	mux.Handle(runtime.Path, router)

	// Bridge relay between the content side and the page side of each page
	mux.Handle("/bridge", bridge.NewHub())

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	keyCheck := func(ctx context.Context) (bool, error) {
		if cfg.TranscriptionProvider == config.ProviderDeepgram {
			return true, nil
		}
		if !keys.Configured() {
			return false, settings.ErrNoAPIKey
		}
		return true, nil
	}

	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"api_key":   keyCheck,
		"providers": breakers.Check,
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// No write timeout: transcriptions and bridge websockets outlive any fixed budget,
	// the router bounds its own requests
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("runtime", fmt.Sprintf("http://localhost:%s%s", cfg.Port, runtime.Path)).
			Str("bridge", fmt.Sprintf("ws://localhost:%s/bridge", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
