package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rainfall-platform/internal/config"
	"rainfall-platform/internal/handlers"
	"rainfall-platform/internal/repository"
	"rainfall-platform/internal/services"
	"rainfall-platform/pkg/database"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("rainfall-api", version, logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting rainfall platform API server", logging.Fields{
		"version":          version,
		"server_host":      cfg.Server.Host,
		"server_port":      cfg.Server.Port,
		"db_host":          cfg.Database.Host,
		"db_name":          cfg.Database.Database,
		"db_url_set":       cfg.Database.URL != "",
		"uploads_enabled":  cfg.Auth.BearerToken != "",
		"ingest_batch":     cfg.Ingest.BatchSize,
		"ingest_workers":   cfg.Ingest.Workers,
		"max_upload_bytes": cfg.Ingest.MaxUploadBytes,
	})

	if cfg.Auth.BearerToken == "" {
		logger.Warn(ctx, "[STARTUP_AUTH] API_BEARER_TOKEN is empty; uploads will be refused", logging.Fields{})
	}

	metricsCollector := metrics.NewCollector("rainfall_platform")

	db, err := database.NewPostgresDB(cfg.PostgresConfig(), logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	rainfallRepo := repository.NewRainfallRepository(db, logger, metricsCollector, repository.Options{
		MaxTxAttempts: cfg.Ingest.MaxTxAttempts,
		BatchSize:     cfg.Ingest.BatchSize,
	})

	clock := clockwork.NewRealClock()
	metadataImporter := services.NewMetadataImporter(rainfallRepo, logger, metricsCollector, clock)
	measurementImporter := services.NewMeasurementImporter(rainfallRepo, services.NewMeasurementNormalizer(cfg.Ingest.Workers), logger, metricsCollector, clock)
	aggregationService := services.NewAggregationService(rainfallRepo, logger, metricsCollector)

	rainfallHandler := handlers.NewRainfallHandler(
		metadataImporter,
		measurementImporter,
		aggregationService,
		handlers.NewAuthenticator(cfg.Auth.BearerToken),
		cfg.Ingest.MaxUploadBytes,
		logger,
		metricsCollector,
	)

	router := mux.NewRouter()
	router.Use(handlers.RequestMiddleware(logger, metricsCollector))
	rainfallHandler.RegisterRoutes(router)

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
