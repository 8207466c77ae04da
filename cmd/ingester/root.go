package main

import (
	"context"
	"fmt"
	"os"
	"os/user"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"rainfall-platform/internal/config"
	"rainfall-platform/internal/repository"
	"rainfall-platform/internal/services"
	"rainfall-platform/pkg/database"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

const version = "1.0.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "rainfall-ingester",
		Short:   "Load rain-gauge station metadata and daily rainfall files",
		Version: version,
		Long: `Imports station metadata and daily rainfall spreadsheets (CSV, TSV or .xlsx)
into the rainfall database, using the same rules as the upload API.`,
		Example: `  # Register or update stations
  $ rainfall-ingester metadata pos_hujan.xlsx

  # Load a month of rainfall
  $ rainfall-ingester measurements ch_2024_01.csv

  # Check a file without touching the database
  $ rainfall-ingester validate ch_2024_01.csv --kind measurements`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newImportCmd(kindMetadata))
	root.AddCommand(newImportCmd(kindMeasurements))
	root.AddCommand(newValidateCmd())
	return root
}

// runtime holds what the importing commands share
type runtime struct {
	logger       *logging.StructuredLogger
	db           *database.PostgresDB
	metadata     *services.MetadataImporter
	measurements *services.MeasurementImporter
	session      services.Session
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewStructuredLogger("rainfall-ingester", version, logging.ParseLevel(cfg.Logging.Level))
	metricsCollector := metrics.NewCollector("rainfall_ingester")

	db, err := database.NewPostgresDB(cfg.PostgresConfig(), logger, metricsCollector)
	if err != nil {
		logger.Error(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
		return nil, err
	}

	repo := repository.NewRainfallRepository(db, logger, metricsCollector, repository.Options{
		MaxTxAttempts: cfg.Ingest.MaxTxAttempts,
		BatchSize:     cfg.Ingest.BatchSize,
	})
	clock := clockwork.NewRealClock()

	return &runtime{
		logger:       logger,
		db:           db,
		metadata:     services.NewMetadataImporter(repo, logger, metricsCollector, clock),
		measurements: services.NewMeasurementImporter(repo, services.NewMeasurementNormalizer(cfg.Ingest.Workers), logger, metricsCollector, clock),
		// The CLI runs with database credentials and is trusted as an operator.
		session: services.NewSession(operatorName(), true),
	}, nil
}

func (r *runtime) Close() {
	r.db.Close()
	r.logger.Sync()
}

func operatorName() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return "cli:" + u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return "cli:" + name
	}
	return "cli"
}
