package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"rainfall-platform/internal/config"
	"rainfall-platform/migrations"
	"rainfall-platform/pkg/database"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	steps := flag.Int("steps", 0, "Apply N migrations (negative reverts N); overrides -direction")
	force := flag.Int("force", -1, "Mark VERSION as applied and clean, then exit")
	showVersion := flag.Bool("version", false, "Print the applied schema version and exit")
	verbose := flag.Bool("verbose", false, "Log every migration statement")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("rainfall-migrate", "1.0.0", logging.ParseLevel(cfg.Logging.Level))
	defer logger.Sync()
	ctx := context.Background()

	db, err := database.NewPostgresDB(cfg.PostgresConfig(), logger, metrics.NewCollector("rainfall_migrate"))
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, migrations.FS, logger, *verbose)
	if err != nil {
		logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to prepare migrations", logging.Fields{}, err)
	}
	defer migrator.Close()

	switch {
	case *showVersion:
		version, dirty, err := migrator.Version()
		if err != nil {
			logger.Fatal(ctx, "[MIGRATE_ERROR] Failed to read schema version", logging.Fields{}, err)
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return
	case *force >= 0:
		err = migrator.Force(*force)
	case *steps != 0:
		err = migrator.Steps(*steps)
	case *direction == "up":
		err = migrator.Up()
	case *direction == "down":
		err = migrator.Down()
	default:
		fmt.Fprintf(os.Stderr, "Unknown direction %q, expected up or down\n", *direction)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migration completed successfully")
}
