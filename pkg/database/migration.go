package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"rainfall-platform/pkg/logging"
)

// migrationLogger routes golang-migrate output through the structured logger
type migrationLogger struct {
	logger  *logging.StructuredLogger
	verbose bool
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.logger.Info(context.Background(), "[MIGRATE] "+strings.TrimSpace(fmt.Sprintf(format, v...)), logging.Fields{})
}

func (l migrationLogger) Verbose() bool {
	return l.verbose
}

// Migrator applies the embedded schema migrations
type Migrator struct {
	m      *migrate.Migrate
	logger *logging.StructuredLogger
}

// NewMigrator reads NNNNNN_name.{up,down}.sql files from source and binds
// them to db.
func NewMigrator(db *PostgresDB, source fs.FS, logger *logging.StructuredLogger, verbose bool) (*Migrator, error) {
	src, err := iofs.New(source, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB().DB, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrationLogger{logger: logger, verbose: verbose}

	return &Migrator{m: m, logger: logger}, nil
}

// Up applies every pending migration
func (mg *Migrator) Up() error {
	return mg.run("up", mg.m.Up)
}

// Down reverts every applied migration
func (mg *Migrator) Down() error {
	return mg.run("down", mg.m.Down)
}

// Steps applies n migrations forward, or reverts -n when n is negative
func (mg *Migrator) Steps(n int) error {
	return mg.run(fmt.Sprintf("steps %d", n), func() error { return mg.m.Steps(n) })
}

// Force marks version as applied and clean without running it
func (mg *Migrator) Force(version int) error {
	return mg.m.Force(version)
}

// Version returns the applied version, 0 when none is.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the source and the database lock
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (mg *Migrator) run(op string, fn func() error) error {
	ctx := context.Background()
	start := time.Now()

	err := fn()
	if errors.Is(err, migrate.ErrNoChange) {
		mg.logger.Info(ctx, "[MIGRATE_NO_CHANGE] No migrations to apply", logging.Fields{"op": op})
		return nil
	}
	if err != nil {
		version, dirty, _ := mg.Version()
		mg.logger.Error(ctx, "[MIGRATE_ERROR] Migration failed", logging.Fields{
			"op":      op,
			"version": version,
			"dirty":   dirty,
		}, err)
		return err
	}

	version, _, _ := mg.Version()
	mg.logger.Info(ctx, "[MIGRATE_COMPLETE] Migrations applied", logging.Fields{
		"op":          op,
		"version":     version,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
