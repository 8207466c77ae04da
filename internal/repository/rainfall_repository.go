package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"rainfall-platform/internal/models"
	"rainfall-platform/pkg/database"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

// RainfallRepository provides data access for stations and their measurements
type RainfallRepository interface {
	// WithinTx runs fn inside one READ COMMITTED transaction. fn is re-run from
	// scratch when Postgres reports a serialization failure, a deadlock or a
	// uniqueness conflict, so it must not carry state between attempts.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error

	// Station lookups
	FindStationByName(ctx context.Context, name string) (*models.Station, error)
	GetStationDetail(ctx context.Context, id int64) (*models.StationDetail, error)

	// Aggregations
	DailySeries(ctx context.Context, stationID int64) ([]models.DailyRainfall, error)
	MonthlySeries(ctx context.Context, stationID int64) ([]models.MonthlyRainfall, error)
	LatestPerStation(ctx context.Context) ([]models.StationLatest, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// TxRepository is the write surface available inside WithinTx
type TxRepository interface {
	UpsertProvince(ctx context.Context, name string) (int64, error)
	UpsertRegency(ctx context.Context, provinceID int64, name string) (int64, error)
	// UpsertStation inserts or fully overwrites the station with the same code,
	// sets s.ID and reports whether a new row was created.
	UpsertStation(ctx context.Context, s *models.Station) (bool, error)
	// StationNameIndex maps lower(name) to station id. When names collide the
	// lowest id wins.
	StationNameIndex(ctx context.Context) (map[string]int64, error)
	// UpsertMeasurements writes rows keyed on (station_id, date), replacing
	// value, source tag and ingestion time on conflict.
	UpsertMeasurements(ctx context.Context, rows []models.Measurement) (int, error)
}

// Options tunes transaction retries and statement paging
type Options struct {
	MaxTxAttempts int
	BatchSize     int
	RetryBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxTxAttempts <= 0 {
		o.MaxTxAttempts = 3
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 50 * time.Millisecond
	}
	return o
}

// rainfallRepository implements RainfallRepository
type rainfallRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	opts    Options
}

// NewRainfallRepository creates a new rainfall repository
func NewRainfallRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, opts Options) RainfallRepository {
	return &rainfallRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
		opts:    opts.withDefaults(),
	}
}

// WithinTx runs fn in a transaction with bounded retry
func (r *rainfallRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	backoff := r.opts.RetryBackoff

	for attempt := 1; ; attempt++ {
		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}

		var pe *models.PersistenceError
		if !errors.As(err, &pe) || !pe.IsTransient() || attempt >= r.opts.MaxTxAttempts {
			return err
		}

		r.metrics.DBTxRetriesTotal.Inc()
		r.logger.Warn(ctx, "[REPO_TX_RETRY] Retrying transaction after conflict", logging.Fields{
			"attempt":    attempt,
			"sqlstate":   pe.SQLState,
			"operation":  pe.Op,
			"backoff_ms": backoff.Milliseconds(),
		})

		select {
		case <-ctx.Done():
			return fmt.Errorf("transaction retry aborted: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (r *rainfallRepository) runTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return newPersistenceError("begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				r.logger.Error(ctx, "[REPO_TX_ROLLBACK_ERROR] Rollback failed", logging.Fields{}, rbErr)
			}
		}
	}()

	if err = fn(ctx, &txRepository{tx: tx, logger: r.logger, metrics: r.metrics, batchSize: r.opts.BatchSize}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return newPersistenceError("commit transaction", err)
	}
	return nil
}

// FindStationByName resolves a station by exact case-insensitive name
func (r *rainfallRepository) FindStationByName(ctx context.Context, name string) (*models.Station, error) {
	query := `
		SELECT id, code, name, operating_unit, sub_district, province_id, regency_id,
		       latitude, longitude, elevation_m, created_at, updated_at
		FROM stations
		WHERE lower(name) = lower($1)
		ORDER BY id
		LIMIT 1
	`

	var station models.Station
	err := r.db.GetContext(ctx, "find_station_by_name", &station, query, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "station", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find station: %w", err)
	}

	return &station, nil
}

// GetStationDetail retrieves a station with its province and regency names
func (r *rainfallRepository) GetStationDetail(ctx context.Context, id int64) (*models.StationDetail, error) {
	query := `
		SELECT s.id, s.code, s.name, s.operating_unit, s.sub_district, s.province_id, s.regency_id,
		       s.latitude, s.longitude, s.elevation_m, s.created_at, s.updated_at,
		       p.name AS province_name, r.name AS regency_name
		FROM stations s
		LEFT JOIN provinces p ON p.id = s.province_id
		LEFT JOIN regencies r ON r.id = s.regency_id
		WHERE s.id = $1
	`

	var detail models.StationDetail
	err := r.db.GetContext(ctx, "get_station_detail", &detail, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{Resource: "station", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get station: %w", err)
	}

	return &detail, nil
}

// DailySeries returns every non-null daily value of a station by ascending date
func (r *rainfallRepository) DailySeries(ctx context.Context, stationID int64) ([]models.DailyRainfall, error) {
	query := `
		SELECT date, value_mm
		FROM measurements
		WHERE station_id = $1
		  AND value_mm IS NOT NULL
		ORDER BY date ASC
	`

	var series []models.DailyRainfall
	if err := r.db.SelectContext(ctx, "daily_series", &series, query, stationID); err != nil {
		return nil, fmt.Errorf("failed to get daily series: %w", err)
	}

	return series, nil
}

// MonthlySeries sums non-null daily values per calendar month. Months without
// any value are absent rather than zero.
func (r *rainfallRepository) MonthlySeries(ctx context.Context, stationID int64) ([]models.MonthlyRainfall, error) {
	query := `
		SELECT date_trunc('month', date)::date AS month,
		       SUM(value_mm) AS total_mm
		FROM measurements
		WHERE station_id = $1
		  AND value_mm IS NOT NULL
		GROUP BY 1
		ORDER BY 1 ASC
	`

	var series []models.MonthlyRainfall
	if err := r.db.SelectContext(ctx, "monthly_series", &series, query, stationID); err != nil {
		return nil, fmt.Errorf("failed to get monthly series: %w", err)
	}

	return series, nil
}

// LatestPerStation returns every station with its most recent non-null
// observation, ordered by regency name (stations without one last) then name.
func (r *rainfallRepository) LatestPerStation(ctx context.Context) ([]models.StationLatest, error) {
	query := `
		WITH latest AS (
			SELECT station_id, MAX(date) AS latest_date
			FROM measurements
			WHERE value_mm IS NOT NULL
			GROUP BY station_id
		)
		SELECT s.id, s.code, s.name, s.latitude, s.longitude,
		       rg.name AS regency_name, s.sub_district,
		       l.latest_date, m.value_mm AS latest_value_mm
		FROM stations s
		LEFT JOIN regencies rg ON rg.id = s.regency_id
		LEFT JOIN latest l ON l.station_id = s.id
		LEFT JOIN measurements m ON m.station_id = l.station_id AND m.date = l.latest_date
		ORDER BY rg.name ASC NULLS LAST, s.name ASC, s.id ASC
	`

	var rows []models.StationLatest
	if err := r.db.SelectContext(ctx, "latest_per_station", &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list latest observations: %w", err)
	}

	return rows, nil
}

// HealthCheck performs a repository health check
func (r *rainfallRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// sqlState extracts the Postgres SQLSTATE carried by err, if any.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func newPersistenceError(op string, err error) error {
	return &models.PersistenceError{Op: op, SQLState: sqlState(err), Err: err}
}

// NotFoundError represents a resource not found error
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
