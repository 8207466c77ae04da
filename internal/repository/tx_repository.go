package repository

import (
	"context"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"rainfall-platform/internal/models"
	"rainfall-platform/pkg/database"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

const (
	upsertProvinceSQL = `
		INSERT INTO provinces (name)
		VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`

	upsertRegencySQL = `
		INSERT INTO regencies (province_id, name)
		VALUES ($1, $2)
		ON CONFLICT (province_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`

	// xmax is zero only on a freshly inserted tuple.
	upsertStationSQL = `
		INSERT INTO stations (
			code, name, operating_unit, sub_district, province_id, regency_id,
			latitude, longitude, elevation_m, location, created_at, updated_at
		)
		VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, ST_SetSRID(ST_MakePoint($8::double precision, $7::double precision), 4326), $10, $10
		)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			operating_unit = EXCLUDED.operating_unit,
			sub_district = EXCLUDED.sub_district,
			province_id = EXCLUDED.province_id,
			regency_id = EXCLUDED.regency_id,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			elevation_m = EXCLUDED.elevation_m,
			location = EXCLUDED.location,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted
	`

	stationNameIndexSQL = `
		SELECT lower(name) AS name_key, id
		FROM stations
		ORDER BY id ASC
	`

	measurementConflictSQL = `ON CONFLICT (station_id, date) DO UPDATE SET
			value_mm = EXCLUDED.value_mm,
			source_tag = EXCLUDED.source_tag,
			ingested_at = EXCLUDED.ingested_at`
)

// txRepository implements TxRepository over one open transaction
type txRepository struct {
	tx        *database.Tx
	logger    *logging.StructuredLogger
	metrics   *metrics.Collector
	batchSize int
}

// UpsertProvince creates the province if absent and returns its id in one round trip
func (t *txRepository) UpsertProvince(ctx context.Context, name string) (int64, error) {
	var id int64
	if err := t.tx.GetContext(ctx, "upsert_province", &id, upsertProvinceSQL, name); err != nil {
		return 0, newPersistenceError("province upsert", err)
	}
	return id, nil
}

// UpsertRegency creates the regency within its province if absent and returns its id
func (t *txRepository) UpsertRegency(ctx context.Context, provinceID int64, name string) (int64, error) {
	var id int64
	if err := t.tx.GetContext(ctx, "upsert_regency", &id, upsertRegencySQL, provinceID, name); err != nil {
		return 0, newPersistenceError("regency upsert", err)
	}
	return id, nil
}

// UpsertStation inserts or overwrites a station keyed by code
func (t *txRepository) UpsertStation(ctx context.Context, s *models.Station) (bool, error) {
	var result struct {
		ID       int64 `db:"id"`
		Inserted bool  `db:"inserted"`
	}

	err := t.tx.GetContext(ctx, "upsert_station", &result, upsertStationSQL,
		s.Code,
		s.Name,
		s.OperatingUnit,
		s.SubDistrict,
		s.ProvinceID,
		s.RegencyID,
		s.Latitude,
		s.Longitude,
		s.ElevationM,
		s.UpdatedAt,
	)
	if err != nil {
		return false, newPersistenceError("station upsert", err)
	}

	s.ID = result.ID
	if result.Inserted {
		s.CreatedAt = s.UpdatedAt
	}
	return result.Inserted, nil
}

// StationNameIndex loads every station name once for matching
func (t *txRepository) StationNameIndex(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		NameKey string `db:"name_key"`
		ID      int64  `db:"id"`
	}
	if err := t.tx.SelectContext(ctx, "station_name_index", &rows, stationNameIndexSQL); err != nil {
		return nil, newPersistenceError("station name index", err)
	}

	index := make(map[string]int64, len(rows))
	for _, row := range rows {
		if _, exists := index[row.NameKey]; !exists {
			index[row.NameKey] = row.ID
		}
	}
	return index, nil
}

// UpsertMeasurements writes rows in pages of batchSize multi-row statements
func (t *txRepository) UpsertMeasurements(ctx context.Context, rows []models.Measurement) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	timer := time.Now()
	written := 0

	for start := 0; start < len(rows); start += t.batchSize {
		end := start + t.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		page := rows[start:end]

		query, args := buildMeasurementUpsert(page)
		if _, err := t.tx.ExecContext(ctx, "upsert_measurements", query, args...); err != nil {
			return written, newPersistenceError("measurement upsert", err)
		}

		t.metrics.IngestionBatchSize.Observe(float64(len(page)))
		written += len(page)
	}

	t.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Measurement upsert completed", logging.Fields{
		"count":       written,
		"duration_ms": time.Since(timer).Milliseconds(),
	})

	return written, nil
}

// buildMeasurementUpsert renders one multi-row INSERT ... ON CONFLICT. Dates
// bind as calendar-day text so no time zone conversion can shift them.
func buildMeasurementUpsert(page []models.Measurement) (string, []interface{}) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("measurements")
	ib.Cols("station_id", "date", "value_mm", "source_tag", "ingested_at")
	for _, m := range page {
		ib.Values(m.StationID, m.Date.Format(models.DateLayout), m.ValueMM, m.SourceTag, m.IngestedAt)
	}
	ib.SQL(measurementConflictSQL)
	return ib.Build()
}
