package services

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"rainfall-platform/internal/models"
	"rainfall-platform/internal/repository"
	"rainfall-platform/internal/tabular"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

const kindMetadata = "metadata"

// MetadataImporter upserts stations, and the provinces and regencies they
// reference, from a metadata upload.
type MetadataImporter struct {
	repo    repository.RainfallRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   clockwork.Clock
}

// NewMetadataImporter creates a new metadata importer
func NewMetadataImporter(repo repository.RainfallRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, clock clockwork.Clock) *MetadataImporter {
	return &MetadataImporter{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clock,
	}
}

// Import parses an uploaded metadata file and imports it as one transaction
func (m *MetadataImporter) Import(ctx context.Context, sess Session, filename string, data []byte) (*models.UploadResult, error) {
	ctx = sess.bind(ctx)
	if err := sess.authorize(); err != nil {
		m.metrics.RecordIngestionError(errorType(err))
		return nil, err
	}

	table, err := tabular.Load(filename, data)
	if err != nil {
		return nil, m.fail(ctx, filename, err)
	}
	records, err := table.MetadataRecords()
	if err != nil {
		return nil, m.fail(ctx, filename, err)
	}

	summary, err := m.ImportRecords(ctx, sess, records)
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Imported %d stations (%d new, %d updated)",
		summary.StationsCreated+summary.StationsUpdated, summary.StationsCreated, summary.StationsUpdated)
	if n := len(summary.SkippedRows); n > 0 {
		msg += fmt.Sprintf("; %d rows skipped", n)
	}

	return &models.UploadResult{
		Status:  models.StatusSuccess,
		Message: msg,
		Data:    summary,
	}, nil
}

// ImportRecords imports already-resolved metadata rows. Rows with an empty
// code or name, or with non-numeric coordinates, are skipped and reported;
// any storage failure rolls back every row of the upload.
func (m *MetadataImporter) ImportRecords(ctx context.Context, sess Session, records []models.StationMetadataRecord) (*models.MetadataSummary, error) {
	ctx = sess.bind(ctx)
	if err := sess.authorize(); err != nil {
		m.metrics.RecordIngestionError(errorType(err))
		return nil, err
	}

	timer := m.metrics.NewTimer(m.metrics.IngestionDuration.WithLabelValues(kindMetadata))
	m.logger.Info(ctx, "[METADATA_IMPORT_START] Starting station metadata import", logging.Fields{
		"rows":  len(records),
		"actor": sess.Actor,
		"stage": "INITIALIZATION",
	})

	now := m.clock.Now().UTC()
	var summary *models.MetadataSummary

	err := m.repo.WithinTx(ctx, func(ctx context.Context, tx repository.TxRepository) error {
		summary = &models.MetadataSummary{Rows: len(records), SkippedRows: []models.SkippedRow{}}
		resolver := NewDimensionResolver(tx)

		for _, rec := range records {
			code := strings.TrimSpace(rec.Code)
			if reason := identityReason(rec); reason != "" {
				summary.SkippedRows = append(summary.SkippedRows, models.SkippedRow{
					Line: rec.Line, Code: code, Reason: reason,
				})
				continue
			}

			provinceID, regencyID, err := resolver.Resolve(ctx, rec.Province, rec.Regency)
			if err != nil {
				return err
			}

			station, rowErr := buildStation(rec, now)
			if rowErr != nil {
				summary.SkippedRows = append(summary.SkippedRows, models.SkippedRow{
					Line: rec.Line, Code: code, Reason: rowErr.Reason,
				})
				m.logger.Debug(ctx, "[METADATA_ROW_SKIPPED] Row skipped", logging.Fields{
					"line":   rec.Line,
					"code":   code,
					"reason": rowErr.Message,
				})
				continue
			}
			station.ProvinceID = provinceID
			station.RegencyID = regencyID

			inserted, err := tx.UpsertStation(ctx, station)
			if err != nil {
				return err
			}
			if inserted {
				summary.StationsCreated++
			} else {
				summary.StationsUpdated++
			}
		}
		return nil
	})
	duration := timer.ObserveDuration()

	if err != nil {
		m.metrics.RecordIngestionError(errorType(err))
		m.logger.Error(ctx, "[METADATA_IMPORT_ERROR] Import rolled back", logging.Fields{
			"rows":  len(records),
			"stage": "PERSISTENCE",
		}, err)
		return nil, err
	}

	stored := summary.StationsCreated + summary.StationsUpdated
	m.metrics.RecordIngestionRows(kindMetadata, "stored", stored)
	for _, skipped := range summary.SkippedRows {
		m.metrics.RecordIngestionRows(kindMetadata, skipped.Reason, 1)
	}

	m.logger.Info(ctx, "[METADATA_IMPORT_COMPLETE] Station metadata imported", logging.Fields{
		"rows":             summary.Rows,
		"stations_created": summary.StationsCreated,
		"stations_updated": summary.StationsUpdated,
		"skipped_rows":     len(summary.SkippedRows),
		"duration_ms":      duration.Milliseconds(),
		"stage":            "COMPLETE",
	})

	return summary, nil
}

func (m *MetadataImporter) fail(ctx context.Context, filename string, err error) error {
	m.metrics.RecordIngestionError(errorType(err))
	m.logger.Warn(ctx, "[METADATA_IMPORT_REJECTED] Upload rejected", logging.Fields{
		"filename": filename,
		"error":    err.Error(),
	})
	return err
}

// PreviewMetadata applies the row checks of ImportRecords without a store and
// returns how many rows would be written and which would be skipped.
func PreviewMetadata(records []models.StationMetadataRecord) (int, []models.SkippedRow) {
	accepted := 0
	skipped := []models.SkippedRow{}
	for _, rec := range records {
		code := strings.TrimSpace(rec.Code)
		if reason := identityReason(rec); reason != "" {
			skipped = append(skipped, models.SkippedRow{Line: rec.Line, Code: code, Reason: reason})
			continue
		}
		if _, rowErr := buildStation(rec, time.Time{}); rowErr != nil {
			skipped = append(skipped, models.SkippedRow{Line: rec.Line, Code: code, Reason: rowErr.Reason})
			continue
		}
		accepted++
	}
	return accepted, skipped
}

// identityReason names the missing key of a row, or returns "" when both the
// code and the name are present.
func identityReason(rec models.StationMetadataRecord) string {
	switch {
	case strings.TrimSpace(rec.Code) == "":
		return models.ReasonMissingCode
	case strings.TrimSpace(rec.Name) == "":
		return models.ReasonMissingName
	default:
		return ""
	}
}

// buildStation converts the station attributes of one row. Coordinates must
// parse; elevation falls back to nil.
func buildStation(rec models.StationMetadataRecord, now time.Time) (*models.Station, *models.RowValidationError) {
	lat, ok := parseDecimal(rec.Latitude)
	if !ok {
		return nil, &models.RowValidationError{
			Line: rec.Line, Field: "latitude", Value: rec.Latitude, Reason: models.ReasonInvalidCoordinates,
			Message: "latitude is not a number",
		}
	}
	lon, ok := parseDecimal(rec.Longitude)
	if !ok {
		return nil, &models.RowValidationError{
			Line: rec.Line, Field: "longitude", Value: rec.Longitude, Reason: models.ReasonInvalidCoordinates,
			Message: "longitude is not a number",
		}
	}

	// elevation_m is an INTEGER column; anything it cannot hold is stored as null.
	var elevation *int
	if v, ok := parseDecimal(rec.Elevation); ok {
		if t := math.Trunc(v); t >= math.MinInt32 && t <= math.MaxInt32 {
			e := int(t)
			elevation = &e
		}
	}

	return &models.Station{
		Code:          strings.TrimSpace(rec.Code),
		Name:          strings.TrimSpace(rec.Name),
		OperatingUnit: optionalString(rec.OperatingUnit),
		SubDistrict:   optionalString(rec.SubDistrict),
		Latitude:      lat,
		Longitude:     lon,
		ElevationM:    elevation,
		UpdatedAt:     now,
	}, nil
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
