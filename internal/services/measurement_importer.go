package services

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"rainfall-platform/internal/models"
	"rainfall-platform/internal/repository"
	"rainfall-platform/internal/tabular"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

const kindMeasurements = "measurements"

// MeasurementImporter stores rainfall time-series uploads
type MeasurementImporter struct {
	repo       repository.RainfallRepository
	normalizer *MeasurementNormalizer
	logger     *logging.StructuredLogger
	metrics    *metrics.Collector
	clock      clockwork.Clock
}

// NewMeasurementImporter creates a new measurement importer
func NewMeasurementImporter(repo repository.RainfallRepository, normalizer *MeasurementNormalizer, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, clock clockwork.Clock) *MeasurementImporter {
	return &MeasurementImporter{
		repo:       repo,
		normalizer: normalizer,
		logger:     logger,
		metrics:    metricsCollector,
		clock:      clock,
	}
}

// MeasurementOutcome is the result of ImportRecords
type MeasurementOutcome struct {
	Summary                *models.MeasurementSummary
	UnresolvedStationNames []string
}

// Import parses an uploaded time-series file and stores it as one transaction
func (m *MeasurementImporter) Import(ctx context.Context, sess Session, filename string, data []byte) (*models.UploadResult, error) {
	ctx = sess.bind(ctx)
	if err := sess.authorize(); err != nil {
		m.metrics.RecordIngestionError(errorType(err))
		return nil, err
	}

	table, err := tabular.Load(filename, data)
	if err != nil {
		return nil, m.fail(ctx, filename, err)
	}
	records, err := table.MeasurementRecords()
	if err != nil {
		return nil, m.fail(ctx, filename, err)
	}

	outcome, err := m.ImportRecords(ctx, sess, records)
	if err != nil {
		return nil, err
	}

	return outcome.Result(), nil
}

// Result renders the outcome as an upload payload. A success with unresolved
// names is reported as partial.
func (o *MeasurementOutcome) Result() *models.UploadResult {
	s := o.Summary
	msg := fmt.Sprintf("All %d rainfall rows imported", s.Stored)
	if dropped := s.DroppedTotal(); dropped > 0 || len(o.UnresolvedStationNames) > 0 {
		msg = fmt.Sprintf("Imported %d of %d rainfall rows; %d rows dropped", s.Stored, s.Rows, dropped)
	}
	if n := len(o.UnresolvedStationNames); n > 0 {
		msg += fmt.Sprintf("; %d station names not found", n)
	}

	return &models.UploadResult{
		Status:                 models.StatusSuccess,
		Message:                msg,
		Data:                   s,
		UnresolvedStationNames: o.UnresolvedStationNames,
	}
}

type measurementKey struct {
	stationID int64
	day       string
}

// ImportRecords normalizes, matches and upserts already-resolved rows. Row
// drops and unknown stations never fail the upload; a storage failure rolls
// back all of it.
func (m *MeasurementImporter) ImportRecords(ctx context.Context, sess Session, records []models.RawMeasurementRecord) (*MeasurementOutcome, error) {
	ctx = sess.bind(ctx)
	if err := sess.authorize(); err != nil {
		m.metrics.RecordIngestionError(errorType(err))
		return nil, err
	}

	timer := m.metrics.NewTimer(m.metrics.IngestionDuration.WithLabelValues(kindMeasurements))
	m.logger.Info(ctx, "[MEASUREMENT_IMPORT_START] Starting rainfall import", logging.Fields{
		"rows":  len(records),
		"actor": sess.Actor,
		"stage": "INITIALIZATION",
	})

	normalized, dropped, err := m.normalizer.NormalizeAll(ctx, records)
	if err != nil {
		m.metrics.RecordIngestionError(errorType(err))
		return nil, err
	}

	droppedByReason := make(map[string]int)
	for _, d := range dropped {
		droppedByReason[d.Reason]++
	}

	ingestedAt := m.clock.Now().UTC()
	var outcome *MeasurementOutcome

	err = m.repo.WithinTx(ctx, func(ctx context.Context, tx repository.TxRepository) error {
		summary := &models.MeasurementSummary{Rows: len(records), Dropped: make(map[string]int, len(droppedByReason)+1)}
		for reason, n := range droppedByReason {
			summary.Dropped[reason] = n
		}

		index, err := tx.StationNameIndex(ctx)
		if err != nil {
			return err
		}
		matcher := NewStationMatcher(index)

		rows := make([]models.Measurement, 0, len(normalized))
		positions := make(map[measurementKey]int, len(normalized))
		for _, n := range normalized {
			stationID, ok := matcher.Match(n.StationName)
			if !ok {
				summary.Dropped[models.ReasonUnresolvedStation]++
				continue
			}

			value := n.ValueMM
			row := models.Measurement{
				StationID:  stationID,
				Date:       n.Date,
				ValueMM:    &value,
				SourceTag:  models.SourceTagFileUpload,
				IngestedAt: ingestedAt,
			}

			key := measurementKey{stationID: stationID, day: n.Date.Format(models.DateLayout)}
			if pos, seen := positions[key]; seen {
				rows[pos] = row
				summary.DuplicatesCollapsed++
				continue
			}
			positions[key] = len(rows)
			rows = append(rows, row)
		}

		stored, err := tx.UpsertMeasurements(ctx, rows)
		if err != nil {
			return err
		}
		summary.Stored = stored

		outcome = &MeasurementOutcome{Summary: summary, UnresolvedStationNames: matcher.Unresolved()}
		return nil
	})
	duration := timer.ObserveDuration()

	if err != nil {
		m.metrics.RecordIngestionError(errorType(err))
		m.logger.Error(ctx, "[MEASUREMENT_IMPORT_ERROR] Import rolled back", logging.Fields{
			"rows":  len(records),
			"stage": "PERSISTENCE",
		}, err)
		return nil, err
	}

	s := outcome.Summary
	m.metrics.RecordIngestionRows(kindMeasurements, "stored", s.Stored)
	for reason, n := range s.Dropped {
		m.metrics.RecordIngestionRows(kindMeasurements, reason, n)
	}
	m.metrics.UnresolvedStations.Add(float64(len(outcome.UnresolvedStationNames)))

	m.logger.Info(ctx, "[MEASUREMENT_IMPORT_COMPLETE] Rainfall rows imported", logging.Fields{
		"rows":                 s.Rows,
		"stored":               s.Stored,
		"dropped":              s.DroppedTotal(),
		"duplicates_collapsed": s.DuplicatesCollapsed,
		"unresolved_stations":  len(outcome.UnresolvedStationNames),
		"duration_ms":          duration.Milliseconds(),
		"stage":                "COMPLETE",
	})

	return outcome, nil
}

func (m *MeasurementImporter) fail(ctx context.Context, filename string, err error) error {
	m.metrics.RecordIngestionError(errorType(err))
	m.logger.Warn(ctx, "[MEASUREMENT_IMPORT_REJECTED] Upload rejected", logging.Fields{
		"filename": filename,
		"error":    err.Error(),
	})
	return err
}
