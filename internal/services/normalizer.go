package services

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"rainfall-platform/internal/models"
)

// Reserved codes the source sheets use for "not measured".
const (
	sentinelMissing = 8888
	sentinelInvalid = 9999
)

// MeasurementNormalizer coerces raw time-series rows into dated, valid
// rainfall values.
type MeasurementNormalizer struct {
	workers int
}

// NewMeasurementNormalizer creates a normalizer that fans rows out over workers goroutines
func NewMeasurementNormalizer(workers int) *MeasurementNormalizer {
	if workers < 1 {
		workers = 1
	}
	return &MeasurementNormalizer{workers: workers}
}

// Normalize applies the coercion rules to one row, in order: station name
// presence, date, number, sentinel codes, sign. A dropped row comes back as
// a *models.RowValidationError naming the reason.
func (n *MeasurementNormalizer) Normalize(rec models.RawMeasurementRecord) (models.NormalizedMeasurement, error) {
	name := strings.TrimSpace(rec.StationName)
	if name == "" {
		return models.NormalizedMeasurement{}, &models.RowValidationError{
			Line: rec.Line, Field: "station_name", Reason: models.ReasonMissingStation,
			Message: "station name is empty",
		}
	}

	date, ok := parseDate(rec.Date, rec.Date1904)
	if !ok {
		return models.NormalizedMeasurement{}, &models.RowValidationError{
			Line: rec.Line, Field: "date", Value: rec.Date, Reason: models.ReasonInvalidDate,
			Message: "date is not recognised: " + rec.Date,
		}
	}

	value, ok := parseDecimal(rec.Value)
	if !ok {
		return models.NormalizedMeasurement{}, &models.RowValidationError{
			Line: rec.Line, Field: "value", Value: rec.Value, Reason: models.ReasonInvalidValue,
			Message: "rainfall value is not a number: " + rec.Value,
		}
	}

	switch {
	case value == sentinelMissing || value == sentinelInvalid:
		return models.NormalizedMeasurement{}, &models.RowValidationError{
			Line: rec.Line, Field: "value", Value: rec.Value, Reason: models.ReasonSentinelValue,
			Message: "rainfall value is a missing-data code",
		}
	case value < 0:
		return models.NormalizedMeasurement{}, &models.RowValidationError{
			Line: rec.Line, Field: "value", Value: rec.Value, Reason: models.ReasonNegativeValue,
			Message: "rainfall value is negative",
		}
	}

	return models.NormalizedMeasurement{
		Line:        rec.Line,
		StationName: name,
		Date:        date,
		ValueMM:     value,
	}, nil
}

type normalizeOutcome struct {
	row models.NormalizedMeasurement
	err error
}

// NormalizeAll normalizes every record concurrently and returns the kept rows
// and the drops, both in input order.
func (n *MeasurementNormalizer) NormalizeAll(ctx context.Context, records []models.RawMeasurementRecord) ([]models.NormalizedMeasurement, []*models.RowValidationError, error) {
	outcomes := make([]normalizeOutcome, len(records))

	chunk := (len(records) + n.workers - 1) / n.workers
	if chunk == 0 {
		chunk = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(records); start += chunk {
		end := start + chunk
		if end > len(records) {
			end = len(records)
		}
		lo, hi := start, end
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return err
				}
				row, err := n.Normalize(records[i])
				outcomes[i] = normalizeOutcome{row: row, err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	kept := make([]models.NormalizedMeasurement, 0, len(records))
	var dropped []*models.RowValidationError
	for _, o := range outcomes {
		if o.err != nil {
			dropped = append(dropped, o.err.(*models.RowValidationError))
			continue
		}
		kept = append(kept, o.row)
	}
	return kept, dropped, nil
}
