package services

import (
	"context"
	"strings"

	"rainfall-platform/internal/models"
	"rainfall-platform/internal/repository"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

// SeriesMode selects the granularity of a station series
type SeriesMode string

const (
	ModeDaily   SeriesMode = "daily"
	ModeMonthly SeriesMode = "monthly"
)

// ParseSeriesMode accepts the English and Indonesian names. Anything else
// falls back to daily.
func ParseSeriesMode(raw string) SeriesMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "monthly", "bulanan":
		return ModeMonthly
	default:
		return ModeDaily
	}
}

// AggregationService answers read-only rainfall queries
type AggregationService struct {
	repo    repository.RainfallRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewAggregationService creates a new aggregation service
func NewAggregationService(repo repository.RainfallRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) *AggregationService {
	return &AggregationService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// Series returns the daily or monthly series of the station named stationName
// (exact, case-insensitive). An unknown station is a *repository.NotFoundError;
// a known station without data yields an empty series.
func (a *AggregationService) Series(ctx context.Context, stationName string, mode SeriesMode) (*models.SeriesResult, error) {
	name := strings.TrimSpace(stationName)
	if name == "" {
		return nil, &repository.NotFoundError{Resource: "station", ID: stationName}
	}

	station, err := a.repo.FindStationByName(ctx, name)
	if err != nil {
		return nil, err
	}

	var points []models.SeriesPoint
	if mode == ModeMonthly {
		points, err = a.monthly(ctx, station.ID)
	} else {
		mode = ModeDaily
		points, err = a.daily(ctx, station.ID)
	}
	if err != nil {
		return nil, err
	}

	return &models.SeriesResult{
		StationID:   station.ID,
		StationName: station.Name,
		Mode:        string(mode),
		Points:      points,
	}, nil
}

// StationDetail returns a station's metadata with both of its series
func (a *AggregationService) StationDetail(ctx context.Context, id int64) (*models.StationDetailResult, error) {
	detail, err := a.repo.GetStationDetail(ctx, id)
	if err != nil {
		return nil, err
	}

	daily, err := a.daily(ctx, id)
	if err != nil {
		return nil, err
	}
	monthly, err := a.monthly(ctx, id)
	if err != nil {
		return nil, err
	}

	return &models.StationDetailResult{Station: detail, Daily: daily, Monthly: monthly}, nil
}

// LatestPerStation lists every station with its latest non-null observation
func (a *AggregationService) LatestPerStation(ctx context.Context) ([]models.StationLatest, error) {
	timer := a.metrics.NewTimer(a.metrics.AggregationDuration.WithLabelValues("latest"))
	defer timer.ObserveDuration()

	rows, err := a.repo.LatestPerStation(ctx)
	if err != nil {
		a.logger.Error(ctx, "[AGG_LATEST_ERROR] Failed to list latest observations", logging.Fields{}, err)
		return nil, err
	}
	if rows == nil {
		rows = []models.StationLatest{}
	}
	return rows, nil
}

// HealthCheck reports whether the store is reachable
func (a *AggregationService) HealthCheck(ctx context.Context) error {
	return a.repo.HealthCheck(ctx)
}

func (a *AggregationService) daily(ctx context.Context, stationID int64) ([]models.SeriesPoint, error) {
	timer := a.metrics.NewTimer(a.metrics.AggregationDuration.WithLabelValues(string(ModeDaily)))
	defer timer.ObserveDuration()

	rows, err := a.repo.DailySeries(ctx, stationID)
	if err != nil {
		return nil, err
	}

	points := make([]models.SeriesPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, models.SeriesPoint{Label: r.Date.Format(models.DateLayout), ValueMM: r.ValueMM})
	}
	return points, nil
}

func (a *AggregationService) monthly(ctx context.Context, stationID int64) ([]models.SeriesPoint, error) {
	timer := a.metrics.NewTimer(a.metrics.AggregationDuration.WithLabelValues(string(ModeMonthly)))
	defer timer.ObserveDuration()

	rows, err := a.repo.MonthlySeries(ctx, stationID)
	if err != nil {
		return nil, err
	}

	points := make([]models.SeriesPoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, models.SeriesPoint{Label: r.Month.Format(models.MonthLayout), ValueMM: r.TotalMM})
	}
	return points, nil
}
