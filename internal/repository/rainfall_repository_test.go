package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainfall-platform/internal/models"
	"rainfall-platform/pkg/database"
	"rainfall-platform/pkg/logging"
	"rainfall-platform/pkg/metrics"
)

type fixture struct {
	repo    *rainfallRepository
	mock    sqlmock.Sqlmock
	metrics *metrics.Collector
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := logging.NewNopLogger()
	collector := metrics.NewCollectorWithRegistry("test", prometheus.NewRegistry())
	db := database.NewPostgresDBFromSQLX(sqlx.NewDb(sqlDB, "postgres"), nil, logger, collector)

	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	repo := NewRainfallRepository(db, logger, collector, opts).(*rainfallRepository)
	return &fixture{repo: repo, mock: mock, metrics: collector}
}

func q(s string) string { return regexp.QuoteMeta(s) }

func TestWithinTx_CommitsOnSuccess(t *testing.T) {
	f := newFixture(t, Options{})

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(q("INSERT INTO provinces")).
		WithArgs("Jawa Barat").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	f.mock.ExpectQuery(q("INSERT INTO regencies")).
		WithArgs(int64(7), "Bandung").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	f.mock.ExpectCommit()

	var provinceID, regencyID int64
	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var err error
		if provinceID, err = tx.UpsertProvince(ctx, "Jawa Barat"); err != nil {
			return err
		}
		regencyID, err = tx.UpsertRegency(ctx, provinceID, "Bandung")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), provinceID)
	assert.Equal(t, int64(12), regencyID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWithinTx_RetriesSerializationFailure(t *testing.T) {
	f := newFixture(t, Options{MaxTxAttempts: 3})

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(q("INSERT INTO provinces")).
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
	f.mock.ExpectRollback()
	f.mock.ExpectBegin()
	f.mock.ExpectQuery(q("INSERT INTO provinces")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	f.mock.ExpectCommit()

	attempts := 0
	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		attempts++
		_, err := tx.UpsertProvince(ctx, "Aceh")
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DBTxRetriesTotal))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWithinTx_GivesUpAfterMaxAttempts(t *testing.T) {
	f := newFixture(t, Options{MaxTxAttempts: 2})

	for i := 0; i < 2; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectQuery(q("INSERT INTO stations")).
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
		f.mock.ExpectRollback()
	}

	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := tx.UpsertStation(ctx, &models.Station{Code: "P1", Name: "Alpha"})
		return err
	})

	var pe *models.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "23505", pe.SQLState)
	assert.Equal(t, "station upsert", pe.Op)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DBTxRetriesTotal))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWithinTx_DoesNotRetryPermanentErrors(t *testing.T) {
	f := newFixture(t, Options{MaxTxAttempts: 3})

	f.mock.ExpectBegin()
	f.mock.ExpectExec(q("INSERT INTO measurements")).
		WillReturnError(&pq.Error{Code: "23503", Message: "foreign key violation"})
	f.mock.ExpectRollback()

	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := tx.UpsertMeasurements(ctx, []models.Measurement{{StationID: 99, Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}})
		return err
	})

	var pe *models.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.IsTransient())
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.DBTxRetriesTotal))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWithinTx_RollsBackOnCallerError(t *testing.T) {
	f := newFixture(t, Options{})
	sentinel := errors.New("stop here")

	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWithinTx_CommitFailureIsPersistenceError(t *testing.T) {
	f := newFixture(t, Options{})

	f.mock.ExpectBegin()
	f.mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		return nil
	})

	var pe *models.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "commit transaction", pe.Op)
}

func TestUpsertStation_ReportsInsertOrUpdate(t *testing.T) {
	f := newFixture(t, Options{})
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	provinceID := int64(7)
	elevation := 662

	station := &models.Station{
		Code:       "P001",
		Name:       "Stasiun Alpha",
		ProvinceID: &provinceID,
		Latitude:   -6.98,
		Longitude:  107.62,
		ElevationM: &elevation,
		UpdatedAt:  now,
	}

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(q("ON CONFLICT (code) DO UPDATE SET")).
		WithArgs("P001", "Stasiun Alpha", nil, nil, int64(7), nil, -6.98, 107.62, int64(662), now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(11), true))
	f.mock.ExpectQuery(q("ST_SetSRID(ST_MakePoint(")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "inserted"}).AddRow(int64(11), false))
	f.mock.ExpectCommit()

	var first, second bool
	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var err error
		if first, err = tx.UpsertStation(ctx, station); err != nil {
			return err
		}
		second, err = tx.UpsertStation(ctx, station)
		return err
	})

	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, second)
	assert.Equal(t, int64(11), station.ID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestStationNameIndex_LowestIDWins(t *testing.T) {
	f := newFixture(t, Options{})

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(q("SELECT lower(name) AS name_key, id")).
		WillReturnRows(sqlmock.NewRows([]string{"name_key", "id"}).
			AddRow("stasiun alpha", int64(3)).
			AddRow("beta", int64(4)).
			AddRow("stasiun alpha", int64(5)))
	f.mock.ExpectCommit()

	var index map[string]int64
	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var err error
		index, err = tx.StationNameIndex(ctx)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"stasiun alpha": 3, "beta": 4}, index)
}

func TestUpsertMeasurements_PagesByBatchSize(t *testing.T) {
	f := newFixture(t, Options{BatchSize: 2})
	ingested := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	v := 12.0

	rows := make([]models.Measurement, 5)
	for i := range rows {
		rows[i] = models.Measurement{
			StationID:  1,
			Date:       time.Date(2024, 3, i+1, 0, 0, 0, 0, time.UTC),
			ValueMM:    &v,
			SourceTag:  models.SourceTagFileUpload,
			IngestedAt: ingested,
		}
	}

	f.mock.ExpectBegin()
	f.mock.ExpectExec(q("INSERT INTO measurements")).WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectExec(q("INSERT INTO measurements")).WillReturnResult(sqlmock.NewResult(0, 2))
	f.mock.ExpectExec(q("INSERT INTO measurements")).
		WithArgs(int64(1), "2024-03-05", 12.0, models.SourceTagFileUpload, ingested).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectCommit()

	var written int
	err := f.repo.WithinTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		var err error
		written, err = tx.UpsertMeasurements(ctx, rows)
		return err
	})

	require.NoError(t, err)
	assert.Equal(t, 5, written)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBuildMeasurementUpsert(t *testing.T) {
	v := 4.5
	ingested := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	page := []models.Measurement{
		{StationID: 1, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ValueMM: &v, SourceTag: "t", IngestedAt: ingested},
		{StationID: 2, Date: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), ValueMM: nil, SourceTag: "t", IngestedAt: ingested},
	}

	query, args := buildMeasurementUpsert(page)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO measurements"))
	assert.Contains(t, query, "$10")
	assert.NotContains(t, query, "$11")
	assert.Contains(t, query, "ON CONFLICT (station_id, date) DO UPDATE SET")
	assert.Contains(t, query, "ingested_at = EXCLUDED.ingested_at")
	require.Len(t, args, 10)
	assert.Equal(t, "2024-03-01", args[1])
	assert.Equal(t, int64(2), args[5])
}

func TestFindStationByName(t *testing.T) {
	f := newFixture(t, Options{})
	now := time.Now().UTC()

	f.mock.ExpectQuery(q("WHERE lower(name) = lower($1)")).
		WithArgs("STASIUN ALPHA").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "name", "operating_unit", "sub_district", "province_id", "regency_id",
			"latitude", "longitude", "elevation_m", "created_at", "updated_at",
		}).AddRow(int64(3), "P001", "Stasiun Alpha", nil, nil, nil, nil, -6.9, 107.6, nil, now, now))

	station, err := f.repo.FindStationByName(context.Background(), "STASIUN ALPHA")
	require.NoError(t, err)
	assert.Equal(t, int64(3), station.ID)
	assert.Nil(t, station.RegencyID)

	f.mock.ExpectQuery(q("WHERE lower(name) = lower($1)")).
		WithArgs("Nowhere").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = f.repo.FindStationByName(context.Background(), "Nowhere")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "station", nf.Resource)
}

func TestGetStationDetail_NotFound(t *testing.T) {
	f := newFixture(t, Options{})

	f.mock.ExpectQuery(q("LEFT JOIN provinces p")).
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := f.repo.GetStationDetail(context.Background(), 404)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "404", nf.ID)
}

func TestSeriesQueries(t *testing.T) {
	f := newFixture(t, Options{})
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	f.mock.ExpectQuery(q("date_trunc('month', date)::date AS month")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"month", "total_mm"}).AddRow(jan, 15.5).AddRow(feb, 3.0))

	monthly, err := f.repo.MonthlySeries(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, monthly, 2)
	assert.Equal(t, 15.5, monthly[0].TotalMM)
	assert.True(t, monthly[1].Month.Equal(feb))

	f.mock.ExpectQuery(q("SELECT date, value_mm")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"date", "value_mm"}))

	daily, err := f.repo.DailySeries(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, daily)
}

func TestLatestPerStation(t *testing.T) {
	f := newFixture(t, Options{})
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f.mock.ExpectQuery(q("WITH latest AS")).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "name", "latitude", "longitude", "regency_name", "sub_district", "latest_date", "latest_value_mm",
		}).
			AddRow(int64(1), "P001", "Alpha", -6.9, 107.6, "Bandung", nil, d, 4.0).
			AddRow(int64(2), "P002", "Beta", -6.8, 107.7, nil, nil, nil, nil))

	rows, err := f.repo.LatestPerStation(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NotNil(t, rows[0].LatestValueMM)
	assert.Equal(t, 4.0, *rows[0].LatestValueMM)
	assert.Equal(t, "2024-01-01", *rows[0].LatestDateString())
	assert.Nil(t, rows[1].LatestDate)
	assert.Nil(t, rows[1].LatestValueMM)
}
