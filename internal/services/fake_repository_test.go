package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"rainfall-platform/internal/models"
	"rainfall-platform/internal/repository"
)

type fakeRegencyKey struct {
	provinceID int64
	name       string
}

type fakeMeasurementKey struct {
	stationID int64
	day       string
}

type fakeState struct {
	nextID       int64
	provinces    map[string]int64
	regencies    map[fakeRegencyKey]int64
	regencyNames map[int64]string
	stations     map[string]*models.Station
	measurements map[fakeMeasurementKey]models.Measurement
}

func (s *fakeState) clone() *fakeState {
	c := &fakeState{
		nextID:       s.nextID,
		provinces:    make(map[string]int64, len(s.provinces)),
		regencies:    make(map[fakeRegencyKey]int64, len(s.regencies)),
		regencyNames: make(map[int64]string, len(s.regencyNames)),
		stations:     make(map[string]*models.Station, len(s.stations)),
		measurements: make(map[fakeMeasurementKey]models.Measurement, len(s.measurements)),
	}
	for k, v := range s.provinces {
		c.provinces[k] = v
	}
	for k, v := range s.regencies {
		c.regencies[k] = v
	}
	for k, v := range s.regencyNames {
		c.regencyNames[k] = v
	}
	for k, v := range s.stations {
		st := *v
		c.stations[k] = &st
	}
	for k, v := range s.measurements {
		c.measurements[k] = v
	}
	return c
}

// fakeRepository is an in-memory store enforcing the same natural keys as the
// schema. A failing transaction restores the state it started from.
type fakeRepository struct {
	mu    sync.Mutex
	state *fakeState

	// failMeasurementsWith, when set, is returned by UpsertMeasurements.
	failMeasurementsWith error
	// failStationAfter fails UpsertStation once this many stations were written.
	failStationAfter int

	provinceCalls int
	regencyCalls  int
	stationWrites int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		state: &fakeState{
			provinces:    map[string]int64{},
			regencies:    map[fakeRegencyKey]int64{},
			regencyNames: map[int64]string{},
			stations:     map[string]*models.Station{},
			measurements: map[fakeMeasurementKey]models.Measurement{},
		},
		failStationAfter: -1,
	}
}

func (f *fakeRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.TxRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	snapshot := f.state.clone()
	if err := fn(ctx, &fakeTx{f: f}); err != nil {
		f.state = snapshot
		return err
	}
	return nil
}

type fakeTx struct {
	f *fakeRepository
}

func (t *fakeTx) UpsertProvince(ctx context.Context, name string) (int64, error) {
	s := t.f.state
	t.f.provinceCalls++
	if id, ok := s.provinces[name]; ok {
		return id, nil
	}
	s.nextID++
	s.provinces[name] = s.nextID
	return s.nextID, nil
}

func (t *fakeTx) UpsertRegency(ctx context.Context, provinceID int64, name string) (int64, error) {
	s := t.f.state
	t.f.regencyCalls++
	key := fakeRegencyKey{provinceID, name}
	if id, ok := s.regencies[key]; ok {
		return id, nil
	}
	s.nextID++
	s.regencies[key] = s.nextID
	s.regencyNames[s.nextID] = name
	return s.nextID, nil
}

func (t *fakeTx) UpsertStation(ctx context.Context, st *models.Station) (bool, error) {
	if t.f.failStationAfter >= 0 && t.f.stationWrites >= t.f.failStationAfter {
		return false, &models.PersistenceError{Op: "station upsert", SQLState: "23503", Err: fmt.Errorf("foreign key violation")}
	}
	t.f.stationWrites++

	s := t.f.state
	if existing, ok := s.stations[st.Code]; ok {
		st.ID = existing.ID
		st.CreatedAt = existing.CreatedAt
		cp := *st
		s.stations[st.Code] = &cp
		return false, nil
	}
	s.nextID++
	st.ID = s.nextID
	st.CreatedAt = st.UpdatedAt
	cp := *st
	s.stations[st.Code] = &cp
	return true, nil
}

func (t *fakeTx) StationNameIndex(ctx context.Context) (map[string]int64, error) {
	index := map[string]int64{}
	for _, st := range t.f.state.stations {
		key := strings.ToLower(st.Name)
		if id, ok := index[key]; !ok || st.ID < id {
			index[key] = st.ID
		}
	}
	return index, nil
}

func (t *fakeTx) UpsertMeasurements(ctx context.Context, rows []models.Measurement) (int, error) {
	if t.f.failMeasurementsWith != nil {
		return 0, t.f.failMeasurementsWith
	}
	seen := map[fakeMeasurementKey]bool{}
	for _, m := range rows {
		key := fakeMeasurementKey{m.StationID, m.Date.Format(models.DateLayout)}
		if seen[key] {
			return 0, &models.PersistenceError{Op: "measurement upsert", SQLState: "21000", Err: fmt.Errorf("ON CONFLICT DO UPDATE command cannot affect row a second time")}
		}
		seen[key] = true
		t.f.state.measurements[key] = m
	}
	return len(rows), nil
}

func (f *fakeRepository) stationByID(id int64) *models.Station {
	for _, st := range f.state.stations {
		if st.ID == id {
			return st
		}
	}
	return nil
}

func (f *fakeRepository) FindStationByName(ctx context.Context, name string) (*models.Station, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var best *models.Station
	for _, st := range f.state.stations {
		if strings.EqualFold(st.Name, name) && (best == nil || st.ID < best.ID) {
			best = st
		}
	}
	if best == nil {
		return nil, &repository.NotFoundError{Resource: "station", ID: name}
	}
	cp := *best
	return &cp, nil
}

func (f *fakeRepository) GetStationDetail(ctx context.Context, id int64) (*models.StationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.stationByID(id)
	if st == nil {
		return nil, &repository.NotFoundError{Resource: "station", ID: fmt.Sprint(id)}
	}
	detail := &models.StationDetail{Station: *st}
	if st.RegencyID != nil {
		name := f.state.regencyNames[*st.RegencyID]
		detail.RegencyName = &name
	}
	return detail, nil
}

func (f *fakeRepository) valued(stationID int64) []models.Measurement {
	var out []models.Measurement
	for _, m := range f.state.measurements {
		if m.StationID == stationID && m.ValueMM != nil {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (f *fakeRepository) DailySeries(ctx context.Context, stationID int64) ([]models.DailyRainfall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.DailyRainfall
	for _, m := range f.valued(stationID) {
		out = append(out, models.DailyRainfall{Date: m.Date, ValueMM: *m.ValueMM})
	}
	return out, nil
}

func (f *fakeRepository) MonthlySeries(ctx context.Context, stationID int64) ([]models.MonthlyRainfall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.MonthlyRainfall
	for _, m := range f.valued(stationID) {
		month := time.Date(m.Date.Year(), m.Date.Month(), 1, 0, 0, 0, 0, time.UTC)
		if n := len(out); n > 0 && out[n-1].Month.Equal(month) {
			out[n-1].TotalMM += *m.ValueMM
			continue
		}
		out = append(out, models.MonthlyRainfall{Month: month, TotalMM: *m.ValueMM})
	}
	return out, nil
}

func (f *fakeRepository) LatestPerStation(ctx context.Context) ([]models.StationLatest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []models.StationLatest
	for _, st := range f.state.stations {
		row := models.StationLatest{ID: st.ID, Code: st.Code, Name: st.Name, Latitude: st.Latitude, Longitude: st.Longitude, SubDistrict: st.SubDistrict}
		if st.RegencyID != nil {
			name := f.state.regencyNames[*st.RegencyID]
			row.RegencyName = &name
		}
		if vals := f.valued(st.ID); len(vals) > 0 {
			last := vals[len(vals)-1]
			d, v := last.Date, *last.ValueMM
			row.LatestDate, row.LatestValueMM = &d, &v
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].RegencyName, out[j].RegencyName
		if (ri == nil) != (rj == nil) {
			return rj == nil
		}
		if ri != nil && *ri != *rj {
			return *ri < *rj
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (f *fakeRepository) HealthCheck(ctx context.Context) error { return nil }

func (f *fakeRepository) stationCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.state.stations)
}

func (f *fakeRepository) station(code string) *models.Station {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.stations[code]
}

func (f *fakeRepository) measurement(stationID int64, day string) (models.Measurement, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.state.measurements[fakeMeasurementKey{stationID, day}]
	return m, ok
}

func (f *fakeRepository) measurementCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.state.measurements)
}
