package models

import (
	"encoding/json"
	"time"
)

// SourceTagFileUpload marks measurements that arrived through a spreadsheet/CSV upload.
const SourceTagFileUpload = "Upload Excel/CSV"

// DateLayout is the calendar-day layout used on the wire and for DATE columns.
const DateLayout = "2006-01-02"

// MonthLayout labels a monthly aggregate bucket.
const MonthLayout = "2006-01"

// Province is an administrative dimension row, unique by name.
type Province struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Regency belongs to exactly one Province; its name is unique within that province.
type Regency struct {
	ID         int64     `json:"id" db:"id"`
	ProvinceID int64     `json:"province_id" db:"province_id"`
	Name       string    `json:"name" db:"name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Station is a rainfall-monitoring point. Code is the natural key; the stored
// location point is always derived from Longitude/Latitude by the upsert.
type Station struct {
	ID            int64     `json:"id" db:"id"`
	Code          string    `json:"code" db:"code"`
	Name          string    `json:"name" db:"name"`
	OperatingUnit *string   `json:"operating_unit,omitempty" db:"operating_unit"`
	SubDistrict   *string   `json:"sub_district,omitempty" db:"sub_district"`
	ProvinceID    *int64    `json:"province_id,omitempty" db:"province_id"`
	RegencyID     *int64    `json:"regency_id,omitempty" db:"regency_id"`
	Latitude      float64   `json:"latitude" db:"latitude"`
	Longitude     float64   `json:"longitude" db:"longitude"`
	ElevationM    *int      `json:"elevation_m,omitempty" db:"elevation_m"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// StationDetail is a station joined with its administrative names.
type StationDetail struct {
	Station
	ProvinceName *string `json:"province,omitempty" db:"province_name"`
	RegencyName  *string `json:"regency,omitempty" db:"regency_name"`
}

// Measurement is one daily observation. A nil ValueMM means no valid reading.
type Measurement struct {
	StationID  int64     `json:"station_id" db:"station_id"`
	Date       time.Time `json:"date" db:"date"`
	ValueMM    *float64  `json:"value_mm,omitempty" db:"value_mm"`
	SourceTag  string    `json:"source_tag" db:"source_tag"`
	IngestedAt time.Time `json:"ingested_at" db:"ingested_at"`
}

// DailyRainfall is one point of a station's daily series.
type DailyRainfall struct {
	Date    time.Time `json:"-" db:"date"`
	ValueMM float64   `json:"ch" db:"value_mm"`
}

// MonthlyRainfall is a calendar-month sum of daily values.
type MonthlyRainfall struct {
	Month   time.Time `json:"-" db:"month"`
	TotalMM float64   `json:"ch" db:"total_mm"`
}

// StationLatest pairs a station with its most recent non-null observation.
type StationLatest struct {
	ID            int64      `json:"id" db:"id"`
	Code          string     `json:"code" db:"code"`
	Name          string     `json:"name" db:"name"`
	Latitude      float64    `json:"lat" db:"latitude"`
	Longitude     float64    `json:"lng" db:"longitude"`
	RegencyName   *string    `json:"regency" db:"regency_name"`
	SubDistrict   *string    `json:"sub_district" db:"sub_district"`
	LatestDate    *time.Time `json:"-" db:"latest_date"`
	LatestValueMM *float64   `json:"latest_value_mm" db:"latest_value_mm"`
}

// LatestDateString formats LatestDate, or returns nil when the station has no data.
func (s StationLatest) LatestDateString() *string {
	if s.LatestDate == nil {
		return nil
	}
	v := s.LatestDate.Format(DateLayout)
	return &v
}

// MarshalJSON writes latest_date as YYYY-MM-DD, or null.
func (s StationLatest) MarshalJSON() ([]byte, error) {
	type plain StationLatest
	return json.Marshal(struct {
		plain
		LatestDate *string `json:"latest_date"`
	}{plain: plain(s), LatestDate: s.LatestDateString()})
}

// StationMetadataRecord is one metadata upload row after column resolution,
// still as raw text.
type StationMetadataRecord struct {
	Line          int
	Code          string
	Name          string
	OperatingUnit string
	Province      string
	Regency       string
	SubDistrict   string
	Latitude      string
	Longitude     string
	Elevation     string
}

// RawMeasurementRecord is one time-series upload row after column resolution.
type RawMeasurementRecord struct {
	Line        int
	StationName string
	Date        string
	Value       string
	// Date1904 marks rows from a workbook whose day serials count from 1904.
	Date1904 bool
}

// NormalizedMeasurement is a row that survived date/value coercion and sentinel
// rejection but has not yet been matched to a station.
type NormalizedMeasurement struct {
	Line        int
	StationName string
	Date        time.Time
	ValueMM     float64
}

// DateOnlyUTC truncates t to midnight UTC of its calendar day.
func DateOnlyUTC(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
