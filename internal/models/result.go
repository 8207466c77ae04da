package models

import "sort"

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// UploadResult is the payload returned to callers of either importer.
type UploadResult struct {
	Status                 string      `json:"status"`
	Message                string      `json:"message"`
	Data                   interface{} `json:"data,omitempty"`
	UnresolvedStationNames []string    `json:"unresolved_station_names,omitempty"`
}

// Clean reports whether the upload persisted every row without any skip.
func (r *UploadResult) Clean() bool {
	return r.Status == StatusSuccess && len(r.UnresolvedStationNames) == 0
}

// SkippedRow records a metadata row that was not stored.
type SkippedRow struct {
	Line   int    `json:"line"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason"`
}

// MetadataSummary describes a completed metadata import.
type MetadataSummary struct {
	Rows            int          `json:"rows"`
	StationsCreated int          `json:"stations_created"`
	StationsUpdated int          `json:"stations_updated"`
	SkippedRows     []SkippedRow `json:"skipped_rows"`
}

// MeasurementSummary describes a completed measurement import.
type MeasurementSummary struct {
	Rows                int            `json:"rows"`
	Stored              int            `json:"stored"`
	Dropped             map[string]int `json:"dropped"`
	DuplicatesCollapsed int            `json:"duplicates_collapsed"`
}

// DroppedTotal sums every drop reason.
func (s *MeasurementSummary) DroppedTotal() int {
	n := 0
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// DroppedReasons returns the drop reasons in a stable order.
func (s *MeasurementSummary) DroppedReasons() []string {
	reasons := make([]string, 0, len(s.Dropped))
	for r := range s.Dropped {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return reasons
}

// SeriesPoint is one labelled value of a daily or monthly series.
type SeriesPoint struct {
	Label   string  `json:"tanggal"`
	ValueMM float64 `json:"ch"`
}

// SeriesResult is the answer to a per-station series query.
type SeriesResult struct {
	StationID   int64         `json:"station_id"`
	StationName string        `json:"station_name"`
	Mode        string        `json:"mode"`
	Points      []SeriesPoint `json:"data"`
}

// StationDetailResult bundles a station with both of its series.
type StationDetailResult struct {
	Station *StationDetail `json:"station"`
	Daily   []SeriesPoint  `json:"daily"`
	Monthly []SeriesPoint  `json:"monthly"`
}
