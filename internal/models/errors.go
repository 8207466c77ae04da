package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthenticated is returned by every importer when the caller session is
// not authenticated. No file content is read in that case.
var ErrUnauthenticated = errors.New("caller is not authenticated")

// FileParseError means the uploaded bytes are neither a readable delimited
// file nor a readable spreadsheet.
type FileParseError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *FileParseError) Error() string {
	msg := fmt.Sprintf("cannot parse file %q: %s", e.Filename, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FileParseError) Unwrap() error { return e.Err }

// IsTransient returns false; re-sending the same bytes fails the same way
func (e *FileParseError) IsTransient() bool {
	return false
}

// SchemaError lists the logical fields that have no matching header alias.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

// IsTransient returns false as schema errors are permanent
func (e *SchemaError) IsTransient() bool {
	return false
}

// Row drop reasons. They double as the outcome label of ingestion metrics.
const (
	ReasonInvalidDate        = "invalid_date"
	ReasonInvalidValue       = "invalid_value"
	ReasonSentinelValue      = "sentinel_value"
	ReasonNegativeValue      = "negative_value"
	ReasonInvalidCoordinates = "invalid_coordinates"
	ReasonMissingCode        = "missing_code"
	ReasonMissingName        = "missing_name"
	ReasonMissingStation     = "missing_station_name"
	ReasonUnresolvedStation  = "unresolved_station"
)

// RowValidationError describes a single row that was skipped for data
// quality reasons. It never aborts an upload.
type RowValidationError struct {
	Line    int
	Field   string
	Value   string
	Reason  string
	Message string
}

func (e *RowValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *RowValidationError) IsTransient() bool {
	return false
}

// EntityResolutionError is a measurement row whose station name matched no station.
type EntityResolutionError struct {
	Line        int
	StationName string
}

func (e *EntityResolutionError) Error() string {
	return fmt.Sprintf("line %d: station %q not found", e.Line, e.StationName)
}

// IsTransient returns false; the station must be imported first
func (e *EntityResolutionError) IsTransient() bool {
	return false
}

// PersistenceError wraps a storage failure that rolled back a whole upload.
type PersistenceError struct {
	Op       string
	SQLState string
	Err      error
}

func (e *PersistenceError) Error() string {
	if e.SQLState != "" {
		return fmt.Sprintf("%s failed (sqlstate %s): %v", e.Op, e.SQLState, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransient reports whether the failure was a serialization, deadlock or
// uniqueness conflict that a later retry may clear.
func (e *PersistenceError) IsTransient() bool {
	switch e.SQLState {
	case "40001", "40P01", "23505":
		return true
	}
	return false
}

// IsFatal reports whether err aborts an upload as opposed to being a per-row skip.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var rowErr *RowValidationError
	var resErr *EntityResolutionError
	return !errors.As(err, &rowErr) && !errors.As(err, &resErr)
}
