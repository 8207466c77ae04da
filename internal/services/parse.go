package services

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"rainfall-platform/internal/models"
)

// parseDecimal reads a plain decimal number. A single comma is accepted as
// the decimal separator when the text has no dot, as spreadsheets exported
// with an Indonesian locale write "12,5".
func parseDecimal(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	if !strings.Contains(s, ".") && strings.Count(s, ",") == 1 {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// dateLayouts are tried in order. Slash and dash dates share one rule:
// month-first before day-first, so "03/04/2024" is March 4th and
// "13-04-2024" is April 13th. Four-digit years are tried before two-digit.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-1-2",
	"2006/1/2",
	"1/2/2006",
	"2/1/2006",
	"1-2-2006",
	"2-1-2006",
	"1/2/2006 15:04:05",
	"2/1/2006 15:04:05",
	"1/2/06",
	"2/1/06",
	"1-2-06",
	"2-1-06",
	"2-Jan-2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// maxExcelSerial bounds the numbers read as spreadsheet day serials
// (100000 is the year 2173).
const maxExcelSerial = 100000

// parseDate reads a calendar day from the textual and numeric forms found in
// uploads and returns it at midnight UTC. date1904 selects the epoch for day
// serials taken from workbooks saved in the 1904 date system.
func parseDate(raw string, date1904 bool) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}

	if isDigits(s) && len(s) == 8 {
		if t, err := time.Parse("20060102", s); err == nil {
			return t, true
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial <= 0 || serial >= maxExcelSerial {
			return time.Time{}, false
		}
		t, err := excelize.ExcelDateToTime(serial, date1904)
		if err != nil {
			return time.Time{}, false
		}
		return models.DateOnlyUTC(t), true
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.DateOnlyUTC(t), true
		}
	}
	return time.Time{}, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
