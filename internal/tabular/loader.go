// Package tabular reads uploaded delimited and spreadsheet files into rows of
// raw text cells and resolves their headers to canonical fields.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"rainfall-platform/internal/models"
)

// Format identifies how an upload was decoded.
type Format string

const (
	FormatDelimited   Format = "delimited"
	FormatSpreadsheet Format = "xlsx"
)

var (
	zipMagic = []byte("PK\x03\x04")
	utf8BOM  = []byte("\xEF\xBB\xBF")
)

// Row is one data row. Line is its 1-based position in the source, counting
// the header as line 1.
type Row struct {
	Line  int
	Cells []string
}

// Table is an uploaded file decoded into its header and data rows. No cell is
// coerced; values are the text the file carried.
type Table struct {
	Filename string
	Format   Format
	Header   []string
	Rows     []Row
	// Date1904 is set for workbooks saved in the 1904 date system.
	Date1904 bool
}

// Load decodes data according to filename and content. Delimited text uses
// the separator found in its header line; spreadsheets use their first sheet.
func Load(filename string, data []byte) (*Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &models.FileParseError{Filename: filename, Reason: "file is empty"}
	}

	ext := strings.ToLower(filepath.Ext(filename))

	var (
		t   *Table
		err error
	)
	switch {
	case bytes.HasPrefix(data, zipMagic):
		t, err = loadSpreadsheet(data)
	case ext == ".xls":
		return nil, &models.FileParseError{Filename: filename, Reason: "legacy .xls workbooks are not supported, save as .xlsx or .csv"}
	case ext == ".xlsx" || ext == ".xlsm":
		return nil, &models.FileParseError{Filename: filename, Reason: "not a valid xlsx workbook"}
	case utf8.Valid(data):
		t, err = loadDelimited(data, ext)
	default:
		return nil, &models.FileParseError{Filename: filename, Reason: "unsupported file format"}
	}
	if err != nil {
		var fpe *models.FileParseError
		if errors.As(err, &fpe) {
			fpe.Filename = filename
			return nil, fpe
		}
		return nil, &models.FileParseError{Filename: filename, Reason: "unreadable content", Err: err}
	}

	t.Filename = filename
	return t, nil
}

func loadDelimited(data []byte, ext string) (*Table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data, ext)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, err
	}

	t := &Table{Format: FormatDelimited, Header: header}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if blank(rec) {
			continue
		}
		line, _ := r.FieldPos(0)
		t.Rows = append(t.Rows, Row{Line: line, Cells: rec})
	}
	return t, nil
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// header line. Ties keep the earlier candidate.
func sniffDelimiter(data []byte, ext string) rune {
	if ext == ".tsv" {
		return '\t'
	}
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}

	best, bestCount := ',', 0
	for _, c := range []rune{',', ';', '\t'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

func loadSpreadsheet(data []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &models.FileParseError{Reason: "not a valid xlsx workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &models.FileParseError{Reason: "workbook has no sheets"}
	}

	// Raw values keep full numeric precision; dates arrive as serial numbers
	// unless the cell holds text.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	props, err := f.GetWorkbookProps()
	if err != nil {
		return nil, fmt.Errorf("read workbook properties: %w", err)
	}

	t := &Table{Format: FormatSpreadsheet, Date1904: props.Date1904 != nil && *props.Date1904}
	headerFound := false
	for i, rec := range rows {
		if blank(rec) {
			continue
		}
		if !headerFound {
			t.Header = rec
			headerFound = true
			continue
		}
		t.Rows = append(t.Rows, Row{Line: i + 1, Cells: rec})
	}
	if !headerFound {
		return nil, &models.FileParseError{Reason: "sheet has no header row"}
	}
	return t, nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
