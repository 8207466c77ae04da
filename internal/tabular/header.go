package tabular

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"rainfall-platform/internal/models"
)

// Field is a canonical logical column and the header spellings accepted for
// it, in priority order.
type Field struct {
	Name    string
	Aliases []string
}

// Canonical field names.
const (
	FieldCode          = "code"
	FieldName          = "name"
	FieldOperatingUnit = "operating_unit"
	FieldProvince      = "province"
	FieldRegency       = "regency"
	FieldSubDistrict   = "sub_district"
	FieldLatitude      = "latitude"
	FieldLongitude     = "longitude"
	FieldElevation     = "elevation"

	FieldStationName = "station_name"
	FieldDate        = "date"
	FieldValue       = "value"
)

// MetadataFields lists the columns a station metadata upload must carry.
var MetadataFields = []Field{
	{Name: FieldCode, Aliases: []string{"id", "kode_pos", "kode", "station_code", "code"}},
	{Name: FieldName, Aliases: []string{"pos_hujan", "nama_pos", "pos", "stasiun", "station_name", "name"}},
	{Name: FieldOperatingUnit, Aliases: []string{"balai", "unit", "operating_unit"}},
	{Name: FieldProvince, Aliases: []string{"provinsi", "province"}},
	{Name: FieldRegency, Aliases: []string{"kabupaten", "kabupaten_kota", "kab_kota", "regency"}},
	{Name: FieldSubDistrict, Aliases: []string{"kecamatan", "sub_district"}},
	{Name: FieldLatitude, Aliases: []string{"lintang", "lintang_dd", "lat", "latitude"}},
	{Name: FieldLongitude, Aliases: []string{"bujur", "bujur_dd", "lon", "lng", "longitude"}},
	{Name: FieldElevation, Aliases: []string{"elevasi", "elevasi_m", "elevation", "elevation_m"}},
}

// MeasurementFields lists the columns a rainfall time-series upload must carry.
var MeasurementFields = []Field{
	{Name: FieldStationName, Aliases: []string{"pos_hujan", "pos", "stasiun", "nama_pos", "station"}},
	{Name: FieldDate, Aliases: []string{"tanggal", "tgl", "date"}},
	{Name: FieldValue, Aliases: []string{"curah_hujan", "ch", "ch_mm", "hujan", "rainfall"}},
}

// NormalizeHeader folds a raw header cell to its lookup key: NFKC, case
// folded, with every run of non-alphanumeric runes collapsed to a single
// underscore. "Pos Hujan", "POS-HUJAN" and " pos_hujan " all become "pos_hujan".
func NormalizeHeader(raw string) string {
	s := norm.NFKC.String(raw)
	s = cases.Fold().String(s)

	var b strings.Builder
	b.Grow(len(s))
	pendingSep := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// ColumnMap maps canonical field names to column indexes of one table.
type ColumnMap map[string]int

// Resolve matches every field against the table header once. The first alias
// present wins. Missing fields are reported together in a SchemaError.
func (t *Table) Resolve(fields []Field) (ColumnMap, error) {
	index := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}

	cm := make(ColumnMap, len(fields))
	var missing []string
	for _, f := range fields {
		found := false
		for _, alias := range f.Aliases {
			if i, ok := index[alias]; ok {
				cm[f.Name] = i
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, f.Name)
		}
	}

	if len(missing) > 0 {
		return nil, &models.SchemaError{Missing: missing}
	}
	return cm, nil
}

// Get returns the trimmed cell of row for field, or "" when the row is short.
func (cm ColumnMap) Get(row Row, field string) string {
	i, ok := cm[field]
	if !ok || i >= len(row.Cells) {
		return ""
	}
	return strings.TrimSpace(row.Cells[i])
}
