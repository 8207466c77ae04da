package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rainfall-platform/internal/models"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidate_Measurements(t *testing.T) {
	var rows bytes.Buffer
	rows.WriteString("Pos Hujan;Tanggal;CH\n")
	for i := 0; i < 1200; i++ {
		rows.WriteString("Stasiun Alpha;2024-01-01;1,5\n")
	}
	rows.WriteString("Stasiun Beta;2024-01-02;9999\n")
	rows.WriteString("Stasiun Beta;kemarin;3\n")
	path := writeFile(t, "ch.csv", rows.String())

	out, err := run(t, "validate", path, "--kind", "measurements")
	require.NoError(t, err)
	assert.Contains(t, out, "VALIDATION: MEASUREMENTS")
	assert.Contains(t, out, "Rows:               1,202")
	assert.Contains(t, out, "Valid:              1,200")
	assert.Contains(t, out, models.ReasonSentinelValue)
	assert.Contains(t, out, models.ReasonInvalidDate)
	assert.Contains(t, out, "Distinct stations:  1")
}

func TestValidate_Metadata(t *testing.T) {
	path := writeFile(t, "pos.csv", "ID,Pos Hujan,Balai,Provinsi,Kabupaten,Kecamatan,Lintang,Bujur,Elevasi\n"+
		"P001,Alpha,BBWS,Jawa Barat,Bandung,,-6.9,107.6,700\n"+
		"P002,Beta,BBWS,Jawa Barat,Bandung,,x,107.6,\n")

	out, err := run(t, "validate", path, "--kind", "metadata")
	require.NoError(t, err)
	assert.Contains(t, out, "Would import:       1")
	assert.Contains(t, out, "line 3 P002: "+models.ReasonInvalidCoordinates)
}

func TestValidate_Errors(t *testing.T) {
	path := writeFile(t, "ch.csv", "Pos Hujan,Tanggal\nAlpha,2024-01-01\n")

	_, err := run(t, "validate", path)
	var schemaErr *models.SchemaError
	assert.ErrorAs(t, err, &schemaErr)

	_, err = run(t, "validate", path, "--kind", "stations")
	assert.ErrorContains(t, err, "--kind")

	_, err = run(t, "validate", filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorContains(t, err, "failed to read")

	_, err = run(t, "validate")
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	names := make([]string, 12)
	for i := range names {
		names[i] = "Pos " + string(rune('A'+i))
	}

	printResult(&out, &models.UploadResult{
		Status:  models.StatusSuccess,
		Message: "Imported 1,500 of 2,000 rainfall rows",
		Data: &models.MeasurementSummary{
			Rows:    2000,
			Stored:  1500,
			Dropped: map[string]int{models.ReasonUnresolvedStation: 480, models.ReasonNegativeValue: 20},
		},
		UnresolvedStationNames: names,
	})

	s := out.String()
	assert.Contains(t, s, "Stored:             1,500")
	assert.Contains(t, s, "unresolved_station   480")
	assert.Contains(t, s, "Station names not found (12)")
	assert.Contains(t, s, "... and 2 more")
}
