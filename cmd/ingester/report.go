package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"rainfall-platform/internal/models"
	"rainfall-platform/internal/tabular"
)

const maxListed = 10

func rule(w io.Writer, title string) {
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func count(n int) string {
	return humanize.Comma(int64(n))
}

func printResult(w io.Writer, result *models.UploadResult) {
	rule(w, "IMPORT COMPLETE")
	fmt.Fprintln(w, result.Message)

	switch data := result.Data.(type) {
	case *models.MetadataSummary:
		fmt.Fprintf(w, "Rows:               %s\n", count(data.Rows))
		fmt.Fprintf(w, "Stations created:   %s\n", count(data.StationsCreated))
		fmt.Fprintf(w, "Stations updated:   %s\n", count(data.StationsUpdated))
		printSkipped(w, data.SkippedRows)
	case *models.MeasurementSummary:
		fmt.Fprintf(w, "Rows:               %s\n", count(data.Rows))
		fmt.Fprintf(w, "Stored:             %s\n", count(data.Stored))
		fmt.Fprintf(w, "Duplicates merged:  %s\n", count(data.DuplicatesCollapsed))
		printDropped(w, data.Dropped)
	}

	if n := len(result.UnresolvedStationNames); n > 0 {
		fmt.Fprintf(w, "\nStation names not found (%s):\n", count(n))
		printList(w, result.UnresolvedStationNames)
	}
}

func printMetadataPreview(w io.Writer, table *tabular.Table, accepted int, skipped []models.SkippedRow) {
	rule(w, "VALIDATION: METADATA")
	fmt.Fprintf(w, "File:               %s (%s)\n", table.Filename, table.Format)
	fmt.Fprintf(w, "Rows:               %s\n", count(len(table.Rows)))
	fmt.Fprintf(w, "Would import:       %s\n", count(accepted))
	printSkipped(w, skipped)
}

func printMeasurementPreview(w io.Writer, table *tabular.Table, kept []models.NormalizedMeasurement, dropped []*models.RowValidationError) {
	rule(w, "VALIDATION: MEASUREMENTS")
	fmt.Fprintf(w, "File:               %s (%s)\n", table.Filename, table.Format)
	fmt.Fprintf(w, "Rows:               %s\n", count(len(table.Rows)))
	fmt.Fprintf(w, "Valid:              %s\n", count(len(kept)))

	byReason := make(map[string]int)
	for _, d := range dropped {
		byReason[d.Reason]++
	}
	printDropped(w, byReason)

	stations := make(map[string]struct{})
	for _, k := range kept {
		stations[strings.ToLower(k.StationName)] = struct{}{}
	}
	fmt.Fprintf(w, "Distinct stations:  %s\n", count(len(stations)))
}

func printSkipped(w io.Writer, skipped []models.SkippedRow) {
	if len(skipped) == 0 {
		return
	}
	fmt.Fprintf(w, "\nSkipped rows (%s):\n", count(len(skipped)))
	lines := make([]string, 0, len(skipped))
	for _, s := range skipped {
		lines = append(lines, fmt.Sprintf("line %d %s: %s", s.Line, s.Code, s.Reason))
	}
	printList(w, lines)
}

func printDropped(w io.Writer, dropped map[string]int) {
	if len(dropped) == 0 {
		return
	}
	reasons := make([]string, 0, len(dropped))
	for reason := range dropped {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)

	fmt.Fprintln(w, "Dropped:")
	for _, reason := range reasons {
		fmt.Fprintf(w, "  %-20s %s\n", reason, count(dropped[reason]))
	}
}

func printList(w io.Writer, items []string) {
	for i, item := range items {
		if i == maxListed {
			fmt.Fprintf(w, "  ... and %s more\n", count(len(items)-maxListed))
			break
		}
		fmt.Fprintf(w, "  - %s\n", item)
	}
}
