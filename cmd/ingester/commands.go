package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"rainfall-platform/internal/models"
	"rainfall-platform/internal/services"
	"rainfall-platform/internal/tabular"
	"rainfall-platform/pkg/logging"
)

const (
	kindMetadata     = "metadata"
	kindMeasurements = "measurements"
)

func newImportCmd(kind string) *cobra.Command {
	short := "Upsert stations from a metadata file"
	if kind == kindMeasurements {
		short = "Store daily rainfall from a time-series file"
	}

	return &cobra.Command{
		Use:   kind + " FILE",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.logger.Info(ctx, "[INGESTER_START] Importing file", logging.Fields{
				"kind":      kind,
				"file":      path,
				"upload_id": rt.session.UploadID,
			})

			var result *models.UploadResult
			if kind == kindMetadata {
				result, err = rt.metadata.Import(ctx, rt.session, filepath.Base(path), data)
			} else {
				result, err = rt.measurements.Import(ctx, rt.session, filepath.Base(path), data)
			}
			if err != nil {
				return err
			}

			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newValidateCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "validate FILE",
		Short: "Parse and check a file without touching the database",
		Long: `Runs the file through column resolution and row checks and reports what an
import would keep and drop. Station names are not matched, as that needs the database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			table, err := tabular.Load(filepath.Base(path), data)
			if err != nil {
				return err
			}

			switch kind {
			case kindMetadata:
				records, err := table.MetadataRecords()
				if err != nil {
					return err
				}
				accepted, skipped := services.PreviewMetadata(records)
				printMetadataPreview(cmd.OutOrStdout(), table, accepted, skipped)
			case kindMeasurements:
				records, err := table.MeasurementRecords()
				if err != nil {
					return err
				}
				kept, dropped, err := services.NewMeasurementNormalizer(4).NormalizeAll(cmd.Context(), records)
				if err != nil {
					return err
				}
				printMeasurementPreview(cmd.OutOrStdout(), table, kept, dropped)
			default:
				return fmt.Errorf("--kind must be %q or %q, got %q", kindMetadata, kindMeasurements, kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", kindMeasurements, "file kind: metadata or measurements")
	return cmd
}
