package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lenardflx/ai-data-migration/pkg/export"
	"github.com/lenardflx/ai-data-migration/pkg/store"
)

// Export command flags
var (
	exportPath        string
	exportFormat      string
	exportCompression string
	exportReviewOnly  bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export committed records to Parquet, XLSX or JSONL",
	Long: `Export every committed output record to an analysis format.

The format is inferred from the target extension unless --format is given.
XLSX workbooks carry a second sheet listing records flagged for review.

Examples:
  migrate export --to products.parquet
  migrate export --to review.xlsx --review-only
  migrate export --to products.out --format jsonl`,
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportPath, "to", "", "Export target file (required)")
	f.StringVarP(&exportFormat, "format", "f", "", "Export format (parquet, xlsx, jsonl)")
	f.StringVar(&exportCompression, "compression", export.CompressionSnappy, "Parquet compression (none, snappy, gzip, zstd)")
	f.BoolVar(&exportReviewOnly, "review-only", false, "Only export records flagged for review")
	f.StringVarP(&outputFile, "output", "o", "", "Output store to read")
	f.StringVar(&outputFormat, "output-format", "", "Output store (json, jsonl, s3)")
	exportCmd.MarkFlagRequired("to")
}

func runExport(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	format := exportFormat
	if format == "" {
		var err error
		if format, err = export.FormatFromPath(exportPath); err != nil {
			return err
		}
	}

	st, err := store.Open(ctx, cfg.StoreConfig(), logger)
	if err != nil {
		return err
	}
	records, err := st.Records(ctx)
	if err != nil {
		return err
	}

	if exportReviewOnly {
		kept := records[:0]
		for _, r := range records {
			if r.Log.NeedsReview {
				kept = append(kept, r)
			}
		}
		records = kept
	}

	opts := export.DefaultParquetOptions()
	opts.Compression = exportCompression
	if err := export.ToFile(exportPath, format, records, opts); err != nil {
		return err
	}

	logger.Info().
		Str("store", st.Name()).
		Str("target", exportPath).
		Str("format", format).
		Int("records", len(records)).
		Msg("export complete")
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", len(records), exportPath)
	return nil
}
