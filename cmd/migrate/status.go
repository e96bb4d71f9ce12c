package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lenardflx/ai-data-migration/pkg/checkpoint"
	"github.com/lenardflx/ai-data-migration/pkg/lifecycle"
	"github.com/lenardflx/ai-data-migration/pkg/source"
	"github.com/lenardflx/ai-data-migration/pkg/store"
	"github.com/lenardflx/ai-data-migration/pkg/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the saved cursor and output size",
	Long: `Show how far the migration has progressed without running it.

Reports the saved cursor, the number of input rows and the number of
records in the output store. A cursor that differs from the record count
means a run was interrupted between appending output and saving progress.`,
	RunE: runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVarP(&inputFile, "input", "i", "", "Input file")
	f.StringVarP(&outputFile, "output", "o", "", "Output file")
	f.StringVar(&outputFormat, "output-format", "", "Output store (json, jsonl, s3)")
	f.StringVar(&progressFile, "progress", "", "Progress file for the file backend")
	f.StringVar(&progressStore, "progress-backend", "", "Progress backend (file, redis, s3)")
	f.StringVarP(&delimiter, "delimiter", "d", "", "CSV field delimiter")
}

func runStatus(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	closers := lifecycle.NewClosers(logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = closers.Close(shutdownCtx)
	}()

	tracker, closeTracker, err := checkpoint.Open(ctx, cfg.CheckpointConfig(), logger)
	if err != nil {
		return err
	}
	closers.Add("progress", lifecycle.CloserFunc(func(context.Context) error { return closeTracker() }))

	st, err := store.Open(ctx, cfg.StoreConfig(), logger)
	if err != nil {
		return err
	}
	count, err := st.Count(ctx)
	if err != nil {
		return err
	}

	total := 0
	if _, statErr := os.Stat(cfg.Input.Path); statErr == nil {
		records, err := source.Load(ctx, cfg.SourceOptions())
		if err != nil {
			return err
		}
		total = len(records)
	} else {
		logger.Warn().Str("input", cfg.Input.Path).Msg("input not found, total unknown")
	}

	tui.PrintStatus(cmd.OutOrStdout(), tui.Status{
		Progress: tracker.Name(),
		Output:   st.Name(),
		Cursor:   tracker.Load(ctx),
		Total:    total,
		Records:  count,
	})
	return nil
}
