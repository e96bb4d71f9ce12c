package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lenardflx/ai-data-migration/pkg/config"
	"github.com/lenardflx/ai-data-migration/pkg/lifecycle"
	"github.com/lenardflx/ai-data-migration/pkg/telemetry"
	"github.com/lenardflx/ai-data-migration/pkg/tui"
	"github.com/lenardflx/ai-data-migration/pkg/watch"
)

// Run command flags
var (
	inputFile      string
	outputFile     string
	outputFormat   string
	progressFile   string
	progressStore  string
	delimiter      string
	chunkSize      int
	maxAttempts    int
	modelName      string
	idScheme       string
	dryRun         bool
	useDuckDB      bool
	watchInput     bool
	noProgressBar  bool
	enableTracing  bool
	requireColumns []string
	excludeColumns []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run or resume a migration",
	Long: `Run the migration from the saved cursor to the end of the input.

Ctrl-C requests a stop: the batch in flight is allowed to finish committing and
the run ends before the next attempt starts. Run again to resume.

Examples:
  migrate run
  migrate run -i products.csv -o new_data.json --chunk-size 20
  migrate run -i products.xlsx --dry-run
  migrate run --progress-backend redis --watch`,
	RunE: runMigrate,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&inputFile, "input", "i", "", "Input file (.csv, .csv.gz or .xlsx)")
	f.StringVarP(&outputFile, "output", "o", "", "Output file")
	f.StringVar(&outputFormat, "output-format", "", "Output store (json, jsonl, s3)")
	f.StringVar(&progressFile, "progress", "", "Progress file for the file backend")
	f.StringVar(&progressStore, "progress-backend", "", "Progress backend (file, redis, s3)")
	f.StringVarP(&delimiter, "delimiter", "d", "", "CSV field delimiter")
	f.IntVar(&chunkSize, "chunk-size", 0, "Rows per batch")
	f.IntVar(&maxAttempts, "max-attempts", 0, "Attempts per batch before the run fails")
	f.StringVar(&modelName, "model", "", "Model name")
	f.StringVar(&idScheme, "id-scheme", "", "Identifier scheme for output records (uuid, ulid)")
	f.BoolVar(&dryRun, "dry-run", false, "Copy columns into products without calling the model")
	f.BoolVar(&useDuckDB, "duckdb", false, "Read CSV input with DuckDB")
	f.BoolVarP(&watchInput, "watch", "w", false, "Keep running and resume whenever the input changes")
	f.BoolVar(&noProgressBar, "no-progress", false, "Disable the progress bar")
	f.BoolVar(&enableTracing, "trace", false, "Export traces over OTLP")
	f.StringSliceVar(&requireColumns, "require", nil, "Columns every row must fill")
	f.StringSliceVar(&excludeColumns, "exclude", nil, "Columns never sent to the model")
}

// applyRunFlags overrides configuration with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if f.Changed(name) {
			*dst = v
		}
	}
	set("input", &c.Input.Path, inputFile)
	set("output", &c.Output.Path, outputFile)
	set("output-format", &c.Output.Format, outputFormat)
	set("progress", &c.Progress.Path, progressFile)
	set("progress-backend", &c.Progress.Backend, progressStore)
	set("delimiter", &c.Input.Delimiter, delimiter)
	set("model", &c.Transform.Model, modelName)
	set("id-scheme", &c.Transform.IDScheme, idScheme)

	if f.Changed("chunk-size") {
		c.Pipeline.ChunkSize = chunkSize
	}
	if f.Changed("max-attempts") {
		c.Pipeline.MaxAttempts = maxAttempts
	}
	if f.Changed("require") {
		c.Input.Required = requireColumns
	}
	if f.Changed("exclude") {
		c.Input.Exclude = excludeColumns
	}
	if dryRun {
		c.Transform.Provider = "echo"
	}
	if useDuckDB {
		c.Input.Engine = "duckdb"
	}
	if enableTracing {
		c.Telemetry.Enabled = true
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	stop := lifecycle.NewStop()
	release := lifecycle.NotifySignals(stop, logger)
	defer release()

	closers := lifecycle.NewClosers(logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = closers.Close(shutdownCtx)
	}()

	shutdown, err := telemetry.Init(ctx, cfg.TelemetryConfig(version), logger)
	if err != nil {
		return err
	}
	closers.Add("telemetry", lifecycle.CloserFunc(shutdown))

	sess, err := openSession(ctx, cfg, logger, closers)
	if err != nil {
		return err
	}

	out := cmd.ErrOrStderr()
	interactive := !noProgressBar && tui.IsInteractive(os.Stderr)

	once := func(ctx context.Context) error {
		display := tui.NewDisplay(out, interactive)
		started := time.Now()
		res, err := sess.run(ctx, stop, display.Observe, func(info tui.RunInfo) {
			tui.PrintHeader(out, info)
		})
		display.Finish()
		if res != nil {
			tui.PrintSummary(out, res, time.Since(started))
		}
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	}

	if err := once(ctx); err != nil {
		return err
	}
	if !watchInput || stop.Requested() {
		return nil
	}

	w, err := watch.New(cfg.Input.Path, cfg.Watch.Debounce, logger)
	if err != nil {
		return err
	}
	logger.Info().Str("input", cfg.Input.Path).Msg("watching input for changes")
	return w.Run(ctx, stop.Done(), func(ctx context.Context) error {
		if stop.Requested() {
			return nil
		}
		return once(ctx)
	})
}
