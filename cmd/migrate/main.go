// migrate - resumable batch transformation of tabular product data.
// Reads rows from CSV or XLSX, sends fixed-size batches to an LLM for
// restructuring and appends the results to a durable store.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lenardflx/ai-data-migration/pkg/config"
	"github.com/lenardflx/ai-data-migration/pkg/logging"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configPath string
	logLevel   string
	logFormat  string
	logFile    string
	verbose    bool
)

// Set by loadConfig before any subcommand runs.
var (
	cfg       *config.Config
	logger    = zerolog.Nop()
	logCloser io.Closer
)

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate tabular product data through an LLM, batch by batch",
	Long: `migrate reads an ordered dataset, sends it to a language model in fixed-size
batches and appends each structured result to an output store. Progress is
saved after every committed batch, so an interrupted run resumes where it stopped.

Configuration is read from ~/.migrate/config.yaml, ./.migrate.yaml and --config,
then MIGRATE_* environment variables, then flags.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig merges configuration sources and builds the logger.
func loadConfig(cmd *cobra.Command, args []string) error {
	m := config.NewManager()
	if err := m.Load(configPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = m.Get()

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if flags.Changed("log-file") {
		cfg.Logging.File = logFile
	}

	l, closer, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	logger, logCloser = l, closer

	for _, p := range m.Paths() {
		logger.Debug().Str("path", p).Msg("loaded config file")
	}
	return nil
}
