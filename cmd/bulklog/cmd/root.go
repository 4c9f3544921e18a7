package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/averis/bulklog/internal/config"
	"github.com/averis/bulklog/internal/pipeline"
	"github.com/averis/bulklog/internal/report"
	"github.com/averis/bulklog/internal/store"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config

	mergeRuns  bool
	noMerge    bool
	onlyErrors bool
	dbPath     string
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "bulklog /path/to/log/file-or-folder",
	Short: "Summarize bulk export performance from client event logs",
	Long: `bulklog reconstructs bulk export runs from NDJSON event logs and
prints per-run performance statistics: throughput, time per resource,
time per patient, and error counts.

Repeated runs with identical parameters are merged into averaged
aggregates unless --no-merge is given. Exports the tool could not
understand are reported on stderr and excluded from the statistics.`,
	Args: cobra.ExactArgs(1),
	RunE: runSummary,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.Flags().BoolVar(&mergeRuns, "merge", true, "merge similar exports into averaged aggregates")
	rootCmd.Flags().BoolVar(&noMerge, "no-merge", false, "do not merge similar exports")
	rootCmd.Flags().BoolVar(&onlyErrors, "only-errors", false, "show only the exports with errors")
	rootCmd.Flags().StringVar(&dbPath, "db", "", "also record the emitted stats in this SQLite database")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	// Start with defaults
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/bulklog")
		viper.AddConfigPath(".")
	}

	// Environment variable overrides
	// BULKLOG_REPORT_NO_COLOR -> report.no_color
	viper.SetEnvPrefix("BULKLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.BindEnv("logs.patterns", "BULKLOG_LOGS_PATTERNS")
	viper.BindEnv("report.no_color", "BULKLOG_REPORT_NO_COLOR")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
		// No config file - use defaults + env vars
	}

	// Unmarshal into struct (merges config file with defaults)
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Handle special case: patterns as comma-separated string from env
	if patterns := os.Getenv("BULKLOG_LOGS_PATTERNS"); patterns != "" {
		cfg.Logs.Patterns = strings.Split(patterns, ",")
	}
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	if cfg.Report.NoColor {
		color.NoColor = true
	}

	p := pipeline.New(pipeline.Config{
		Patterns:   cfg.Logs.Patterns,
		Merge:      mergeRuns && !noMerge,
		OnlyErrors: onlyErrors,
	})

	result, err := p.Run(ctx, args[0])
	if err != nil {
		return err
	}
	slog.Debug("analysis complete",
		"runs", result.RunsParsed,
		"skipped", result.RunsSkipped,
		"stats", len(result.Stats),
		"duration", result.Duration)

	report.RenderAll(cmd.OutOrStdout(), result.Stats, result.ShowGroup)

	if dbPath != "" {
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("failed to open stats database: %w", err)
		}
		defer st.Close()
		if err := st.InsertStats(ctx, result.Stats); err != nil {
			return fmt.Errorf("failed to record stats: %w", err)
		}
		slog.Debug("stats recorded", "db", dbPath, "rows", len(result.Stats))
	}

	return nil
}
