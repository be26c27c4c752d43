package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage/postgres"
)

// Set by the linker at release time.
var (
	version = "dev"
	commit  = "none"
)

// log is the CLI's console logger. Configured in setup.
var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:               "unwind-aggregator",
	Short:             "Compute and inspect daily risk snapshots.",
	Long:              `unwind-aggregator writes one risk snapshot per active user and day, either once or on a cron schedule, and reports stored snapshot history.`,
	Version:           version + " (" + commit + ")",
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(reportCmd)

	rootCmd.PersistentFlags().String("database-url", "", "PostgreSQL connection URL")
	rootCmd.PersistentFlags().String("timezone", "UTC", "Reference timezone used to decide which day is yesterday")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().Int("concurrency", analytics.DefaultSnapshotConcurrency, "Users processed in parallel")
	rootCmd.PersistentFlags().String("policy-file", "", "YAML risk policy; the built-in policy when empty")
	rootCmd.PersistentFlags().Duration("database-timeout", 5*time.Second, "Timeout for connecting to PostgreSQL")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		log.WithError(err).Fatal("Error binding root flags")
	}

	runCmd.Flags().String("date", "", "Day to snapshot (YYYY-MM-DD); defaults to yesterday")
	if err := viper.BindPFlags(runCmd.Flags()); err != nil {
		log.WithError(err).Fatal("Error binding run flags")
	}

	scheduleCmd.Flags().String("schedule", defaultSchedule, "Cron expression for the daily run")
	scheduleCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while scheduled")
	if err := viper.BindPFlags(scheduleCmd.Flags()); err != nil {
		log.WithError(err).Fatal("Error binding schedule flags")
	}

	reportCmd.Flags().Int64("user", 0, "User ID to report on")
	reportCmd.Flags().Int("days", analytics.DefaultHistoryDays, "Days of history to show")
	if err := viper.BindPFlags(reportCmd.Flags()); err != nil {
		log.WithError(err).Fatal("Error binding report flags")
	}
}

// initConfig lets UNWIND_* environment variables back every flag, so
// --database-url and UNWIND_DATABASE_URL are interchangeable.
func initConfig() {
	viper.SetEnvPrefix("UNWIND")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setup(_ *cobra.Command, _ []string) error {
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func location() (*time.Location, error) {
	name := viper.GetString("timezone")
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// jobLogger is the structured logger handed to library code. It writes
// JSON to stderr at the CLI's level.
func jobLogger() *observability.Logger {
	return observability.NewLogger(observability.ParseLogLevel(viper.GetString("log-level")), os.Stderr).
		WithField("service", "unwind-aggregator").
		WithField("version", version)
}

func connect(ctx context.Context) (*postgres.ConnectionManager, error) {
	url := viper.GetString("database-url")
	if url == "" {
		return nil, fmt.Errorf("database URL is required (--database-url or UNWIND_DATABASE_URL)")
	}
	cm, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		PrimaryURL: url,
		MaxConns:   viper.GetInt("concurrency") + 1,
		MinConns:   1,
		Timeout:    viper.GetDuration("database-timeout"),
	}, jobLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, cm.Primary()); err != nil {
		cm.Close()
		return nil, err
	}
	return cm, nil
}
