package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/usage"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Write snapshots for one day and exit.",
	Long: `Compute the risk assessment of every user active in the 60 days up to
--date and upsert one snapshot per user. Re-running a day overwrites it.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		loc, err := location()
		if err != nil {
			return err
		}
		date, err := resolveDate(viper.GetString("date"), time.Now().In(loc))
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cm, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cm.Close()

		job, err := newSnapshotJob(cm)
		if err != nil {
			return err
		}
		_, err = runSnapshots(ctx, job, date, nil)
		return err
	},
}

// resolveDate parses value, or returns the day before now's calendar date
// when value is empty.
func resolveDate(value string, now time.Time) (usage.Date, error) {
	if value == "" {
		return usage.DateOf(now).AddDays(-1), nil
	}
	date, err := usage.ParseDate(value)
	if err != nil {
		return usage.Date{}, err
	}
	if date.After(usage.DateOf(now)) {
		return usage.Date{}, fmt.Errorf("date %s is in the future", date)
	}
	return date, nil
}

// snapshotRunner is the part of analytics.SnapshotJob the CLI drives
type snapshotRunner interface {
	Run(ctx context.Context, date usage.Date) (*analytics.SnapshotResult, error)
}

// runSnapshots runs one day, logs its outcome and feeds metrics when set.
// A partial failure still records the snapshots that were written.
func runSnapshots(ctx context.Context, job snapshotRunner, date usage.Date, metrics *observability.Metrics) (*analytics.SnapshotResult, error) {
	log.WithField("date", date.String()).Info("Starting snapshot run")

	result, err := job.Run(ctx, date)
	if result != nil {
		if metrics != nil {
			metrics.RecordSnapshots(result.Written, result.Failed)
		}
		log.WithFields(logrus.Fields{
			"date":     result.Date.String(),
			"users":    result.Users,
			"written":  result.Written,
			"failed":   result.Failed,
			"duration": result.Duration.Round(time.Millisecond).String(),
		}).Info("Snapshot run finished")
	}
	if err != nil {
		return result, fmt.Errorf("snapshot run for %s: %w", date, err)
	}
	return result, nil
}
