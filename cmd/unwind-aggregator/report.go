package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/storage/postgres"
	"github.com/platinummonkey/unwind/pkg/usage"
)

var (
	highColor     = color.New(color.FgRed, color.Bold)
	moderateColor = color.New(color.FgYellow)
	lowColor      = color.New(color.FgGreen)
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a user's stored risk snapshots.",
	Long: `Print the snapshots stored for --user over the last --days days, oldest
first. Only days the aggregator has run for appear.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		userID := viper.GetInt64("user")
		if userID <= 0 {
			return fmt.Errorf("--user must be a positive user ID")
		}
		days := viper.GetInt("days")
		if days <= 0 || days > analytics.MaxHistoryDays {
			return fmt.Errorf("--days must be between 1 and %d", analytics.MaxHistoryDays)
		}
		loc, err := location()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cm, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cm.Close()

		today := usage.DateOf(time.Now().In(loc))
		snapshots, err := postgres.NewSnapshotRepository(cm).ListSnapshots(ctx, userID, today.AddDays(-(days - 1)), today)
		if err != nil {
			return err
		}
		return printReport(os.Stdout, userID, snapshots)
	},
}

// printReport renders snapshots as a table followed by a one-line summary
func printReport(w io.Writer, userID int64, snapshots []analytics.Snapshot) error {
	if len(snapshots) == 0 {
		_, err := fmt.Fprintf(w, "No snapshots stored for user %d\n", userID)
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Date", "Risk", "Level", "Weekly Min", "Avg Daily", "Trend"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var data [][]string
	var total float64
	for _, s := range snapshots {
		total += s.Value
		data = append(data, []string{
			s.Date.String(),
			strconv.FormatFloat(s.Value, 'f', 1, 64),
			levelLabel(s.Level),
			strconv.FormatFloat(s.WeeklyTotalMinutes, 'f', 0, 64),
			strconv.FormatFloat(s.AverageDailyMinutes, 'f', 1, 64),
			string(s.Trend),
		})
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "User %d: %d snapshots, average risk %.1f\n", userID, len(snapshots), total/float64(len(snapshots)))
	return err
}

func levelLabel(level analytics.RiskLevel) string {
	text := string(level)
	switch level {
	case analytics.RiskHigh:
		return highColor.Sprint(text)
	case analytics.RiskModerate:
		return moderateColor.Sprint(text)
	default:
		return lowColor.Sprint(text)
	}
}
