package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/usage"
)

func init() {
	log.SetOutput(io.Discard)
}

type fakeRunner struct {
	result *analytics.SnapshotResult
	err    error
	dates  []usage.Date
}

func (f *fakeRunner) Run(_ context.Context, date usage.Date) (*analytics.SnapshotResult, error) {
	f.dates = append(f.dates, date)
	return f.result, f.err
}

func TestResolveDate(t *testing.T) {
	now := time.Date(2026, 3, 15, 0, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		value   string
		want    usage.Date
		wantErr bool
	}{
		{"empty means yesterday", "", usage.NewDate(2026, 3, 14), false},
		{"explicit day", "2026-02-28", usage.NewDate(2026, 2, 28), false},
		{"today is allowed", "2026-03-15", usage.NewDate(2026, 3, 15), false},
		{"future", "2026-03-16", usage.Date{}, true},
		{"garbage", "yesterday", usage.Date{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDate(tt.value, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("yesterday follows the reference timezone", func(t *testing.T) {
		tokyo := time.FixedZone("JST", 9*60*60)
		got, err := resolveDate("", now.In(tokyo))
		require.NoError(t, err)
		assert.Equal(t, usage.NewDate(2026, 3, 14), got)

		la := time.FixedZone("PST", -8*60*60)
		got, err = resolveDate("", now.In(la))
		require.NoError(t, err)
		assert.Equal(t, usage.NewDate(2026, 3, 13), got)
	})
}

func TestRunSnapshotsRecordsMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	date := usage.NewDate(2026, 3, 14)

	ok := &fakeRunner{result: &analytics.SnapshotResult{Date: date, Users: 3, Written: 3}}
	result, err := runSnapshots(context.Background(), ok, date, metrics)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Written)
	assert.Equal(t, []usage.Date{date}, ok.dates)

	partial := &fakeRunner{
		result: &analytics.SnapshotResult{Date: date, Users: 3, Written: 2, Failed: 1},
		err:    errors.New("1 of 3 snapshots failed"),
	}
	_, err = runSnapshots(context.Background(), partial, date, metrics)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2026-03-14")

	assert.Equal(t, 5.0, testutil.ToFloat64(metrics.SnapshotsWrittenTotal.WithLabelValues("written")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SnapshotsWrittenTotal.WithLabelValues("failed")))

	_, err = runSnapshots(context.Background(), &fakeRunner{err: errors.New("db down")}, date, nil)
	assert.Error(t, err)
}

func TestNewScheduler(t *testing.T) {
	job := &fakeRunner{result: &analytics.SnapshotResult{}}

	c, err := newScheduler(context.Background(), defaultSchedule, time.UTC, job, nil)
	require.NoError(t, err)
	require.Len(t, c.Entries(), 1)

	// registered jobs can be run directly without waiting for the schedule
	c.Entries()[0].Job.Run()
	require.Len(t, job.dates, 1)
	assert.Equal(t, usage.DateOf(time.Now().UTC()).AddDays(-1), job.dates[0])

	_, err = newScheduler(context.Background(), "every night", time.UTC, job, nil)
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	color.NoColor = true

	var empty bytes.Buffer
	require.NoError(t, printReport(&empty, 7, nil))
	assert.Equal(t, "No snapshots stored for user 7\n", empty.String())

	snapshots := []analytics.Snapshot{
		{UserID: 7, Date: usage.NewDate(2026, 3, 13), Value: 20, Level: analytics.RiskLow, WeeklyTotalMinutes: 300, AverageDailyMinutes: 42.9, Trend: analytics.TrendStable},
		{UserID: 7, Date: usage.NewDate(2026, 3, 14), Value: 80, Level: analytics.RiskHigh, WeeklyTotalMinutes: 2400, AverageDailyMinutes: 342.9, Trend: analytics.TrendIncreasing},
	}

	var out bytes.Buffer
	require.NoError(t, printReport(&out, 7, snapshots))
	text := out.String()
	assert.Contains(t, text, "2026-03-13")
	assert.Contains(t, text, "2026-03-14")
	assert.Contains(t, text, "high")
	assert.Contains(t, text, "342.9")
	assert.Contains(t, text, "User 7: 2 snapshots, average risk 50.0")
}

func TestLevelLabel(t *testing.T) {
	color.NoColor = true
	for _, level := range []analytics.RiskLevel{analytics.RiskLow, analytics.RiskModerate, analytics.RiskHigh} {
		assert.Equal(t, string(level), levelLabel(level))
	}
}
