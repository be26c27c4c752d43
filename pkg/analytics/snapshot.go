package analytics

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/usage"
)

// DefaultSnapshotConcurrency bounds per-user work in a snapshot run
const DefaultSnapshotConcurrency = 4

// SnapshotStore is what the snapshot job reads and writes
type SnapshotStore interface {
	UsageReader

	// ActiveUsers lists users with at least one entry in the inclusive range
	ActiveUsers(ctx context.Context, from, to usage.Date) ([]int64, error)
	UpsertSnapshot(ctx context.Context, snapshot *Snapshot) error
}

// SnapshotJob persists one risk snapshot per active user and day
type SnapshotJob struct {
	engine      *Engine
	store       SnapshotStore
	concurrency int
	logger      *observability.Logger
	clock       func() time.Time
}

// SnapshotResult summarizes one run
type SnapshotResult struct {
	Date     usage.Date    `json:"date"`
	Users    int           `json:"users"`
	Written  int           `json:"written"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// NewSnapshotJob creates a snapshot job. concurrency <= 0 uses the default.
func NewSnapshotJob(engine *Engine, store SnapshotStore, concurrency int, logger *observability.Logger) *SnapshotJob {
	if engine == nil {
		engine = defaultEngine
	}
	if concurrency <= 0 {
		concurrency = DefaultSnapshotConcurrency
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &SnapshotJob{
		engine:      engine,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
		clock:       time.Now,
	}
}

// Run computes and upserts snapshots for every user active in the 60 days up
// to date. A failing user is logged and counted; the others still run.
func (j *SnapshotJob) Run(ctx context.Context, date usage.Date) (_ *SnapshotResult, err error) {
	ctx, span := observability.StartSpan(ctx, "analytics.snapshot_run", attribute.String("snapshot.date", date.String()))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	logger := j.logger.WithField("date", date.String())

	users, err := j.store.ActiveUsers(ctx, date.AddDays(-(HistoryDays - 1)), date)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	logger.Infof("Computing snapshots for %d users", len(users))

	var written, failed atomic.Int64

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(j.concurrency)

	for _, userID := range users {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := j.snapshotUser(ctx, userID, date); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed.Add(1)
				logger.WithField("user_id", userID).WithError(err).Error("Snapshot failed")
				return nil
			}
			written.Add(1)
			return nil
		})
	}

	waitErr := eg.Wait()
	span.SetAttributes(
		attribute.Int("snapshot.users", len(users)),
		attribute.Int64("snapshot.written", written.Load()),
		attribute.Int64("snapshot.failed", failed.Load()),
	)

	result := &SnapshotResult{
		Date:     date,
		Users:    len(users),
		Written:  int(written.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}

	if waitErr != nil {
		return result, fmt.Errorf("snapshot run interrupted: %w", waitErr)
	}
	if result.Failed > 0 {
		return result, fmt.Errorf("%d of %d snapshots failed", result.Failed, result.Users)
	}

	logger.Infof("Wrote %d snapshots in %s", result.Written, result.Duration)
	return result, nil
}

func (j *SnapshotJob) snapshotUser(ctx context.Context, userID int64, date usage.Date) error {
	entries, err := j.store.ListRange(ctx, userID, date.AddDays(-(HistoryDays - 1)), date)
	if err != nil {
		return fmt.Errorf("failed to load usage: %w", err)
	}

	// midnight UTC of date has date as its calendar day
	d, err := j.engine.Dashboard(entries, date.Time())
	if err != nil {
		return err
	}

	snapshot := &Snapshot{
		UserID:              userID,
		Date:                date,
		Value:               d.RiskScore.Value,
		Level:               d.RiskScore.Level,
		WeeklyTotalMinutes:  d.WeeklyStats.TotalMinutes,
		AverageDailyMinutes: d.WeeklyStats.AverageDailyMinutes,
		Trend:               d.WeeklyStats.Trend,
		CreatedAt:           j.clock().UTC(),
	}
	if err := j.store.UpsertSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}
