package postgres

import (
	"context"
	"fmt"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/storage"
	"github.com/platinummonkey/unwind/pkg/usage"
)

// SnapshotRepository implements storage.SnapshotStore
type SnapshotRepository struct {
	cm *ConnectionManager
}

var _ storage.SnapshotStore = (*SnapshotRepository)(nil)

// NewSnapshotRepository creates a snapshot repository
func NewSnapshotRepository(cm *ConnectionManager) *SnapshotRepository {
	return &SnapshotRepository{cm: cm}
}

// UpsertSnapshot writes the snapshot for (user, date), replacing a previous
// run for the same day
func (r *SnapshotRepository) UpsertSnapshot(ctx context.Context, s *analytics.Snapshot) error {
	query := `
		INSERT INTO risk_snapshots
			(user_id, date, value, level, weekly_total_minutes, average_daily_minutes, trend)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, date) DO UPDATE SET
			value = EXCLUDED.value,
			level = EXCLUDED.level,
			weekly_total_minutes = EXCLUDED.weekly_total_minutes,
			average_daily_minutes = EXCLUDED.average_daily_minutes,
			trend = EXCLUDED.trend,
			created_at = NOW()
		RETURNING created_at
	`
	err := r.cm.Primary().QueryRowContext(ctx, query,
		s.UserID, s.Date, s.Value, string(s.Level),
		s.WeeklyTotalMinutes, s.AverageDailyMinutes, string(s.Trend),
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", classify(err))
	}
	return nil
}

// ListSnapshots returns the snapshots of userID in [from, to], oldest first
func (r *SnapshotRepository) ListSnapshots(ctx context.Context, userID int64, from, to usage.Date) ([]analytics.Snapshot, error) {
	rows, err := r.cm.Replica().QueryContext(ctx, `
		SELECT user_id, date, value, level, weekly_total_minutes, average_daily_minutes, trend, created_at
		FROM risk_snapshots
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []analytics.Snapshot{}
	for rows.Next() {
		var (
			s            analytics.Snapshot
			level, trend string
		)
		if err := rows.Scan(&s.UserID, &s.Date, &s.Value, &level,
			&s.WeeklyTotalMinutes, &s.AverageDailyMinutes, &trend, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		s.Level = analytics.RiskLevel(level)
		s.Trend = analytics.Trend(trend)
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// SnapshotSource combines the usage and snapshot repositories into the
// store the snapshot job reads from and writes to
type SnapshotSource struct {
	*UsageRepository
	*SnapshotRepository
}

var (
	_ analytics.SnapshotStore = SnapshotSource{}
	_ analytics.PrimaryReader = (*UsageRepository)(nil)
)

// NewSnapshotSource creates a SnapshotSource over one connection manager
func NewSnapshotSource(cm *ConnectionManager) SnapshotSource {
	return SnapshotSource{
		UsageRepository:    NewUsageRepository(cm),
		SnapshotRepository: NewSnapshotRepository(cm),
	}
}
