package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/platinummonkey/unwind/pkg/storage"
	"github.com/platinummonkey/unwind/pkg/usage"
)

const usageColumns = `id, user_id, app_name, minutes_spent, date, created_at, updated_at`

// UsageRepository implements storage.UsageStore. Range reads used by
// analytics go to a read replica when one is configured.
type UsageRepository struct {
	cm *ConnectionManager
}

var _ storage.UsageStore = (*UsageRepository)(nil)

// NewUsageRepository creates a usage repository
func NewUsageRepository(cm *ConnectionManager) *UsageRepository {
	return &UsageRepository{cm: cm}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner, extra ...interface{}) (usage.Entry, error) {
	var e usage.Entry
	dest := append([]interface{}{
		&e.ID, &e.UserID, &e.AppName, &e.MinutesSpent, &e.Date, &e.CreatedAt, &e.UpdatedAt,
	}, extra...)
	err := row.Scan(dest...)
	return e, err
}

func (r *UsageRepository) Create(ctx context.Context, entry *usage.Entry) error {
	query := `
		INSERT INTO usage_logs (user_id, app_name, minutes_spent, date)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.cm.Primary().QueryRowContext(ctx, query,
		entry.UserID, entry.AppName, entry.MinutesSpent, entry.Date,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create usage entry: %w", classify(err))
	}
	return nil
}

func (r *UsageRepository) Get(ctx context.Context, userID, id int64) (*usage.Entry, error) {
	row := r.cm.Primary().QueryRowContext(ctx,
		`SELECT `+usageColumns+` FROM usage_logs WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get usage entry: %w", classify(err))
	}
	return &e, nil
}

func (r *UsageRepository) Update(ctx context.Context, entry *usage.Entry) error {
	query := `
		UPDATE usage_logs
		SET app_name = $1, minutes_spent = $2, date = $3, updated_at = NOW()
		WHERE id = $4 AND user_id = $5
		RETURNING created_at, updated_at
	`
	err := r.cm.Primary().QueryRowContext(ctx, query,
		entry.AppName, entry.MinutesSpent, entry.Date, entry.ID, entry.UserID,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update usage entry: %w", classify(err))
	}
	return nil
}

func (r *UsageRepository) Delete(ctx context.Context, userID, id int64) error {
	result, err := r.cm.Primary().ExecContext(ctx,
		`DELETE FROM usage_logs WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete usage entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete usage entry: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (r *UsageRepository) List(ctx context.Context, userID int64, filter usage.ListFilter) ([]usage.Entry, int, error) {
	filter, err := filter.Normalize()
	if err != nil {
		return nil, 0, err
	}

	conditions := []string{"user_id = $1"}
	args := []interface{}{userID}
	argNum := 2

	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("date >= $%d", argNum))
		args = append(args, filter.From)
		argNum++
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("date <= $%d", argNum))
		args = append(args, filter.To)
		argNum++
	}
	if filter.AppName != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(app_name) = LOWER($%d)", argNum))
		args = append(args, filter.AppName)
		argNum++
	}

	query := fmt.Sprintf(`
		SELECT %s, COUNT(*) OVER() AS total
		FROM usage_logs
		WHERE %s
		ORDER BY date DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, usageColumns, strings.Join(conditions, " AND "), argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.cm.Primary().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list usage entries: %w", err)
	}
	defer rows.Close()

	entries := make([]usage.Entry, 0, filter.Limit)
	total := 0
	for rows.Next() {
		e, err := scanEntry(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan usage entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list usage entries: %w", err)
	}

	// An offset past the end returns no rows and so no window count
	if len(entries) == 0 && filter.Offset > 0 {
		countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM usage_logs WHERE %s`, strings.Join(conditions, " AND "))
		if err := r.cm.Primary().QueryRowContext(ctx, countQuery, args[:len(args)-2]...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("failed to count usage entries: %w", err)
		}
	}
	return entries, total, nil
}

// ListRange returns every entry of userID dated within [from, to]. It reads
// from a replica.
func (r *UsageRepository) ListRange(ctx context.Context, userID int64, from, to usage.Date) ([]usage.Entry, error) {
	return listRange(ctx, r.cm.Replica(), userID, from, to)
}

// ListRangePrimary is ListRange against the primary, for reads that must
// observe a write that just committed
func (r *UsageRepository) ListRangePrimary(ctx context.Context, userID int64, from, to usage.Date) ([]usage.Entry, error) {
	return listRange(ctx, r.cm.Primary(), userID, from, to)
}

func listRange(ctx context.Context, db *sql.DB, userID int64, from, to usage.Date) ([]usage.Entry, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+usageColumns+` FROM usage_logs
		WHERE user_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date, id`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read usage range: %w", err)
	}
	defer rows.Close()

	var entries []usage.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *UsageRepository) ActiveUsers(ctx context.Context, from, to usage.Date) ([]int64, error) {
	rows, err := r.cm.Replica().QueryContext(ctx,
		`SELECT DISTINCT user_id FROM usage_logs WHERE date >= $1 AND date <= $2 ORDER BY user_id`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

