package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/usage"
)

var (
	// ErrNotFound is returned when a row does not exist or is not visible to
	// the requesting user
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write
	ErrConflict = errors.New("already exists")
)

// ConflictError names the column whose uniqueness was violated
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	if e.Field == "" {
		return ErrConflict.Error()
	}
	return fmt.Sprintf("%s %s", e.Field, ErrConflict)
}

// Unwrap lets errors.Is match ErrConflict
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// UserStore persists accounts
type UserStore interface {
	Create(ctx context.Context, user *auth.User) error
	GetByID(ctx context.Context, id int64) (*auth.User, error)
	GetByEmail(ctx context.Context, email string) (*auth.User, error)
	// ExistsByEmailOrUsername returns "email" or "username" for the first
	// taken field, or "" when both are free
	ExistsByEmailOrUsername(ctx context.Context, email, username string) (string, error)
	// SetRefreshTokenHash stores the hash of the current refresh token; nil
	// clears it
	SetRefreshTokenHash(ctx context.Context, userID int64, hash *string) error
}

// UsageStore persists usage entries. Every method is scoped to one owner;
// rows of other users behave as if they did not exist.
type UsageStore interface {
	analytics.UsageReader

	Create(ctx context.Context, entry *usage.Entry) error
	Get(ctx context.Context, userID, id int64) (*usage.Entry, error)
	Update(ctx context.Context, entry *usage.Entry) error
	Delete(ctx context.Context, userID, id int64) error
	// List returns one page of entries, newest date first, and the total
	// number of matching rows
	List(ctx context.Context, userID int64, filter usage.ListFilter) ([]usage.Entry, int, error)
	// ActiveUsers returns the IDs of users with at least one entry in [from, to]
	ActiveUsers(ctx context.Context, from, to usage.Date) ([]int64, error)
}

// SnapshotStore persists daily risk snapshots
type SnapshotStore interface {
	analytics.SnapshotReader

	UpsertSnapshot(ctx context.Context, snapshot *analytics.Snapshot) error
}
