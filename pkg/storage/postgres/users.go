package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/storage"
)

const userColumns = `id, username, email, password_hash, refresh_token_hash, created_at, updated_at`

// UserRepository implements storage.UserStore
type UserRepository struct {
	db *sql.DB
}

var _ storage.UserStore = (*UserRepository)(nil)

// NewUserRepository creates a user repository on the primary pool
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", classify(err))
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*auth.User, error) {
	var (
		user    auth.User
		refresh sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&refresh, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", classify(err))
	}
	if refresh.Valid {
		user.RefreshTokenHash = &refresh.String
	}
	return &user, nil
}

func (r *UserRepository) ExistsByEmailOrUsername(ctx context.Context, email, username string) (string, error) {
	query := `
		SELECT email, username FROM users
		WHERE email = $1 OR username = $2
		ORDER BY (email = $1) DESC
		LIMIT 1
	`
	var foundEmail, foundUsername string
	err := r.db.QueryRowContext(ctx, query, email, username).Scan(&foundEmail, &foundUsername)
	switch {
	case err == sql.ErrNoRows:
		return "", nil
	case err != nil:
		return "", fmt.Errorf("failed to check existing user: %w", err)
	case foundEmail == email:
		return "email", nil
	default:
		return "username", nil
	}
}

func (r *UserRepository) SetRefreshTokenHash(ctx context.Context, userID int64, hash *string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token_hash = $1, updated_at = NOW() WHERE id = $2`,
		hash, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
