package postgres

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"

	"github.com/platinummonkey/unwind/pkg/storage"
)

const uniqueViolation = "23505"

// classify maps driver errors to storage errors. Unique violations become a
// *storage.ConflictError naming the column taken from the constraint name
// (users_email_key → email).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return &storage.ConflictError{Field: constraintField(pqErr.Constraint)}
	}
	return err
}

func constraintField(constraint string) string {
	name := strings.TrimSuffix(constraint, "_key")
	if i := strings.Index(name, "_"); i >= 0 {
		return name[i+1:]
	}
	return name
}
