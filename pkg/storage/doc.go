// Package storage defines the persistence interfaces used by the API and the
// snapshot job, and the errors every implementation maps its failures to.
//
// The PostgreSQL implementation lives in storage/postgres. Handlers classify
// failures with errors.Is(err, storage.ErrNotFound) and
// errors.Is(err, storage.ErrConflict); a *ConflictError additionally names
// the column that was already taken.
package storage
