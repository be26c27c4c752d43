// Package usage defines usage-log entries, the calendar Date type they are
// keyed by, and the validation rules every entry must satisfy before it is
// stored or aggregated.
//
// Validation is batch-oriented: Validate rejects the whole slice on the first
// malformed record and reports it as a *ValidationError wrapping
// ErrInvalidInput, so callers can branch with errors.Is and still surface the
// offending index and field.
package usage
