package usage

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxAppNameLength is the longest accepted app name, in characters
	MaxAppNameLength = 100
	// MaxMinutesPerDay bounds minutesSpent: nobody spends more than a day on an app in a day
	MaxMinutesPerDay = 1440

	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ErrInvalidInput is the sentinel wrapped by every ValidationError
var ErrInvalidInput = errors.New("invalid usage input")

// Entry is one user's recorded minutes on one app on one date
type Entry struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	AppName      string    `json:"appName"`
	MinutesSpent float64   `json:"minutesSpent"`
	Date         Date      `json:"date"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ValidationError describes why a record was rejected.
// Index is -1 for single-record validation.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("record %d: %s %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidInput
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// Validate checks a single entry against the accepted ranges
func (e Entry) Validate(today Date) error {
	return validateFields(-1, e.AppName, e.MinutesSpent, e.Date, today)
}

// Validate rejects the whole batch on the first malformed record
func Validate(entries []Entry, today Date) error {
	for i, e := range entries {
		if err := validateFields(i, e.AppName, e.MinutesSpent, e.Date, today); err != nil {
			return err
		}
	}
	return nil
}

func validateFields(index int, appName string, minutes float64, date Date, today Date) error {
	name := strings.TrimSpace(appName)
	if name == "" {
		return &ValidationError{Index: index, Field: "appName", Reason: "is required"}
	}
	if utf8.RuneCountInString(name) > MaxAppNameLength {
		return &ValidationError{Index: index, Field: "appName", Reason: fmt.Sprintf("cannot exceed %d characters", MaxAppNameLength)}
	}
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes < 0 || minutes > MaxMinutesPerDay {
		return &ValidationError{Index: index, Field: "minutesSpent", Reason: fmt.Sprintf("must be between 0 and %d", MaxMinutesPerDay)}
	}
	if date.IsZero() {
		return &ValidationError{Index: index, Field: "date", Reason: "is required"}
	}
	if date.After(today) {
		return &ValidationError{Index: index, Field: "date", Reason: "cannot be in the future"}
	}
	return nil
}

// Input is the create/update payload for a usage entry
type Input struct {
	AppName      string   `json:"appName"`
	MinutesSpent *float64 `json:"minutesSpent"`
	Date         Date     `json:"date"`
}

// Normalize trims the app name, defaults the date to today and validates.
// It returns an Entry without identity fields set.
func (in Input) Normalize(today Date) (Entry, error) {
	if in.MinutesSpent == nil {
		return Entry{}, &ValidationError{Index: -1, Field: "minutesSpent", Reason: "is required"}
	}
	entry := Entry{
		AppName:      strings.TrimSpace(in.AppName),
		MinutesSpent: *in.MinutesSpent,
		Date:         in.Date,
	}
	if entry.Date.IsZero() {
		entry.Date = today
	}
	if err := entry.Validate(today); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ListFilter narrows a listing of a user's entries. Zero dates are unbounded.
type ListFilter struct {
	From    Date
	To      Date
	AppName string
	Limit   int
	Offset  int
}

// Normalize clamps paging values and rejects inverted ranges
func (f ListFilter) Normalize() (ListFilter, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.AppName = strings.TrimSpace(f.AppName)
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return f, &ValidationError{Index: -1, Field: "startDate", Reason: "must not be after endDate"}
	}
	return f, nil
}
