package usage

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = NewDate(2026, 3, 15)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		entries   []Entry
		wantField string
		wantIndex int
	}{
		{
			name:    "empty batch is valid",
			entries: nil,
		},
		{
			name: "valid records",
			entries: []Entry{
				{AppName: "Instagram", MinutesSpent: 0, Date: today},
				{AppName: "TikTok", MinutesSpent: 1440, Date: today.AddDays(-3)},
			},
		},
		{
			name: "blank app name",
			entries: []Entry{
				{AppName: "Instagram", MinutesSpent: 10, Date: today},
				{AppName: "   ", MinutesSpent: 10, Date: today},
			},
			wantField: "appName",
			wantIndex: 1,
		},
		{
			name:      "app name too long",
			entries:   []Entry{{AppName: strings.Repeat("a", 101), MinutesSpent: 10, Date: today}},
			wantField: "appName",
		},
		{
			name:      "negative minutes",
			entries:   []Entry{{AppName: "X", MinutesSpent: -1, Date: today}},
			wantField: "minutesSpent",
		},
		{
			name:      "more than a day",
			entries:   []Entry{{AppName: "X", MinutesSpent: 1440.5, Date: today}},
			wantField: "minutesSpent",
		},
		{
			name:      "NaN minutes",
			entries:   []Entry{{AppName: "X", MinutesSpent: math.NaN(), Date: today}},
			wantField: "minutesSpent",
		},
		{
			name:      "future date",
			entries:   []Entry{{AppName: "X", MinutesSpent: 5, Date: today.AddDays(1)}},
			wantField: "date",
		},
		{
			name:      "missing date",
			entries:   []Entry{{AppName: "X", MinutesSpent: 5}},
			wantField: "date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.entries, today)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidInput))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, tt.wantIndex, verr.Index)
		})
	}
}

func TestInputNormalize(t *testing.T) {
	minutes := 42.5

	entry, err := Input{AppName: "  YouTube ", MinutesSpent: &minutes}.Normalize(today)
	require.NoError(t, err)
	assert.Equal(t, "YouTube", entry.AppName)
	assert.Equal(t, 42.5, entry.MinutesSpent)
	assert.True(t, entry.Date.Equal(today), "date defaults to today")

	_, err = Input{AppName: "YouTube"}.Normalize(today)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = Input{AppName: "YouTube", MinutesSpent: &minutes, Date: today.AddDays(2)}.Normalize(today)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListFilterNormalize(t *testing.T) {
	f, err := ListFilter{Limit: 10000, Offset: -4}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, MaxListLimit, f.Limit)
	assert.Equal(t, 0, f.Offset)

	f, err = ListFilter{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultListLimit, f.Limit)

	_, err = ListFilter{From: today, To: today.AddDays(-1)}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2026-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", d.String())

	ts, err := ParseDate("2026-03-01T23:30:00Z")
	require.NoError(t, err)
	assert.True(t, ts.Equal(d))

	_, err = ParseDate("03/01/2026")
	assert.Error(t, err)

	assert.Equal(t, 14, today.DaysSince(d))
	assert.Equal(t, "2026-02-28", d.AddDays(-1).String())

	// calendar fields come from the time's own location
	loc := time.FixedZone("UTC-5", -5*3600)
	late := time.Date(2026, 3, 1, 22, 0, 0, 0, loc)
	assert.Equal(t, "2026-03-01", DateOf(late).String())
	assert.Equal(t, "2026-03-02", DateOf(late.UTC()).String())
}

func TestDateJSON(t *testing.T) {
	payload := struct {
		Date Date `json:"date"`
	}{Date: NewDate(2026, 1, 9)}

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2026-01-09"}`, string(data))

	var decoded struct {
		Date Date `json:"date"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2026-01-09"}`), &decoded))
	assert.True(t, decoded.Date.Equal(payload.Date))

	require.NoError(t, json.Unmarshal([]byte(`{"date":null}`), &decoded))
	assert.True(t, decoded.Date.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"date":"yesterday"}`), &decoded))
}

func TestDateScan(t *testing.T) {
	var d Date
	require.NoError(t, d.Scan(time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-02-03", d.String())

	require.NoError(t, d.Scan([]byte("2026-02-04")))
	assert.Equal(t, "2026-02-04", d.String())

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.IsZero())

	assert.Error(t, d.Scan(42))

	v, err := NewDate(2026, 2, 3).Value()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC), v)
}
