package analytics

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/platinummonkey/unwind/pkg/usage"
)

var now = time.Date(2026, 3, 15, 18, 30, 0, 0, time.UTC)

func day(offset int) usage.Date {
	return usage.DateOf(now).AddDays(-offset)
}

func entry(app string, minutes float64, offset int) usage.Entry {
	return usage.Entry{AppName: app, MinutesSpent: minutes, Date: day(offset)}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAggregateEmpty(t *testing.T) {
	stats, err := Aggregate(nil, now)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	for _, w := range []WindowStats{stats.Weekly, stats.Monthly} {
		if w.TotalMinutes != 0 || w.AverageDailyMinutes != 0 || w.PeakMinutes != 0 || w.DaysActive != 0 {
			t.Errorf("Expected zero window, got %+v", w)
		}
		if w.Trend != TrendStable {
			t.Errorf("Expected stable trend for empty window, got %s", w.Trend)
		}
		if w.Breakdown == nil || len(w.Breakdown) != 0 {
			t.Errorf("Expected empty non-nil breakdown, got %v", w.Breakdown)
		}
	}
	if stats.Weekly.WindowDays != 7 || stats.Monthly.WindowDays != 30 {
		t.Errorf("Unexpected window lengths %d / %d", stats.Weekly.WindowDays, stats.Monthly.WindowDays)
	}
}

func TestAggregateWindows(t *testing.T) {
	entries := []usage.Entry{
		entry("Instagram", 60, 0),
		entry("TikTok", 30, 0),
		entry("Instagram", 120, 3),
		entry("YouTube", 45, 6),
		entry("YouTube", 200, 7),  // weekly baseline, monthly current
		entry("Reddit", 90, 29),   // last monthly day
		entry("Reddit", 500, 30),  // monthly baseline
		entry("Reddit", 1000, 60), // ignored
	}

	stats, err := Aggregate(entries, now)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	w := stats.Weekly
	if w.TotalMinutes != 255 {
		t.Errorf("Expected weekly total 255, got %v", w.TotalMinutes)
	}
	if !almostEqual(w.AverageDailyMinutes, 255.0/7) {
		t.Errorf("Expected weekly average %v, got %v", 255.0/7, w.AverageDailyMinutes)
	}
	if w.DaysActive != 3 {
		t.Errorf("Expected 3 active days, got %d", w.DaysActive)
	}
	if w.PeakMinutes != 120 {
		t.Errorf("Expected weekly peak 120, got %v", w.PeakMinutes)
	}
	if w.PreviousTotalMinutes != 200 {
		t.Errorf("Expected weekly baseline 200, got %v", w.PreviousTotalMinutes)
	}
	if w.Breakdown["Instagram"] != 180 || w.Breakdown["TikTok"] != 30 || w.Breakdown["YouTube"] != 45 {
		t.Errorf("Unexpected weekly breakdown %v", w.Breakdown)
	}
	if _, ok := w.Breakdown["Reddit"]; ok {
		t.Error("Reddit is outside the weekly window")
	}
	if w.StartDate.String() != "2026-03-09" || w.EndDate.String() != "2026-03-15" {
		t.Errorf("Unexpected weekly bounds %s..%s", w.StartDate, w.EndDate)
	}

	m := stats.Monthly
	if m.TotalMinutes != 545 {
		t.Errorf("Expected monthly total 545, got %v", m.TotalMinutes)
	}
	if !almostEqual(m.AverageDailyMinutes, 545.0/30) {
		t.Errorf("Expected monthly average %v, got %v", 545.0/30, m.AverageDailyMinutes)
	}
	if m.DaysActive != 5 {
		t.Errorf("Expected 5 active days, got %d", m.DaysActive)
	}
	if m.PeakMinutes != 200 {
		t.Errorf("Expected monthly peak 200, got %v", m.PeakMinutes)
	}
	if m.PreviousTotalMinutes != 500 {
		t.Errorf("Expected monthly baseline 500, got %v", m.PreviousTotalMinutes)
	}
	if m.StartDate.String() != "2026-02-14" {
		t.Errorf("Unexpected monthly start %s", m.StartDate)
	}
}

func TestAggregateSumsSameDay(t *testing.T) {
	stats, err := Aggregate([]usage.Entry{
		entry("A", 100, 2),
		entry("B", 150, 2),
		entry("A", 50, 2),
	}, now)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if stats.Weekly.PeakMinutes != 300 {
		t.Errorf("Expected peak to be the daily sum 300, got %v", stats.Weekly.PeakMinutes)
	}
	if stats.Weekly.DaysActive != 1 {
		t.Errorf("Expected 1 active day, got %d", stats.Weekly.DaysActive)
	}
}

func TestAggregateBreakdownTrimsAppNames(t *testing.T) {
	stats, err := Aggregate([]usage.Entry{
		entry("Instagram", 30, 1),
		entry(" Instagram ", 20, 2),
		entry("Instagram\t", 10, 10),
	}, now)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(stats.Weekly.Breakdown) != 1 || stats.Weekly.Breakdown["Instagram"] != 50 {
		t.Errorf("Expected weekly breakdown {Instagram: 50}, got %v", stats.Weekly.Breakdown)
	}
	if len(stats.Monthly.Breakdown) != 1 || stats.Monthly.Breakdown["Instagram"] != 60 {
		t.Errorf("Expected monthly breakdown {Instagram: 60}, got %v", stats.Monthly.Breakdown)
	}
}

func TestAggregateZeroMinuteEntryCountsAsActive(t *testing.T) {
	stats, err := Aggregate([]usage.Entry{entry("A", 0, 1)}, now)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if stats.Weekly.DaysActive != 1 {
		t.Errorf("Expected 1 active day, got %d", stats.Weekly.DaysActive)
	}
	if v, ok := stats.Weekly.Breakdown["A"]; !ok || v != 0 {
		t.Errorf("Expected A with 0 minutes in breakdown, got %v", stats.Weekly.Breakdown)
	}
}

func TestAggregateTrend(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		prior   float64
		want    Trend
	}{
		{"clear increase", 700, 400, TrendIncreasing},
		{"within relative band", 500, 480, TrendStable},
		{"clear decrease", 400, 700, TrendDecreasing},
		{"small absolute change", 105, 100, TrendStable},
		{"just above absolute band", 111, 100, TrendIncreasing},
		{"no baseline", 300, 0, TrendStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []usage.Entry
			if tt.current > 0 {
				entries = append(entries, entry("A", tt.current/2, 1), entry("A", tt.current/2, 2))
			}
			if tt.prior > 0 {
				entries = append(entries, entry("A", tt.prior/2, 8), entry("A", tt.prior/2, 9))
			}

			stats, err := Aggregate(entries, now)
			if err != nil {
				t.Fatalf("Aggregate failed: %v", err)
			}
			if stats.Weekly.Trend != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, stats.Weekly.Trend)
			}
		})
	}
}

func TestAggregateEmptyCurrentWindowIsStable(t *testing.T) {
	stats, err := Aggregate([]usage.Entry{entry("A", 600, 10)}, now)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if stats.Weekly.Trend != TrendStable {
		t.Errorf("Expected stable, got %s", stats.Weekly.Trend)
	}
	// monthly window still sees the entry
	if stats.Monthly.TotalMinutes != 600 {
		t.Errorf("Expected monthly total 600, got %v", stats.Monthly.TotalMinutes)
	}
}

func TestAggregateRejectsInvalidBatch(t *testing.T) {
	tests := []struct {
		name    string
		entries []usage.Entry
	}{
		{"future date", []usage.Entry{entry("A", 10, 0), entry("A", 10, -1)}},
		{"negative minutes", []usage.Entry{entry("A", -5, 0)}},
		{"over a day", []usage.Entry{entry("A", 1441, 0)}},
		{"infinite minutes", []usage.Entry{entry("A", math.Inf(1), 0)}},
		{"blank app", []usage.Entry{entry("", 10, 0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Aggregate(tt.entries, now)
			if !errors.Is(err, usage.ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestAggregateUsesLocationOfNow(t *testing.T) {
	// 01:00 on the 16th in UTC+2 is still the 15th in UTC
	loc := time.FixedZone("UTC+2", 2*3600)
	local := time.Date(2026, 3, 16, 1, 0, 0, 0, loc)

	entries := []usage.Entry{{AppName: "A", MinutesSpent: 30, Date: usage.NewDate(2026, 3, 16)}}

	if _, err := Aggregate(entries, local); err != nil {
		t.Errorf("Expected the 16th to be today in UTC+2, got %v", err)
	}
	if _, err := Aggregate(entries, local.UTC()); err == nil {
		t.Error("Expected the 16th to be a future date in UTC")
	}
}

func TestAggregateDeterministic(t *testing.T) {
	entries := []usage.Entry{
		entry("A", 12.5, 0),
		entry("B", 99.25, 4),
		entry("C", 300, 12),
		entry("A", 7, 33),
	}

	first, err := Aggregate(entries, now)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Aggregate(entries, now)
		if err != nil {
			t.Fatalf("Aggregate failed: %v", err)
		}
		if again.Weekly.TotalMinutes != first.Weekly.TotalMinutes ||
			again.Monthly.PreviousTotalMinutes != first.Monthly.PreviousTotalMinutes ||
			again.Weekly.Trend != first.Weekly.Trend ||
			len(again.Monthly.Breakdown) != len(first.Monthly.Breakdown) {
			t.Fatalf("Aggregate is not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestEngineAggregateHonorsTrendPolicy(t *testing.T) {
	policy := DefaultPolicy()
	policy.Trend.RelativeTolerance = 0
	policy.Trend.AbsoluteMinutes = 0
	engine := NewEngine(policy)

	stats, err := engine.Aggregate([]usage.Entry{entry("A", 101, 1), entry("A", 100, 8)}, now)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if stats.Weekly.Trend != TrendIncreasing {
		t.Errorf("Expected increasing with zero tolerance, got %s", stats.Weekly.Trend)
	}
}
