package analytics

import (
	"math"
	"strings"
	"time"

	"github.com/platinummonkey/unwind/pkg/usage"
)

// Engine turns a user's usage entries into statistics, a risk score and
// recommendations under a fixed Policy. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	policy Policy
}

// NewEngine creates an engine for the given policy
func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Policy returns the engine's policy
func (e *Engine) Policy() Policy {
	return e.policy
}

var defaultEngine = NewEngine(DefaultPolicy())

// Aggregate computes weekly and monthly stats with the default policy
func Aggregate(entries []usage.Entry, now time.Time) (Stats, error) {
	return defaultEngine.Aggregate(entries, now)
}

// Aggregate buckets entries by day offset from the reference date in a single
// pass and derives both windows and their baselines. The reference date is the
// calendar date of now in now's location. A malformed entry rejects the batch.
func (e *Engine) Aggregate(entries []usage.Entry, now time.Time) (Stats, error) {
	today := usage.DateOf(now)
	if err := usage.Validate(entries, today); err != nil {
		return Stats{}, err
	}

	// index 0 is today, index k is k days ago
	var daily [HistoryDays]float64
	var active [HistoryDays]bool
	weeklyApps := make(map[string]float64)
	monthlyApps := make(map[string]float64)

	for _, entry := range entries {
		offset := today.DaysSince(entry.Date)
		if offset >= HistoryDays {
			continue
		}
		daily[offset] += entry.MinutesSpent
		active[offset] = true
		app := strings.TrimSpace(entry.AppName)
		if offset < WeeklyWindowDays {
			weeklyApps[app] += entry.MinutesSpent
		}
		if offset < MonthlyWindowDays {
			monthlyApps[app] += entry.MinutesSpent
		}
	}

	return Stats{
		Weekly:  e.window(daily[:], active[:], WeeklyWindowDays, weeklyApps, today),
		Monthly: e.window(daily[:], active[:], MonthlyWindowDays, monthlyApps, today),
	}, nil
}

func (e *Engine) window(daily []float64, active []bool, days int, apps map[string]float64, today usage.Date) WindowStats {
	stats := WindowStats{
		Breakdown:  apps,
		WindowDays: days,
		StartDate:  today.AddDays(-(days - 1)),
		EndDate:    today,
		Trend:      TrendStable,
	}

	for i := 0; i < days; i++ {
		stats.TotalMinutes += daily[i]
		if active[i] {
			stats.DaysActive++
		}
		if daily[i] > stats.PeakMinutes {
			stats.PeakMinutes = daily[i]
		}
	}
	for i := days; i < 2*days; i++ {
		stats.PreviousTotalMinutes += daily[i]
	}

	stats.AverageDailyMinutes = stats.TotalMinutes / float64(days)
	if stats.DaysActive > 0 {
		stats.Trend = e.classifyTrend(stats.TotalMinutes, stats.PreviousTotalMinutes)
	}
	return stats
}

// classifyTrend compares a window total against the preceding window. An empty
// baseline is never enough to call a direction.
func (e *Engine) classifyTrend(current, prior float64) Trend {
	if prior <= 0 {
		return TrendStable
	}
	tolerance := math.Max(prior*e.policy.Trend.RelativeTolerance, e.policy.Trend.AbsoluteMinutes)
	diff := current - prior
	switch {
	case diff > tolerance:
		return TrendIncreasing
	case -diff > tolerance:
		return TrendDecreasing
	default:
		return TrendStable
	}
}
