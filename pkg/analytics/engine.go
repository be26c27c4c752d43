package analytics

import (
	"time"

	"github.com/platinummonkey/unwind/pkg/usage"
)

// ScoreAndRecommend scores and recommends with the default policy
func ScoreAndRecommend(weekly, monthly WindowStats, peakMinutes float64) Assessment {
	return defaultEngine.ScoreAndRecommend(weekly, monthly, peakMinutes)
}

// ScoreAndRecommend produces the risk score and recommendation list for one
// user. Monthly stats are passed to the rules but do not move the score.
func (e *Engine) ScoreAndRecommend(weekly, monthly WindowStats, peakMinutes float64) Assessment {
	risk := e.Score(weekly, peakMinutes)
	return Assessment{
		RiskScore:       risk,
		Recommendations: e.Recommend(risk, weekly, monthly, peakMinutes),
	}
}

// Dashboard aggregates entries and assesses the weekly window in one step
func (e *Engine) Dashboard(entries []usage.Entry, now time.Time) (*Dashboard, error) {
	stats, err := e.Aggregate(entries, now)
	if err != nil {
		return nil, err
	}

	assessment := e.ScoreAndRecommend(stats.Weekly, stats.Monthly, stats.Weekly.PeakMinutes)

	return &Dashboard{
		RiskScore:           assessment.RiskScore,
		WeeklyStats:         stats.Weekly,
		MonthlyStats:        stats.Monthly,
		Recommendations:     assessment.Recommendations,
		MotivationalMessage: MotivationalMessage(assessment.RiskScore.Level),
		GeneratedFor:        usage.DateOf(now),
	}, nil
}
