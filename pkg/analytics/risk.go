package analytics

import "math"

// Score computes the risk score from weekly stats and the peak single-day total
func (e *Engine) Score(weekly WindowStats, peakMinutes float64) RiskScore {
	p := e.policy.Risk

	value := p.AverageWeight*saturate(weekly.AverageDailyMinutes/p.AverageSaturationMinutes) +
		p.DaysActiveWeight*saturate(float64(weekly.DaysActive)/WeeklyWindowDays) +
		p.PeakWeight*saturate(peakMinutes/p.PeakSaturationMinutes)

	value = math.Round(math.Max(0, math.Min(MaxRiskValue, value)))

	return RiskScore{
		Value: value,
		Level: p.LevelFor(value),
	}
}

// LevelFor maps a value onto low / moderate / high. Both thresholds belong to
// the moderate band.
func (p RiskPolicy) LevelFor(value float64) RiskLevel {
	switch {
	case value < p.ModerateThreshold:
		return RiskLow
	case value > p.HighThreshold:
		return RiskHigh
	default:
		return RiskModerate
	}
}

// saturate clamps a ratio into [0, 1]
func saturate(ratio float64) float64 {
	if math.IsNaN(ratio) || ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}

var motivationalMessages = map[RiskLevel]string{
	RiskLow:      "Your usage patterns are well-balanced. Keep up the great awareness!",
	RiskModerate: "You're maintaining moderate engagement. Continue being mindful of your patterns.",
	RiskHigh:     "Your usage patterns show frequent engagement. Awareness is the first step toward intentional choices. You've got this!",
}

// MotivationalMessage returns the encouragement shown next to a risk level.
// Unknown levels get the low-level message.
func MotivationalMessage(level RiskLevel) string {
	if msg, ok := motivationalMessages[level]; ok {
		return msg
	}
	return motivationalMessages[RiskLow]
}
