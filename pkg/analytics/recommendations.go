package analytics

// ruleInput is what every recommendation rule sees
type ruleInput struct {
	risk        RiskScore
	weekly      WindowStats
	monthly     WindowStats
	peakMinutes float64
	policy      RecommendationPolicy

	// fired counts recommendations produced by earlier rules
	fired int
}

type rule struct {
	name  string
	guard func(in ruleInput) bool
	build func(in ruleInput) []Recommendation
}

// rules are evaluated top to bottom; output keeps this order
var rules = []rule{
	{
		name:  "high-risk",
		guard: func(in ruleInput) bool { return in.risk.Level == RiskHigh },
		build: func(ruleInput) []Recommendation {
			return []Recommendation{
				{
					Type:       TypeUsage,
					Priority:   PriorityHigh,
					Title:      "Consider Setting Time Boundaries",
					Message:    "Your usage patterns suggest frequent engagement. You might benefit from setting specific time limits or break reminders during your most active hours.",
					Actionable: true,
				},
				{
					Type:       TypeAwareness,
					Priority:   PriorityHigh,
					Title:      "Track Your Peak Hours",
					Message:    "You're most active during peak usage periods. Being aware of these patterns can help you make more intentional choices about when to engage.",
					Actionable: false,
				},
			}
		},
	},
	{
		name:  "moderate-risk",
		guard: func(in ruleInput) bool { return in.risk.Level == RiskModerate },
		build: single(Recommendation{
			Type:       TypeBalance,
			Priority:   PriorityMedium,
			Title:      "Maintain Healthy Balance",
			Message:    "Your usage is moderate. Consider maintaining awareness and setting gentle reminders to ensure your engagement remains balanced with other activities.",
			Actionable: true,
		}),
	},
	{
		name:  "long-average",
		guard: func(in ruleInput) bool { return in.weekly.AverageDailyMinutes > in.policy.BreakAverageMinutes },
		build: single(Recommendation{
			Type:       TypeBreak,
			Priority:   PriorityMedium,
			Title:      "Take Regular Breaks",
			Message:    "Consider incorporating short breaks between sessions. Even 5-10 minute breaks can help refresh your focus.",
			Actionable: true,
		}),
	},
	{
		name:  "increasing-trend",
		guard: func(in ruleInput) bool { return in.weekly.Trend == TrendIncreasing },
		build: single(Recommendation{
			Type:       TypeTrend,
			Priority:   PriorityMedium,
			Title:      "Notice Usage Trends",
			Message:    "Your usage has been increasing recently. This might be a good time to reflect on your goals and set some gentle boundaries if needed.",
			Actionable: true,
		}),
	},
	{
		name:  "decreasing-trend",
		guard: func(in ruleInput) bool { return in.weekly.Trend == TrendDecreasing },
		build: single(Recommendation{
			Type:       TypePositive,
			Priority:   PriorityLow,
			Title:      "Great Progress!",
			Message:    "You've been reducing your usage recently. Keep up the awareness and continue making choices that align with your goals.",
			Actionable: false,
		}),
	},
	{
		name:  "daily-engagement",
		guard: func(in ruleInput) bool { return in.weekly.DaysActive == WeeklyWindowDays },
		build: single(Recommendation{
			Type:       TypeVariety,
			Priority:   PriorityMedium,
			Title:      "Diversify Your Activities",
			Message:    "You engage daily. Consider exploring other activities or hobbies on some days to create variety in your routine.",
			Actionable: true,
		}),
	},
	{
		name:  "high-peak-day",
		guard: func(in ruleInput) bool { return in.peakMinutes > in.policy.PeakDayMinutes },
		build: single(Recommendation{
			Type:       TypePeak,
			Priority:   PriorityHigh,
			Title:      "Manage High-Usage Days",
			Message:    "Some days show particularly high usage. You might find it helpful to plan alternative activities for days when you notice you're spending extended time.",
			Actionable: true,
		}),
	},
	{
		name:  "fallback",
		guard: func(in ruleInput) bool { return in.fired == 0 },
		build: single(Recommendation{
			Type:       TypeGeneral,
			Priority:   PriorityLow,
			Title:      "Stay Mindful",
			Message:    "Regular tracking helps build awareness. Continue monitoring your patterns and make adjustments that feel right for you.",
			Actionable: false,
		}),
	},
}

func single(r Recommendation) func(ruleInput) []Recommendation {
	return func(ruleInput) []Recommendation {
		return []Recommendation{r}
	}
}

// RuleNames lists the recommendation rules in evaluation order
func RuleNames() []string {
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.name
	}
	return names
}

// Recommend runs the rule table. The result holds at most one recommendation
// per type, is capped at the policy maximum and is never empty.
func (e *Engine) Recommend(risk RiskScore, weekly, monthly WindowStats, peakMinutes float64) []Recommendation {
	in := ruleInput{
		risk:        risk,
		weekly:      weekly,
		monthly:     monthly,
		peakMinutes: peakMinutes,
		policy:      e.policy.Recommendations,
	}

	var out []Recommendation
	seen := make(map[RecommendationType]bool)
	for _, r := range rules {
		if !r.guard(in) {
			continue
		}
		for _, rec := range r.build(in) {
			in.fired++
			if seen[rec.Type] {
				continue
			}
			seen[rec.Type] = true
			out = append(out, rec)
		}
	}

	if limit := e.policy.Recommendations.Max; len(out) > limit {
		out = out[:limit]
	}
	return out
}
