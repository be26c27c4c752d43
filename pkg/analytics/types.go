package analytics

import (
	"time"

	"github.com/platinummonkey/unwind/pkg/usage"
)

// Fixed window lengths in days
const (
	WeeklyWindowDays  = 7
	MonthlyWindowDays = 30

	// MaxRiskValue is the top of the risk scale
	MaxRiskValue = 100

	// HistoryDays is how far back a dashboard needs entries: the monthly
	// window plus its equal-length baseline
	HistoryDays = 2 * MonthlyWindowDays
)

// Trend is the direction of change between two consecutive equal windows
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// RiskLevel buckets a risk value
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// RecommendationType is the closed set of recommendation categories
type RecommendationType string

const (
	TypeUsage     RecommendationType = "usage"
	TypeAwareness RecommendationType = "awareness"
	TypeBalance   RecommendationType = "balance"
	TypeBreak     RecommendationType = "break"
	TypeTrend     RecommendationType = "trend"
	TypePositive  RecommendationType = "positive"
	TypeVariety   RecommendationType = "variety"
	TypePeak      RecommendationType = "peak"
	TypeGeneral   RecommendationType = "general"
)

// Priority of a recommendation
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// WindowStats summarizes one fixed-length window ending on the reference date
type WindowStats struct {
	TotalMinutes         float64            `json:"totalMinutes"`
	AverageDailyMinutes  float64            `json:"averageDailyMinutes"`
	DaysActive           int                `json:"daysActive"`
	Trend                Trend              `json:"trend"`
	PeakMinutes          float64            `json:"peakMinutes"`
	Breakdown            map[string]float64 `json:"breakdown"`
	WindowDays           int                `json:"windowDays"`
	StartDate            usage.Date         `json:"startDate"`
	EndDate              usage.Date         `json:"endDate"`
	PreviousTotalMinutes float64            `json:"previousTotalMinutes"`
}

// Stats is the aggregator output
type Stats struct {
	Weekly  WindowStats `json:"weeklyStats"`
	Monthly WindowStats `json:"monthlyStats"`
}

// RiskScore is the 0-100 engagement score and its level
type RiskScore struct {
	Value float64   `json:"value"`
	Level RiskLevel `json:"level"`
}

// Recommendation is one behavioral suggestion
type Recommendation struct {
	Type       RecommendationType `json:"type"`
	Priority   Priority           `json:"priority"`
	Title      string             `json:"title"`
	Message    string             `json:"message"`
	Actionable bool               `json:"actionable"`
}

// Assessment is the engine output
type Assessment struct {
	RiskScore       RiskScore        `json:"riskScore"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Dashboard is everything the analytics endpoints serve for one user and day
type Dashboard struct {
	RiskScore           RiskScore        `json:"riskScore"`
	WeeklyStats         WindowStats      `json:"weeklyStats"`
	MonthlyStats        WindowStats      `json:"monthlyStats"`
	Recommendations     []Recommendation `json:"recommendations"`
	MotivationalMessage string           `json:"motivationalMessage"`
	GeneratedFor        usage.Date       `json:"generatedFor"`
}

// Snapshot is a persisted daily risk record
type Snapshot struct {
	UserID              int64      `json:"userId"`
	Date                usage.Date `json:"date"`
	Value               float64    `json:"value"`
	Level               RiskLevel  `json:"level"`
	WeeklyTotalMinutes  float64    `json:"weeklyTotalMinutes"`
	AverageDailyMinutes float64    `json:"averageDailyMinutes"`
	Trend               Trend      `json:"trend"`
	CreatedAt           time.Time  `json:"createdAt"`
}
