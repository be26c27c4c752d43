package analytics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the tunable parameter set behind scoring, trend detection and the
// recommendation rules. DefaultPolicy returns the shipped values.
type Policy struct {
	Risk            RiskPolicy           `yaml:"risk"`
	Trend           TrendPolicy          `yaml:"trend"`
	Recommendations RecommendationPolicy `yaml:"recommendations"`
}

// RiskPolicy weights the three score components. The weights sum to the
// maximum score (100); each component saturates at its configured point.
type RiskPolicy struct {
	AverageWeight            float64 `yaml:"average_weight"`
	AverageSaturationMinutes float64 `yaml:"average_saturation_minutes"`
	DaysActiveWeight         float64 `yaml:"days_active_weight"`
	PeakWeight               float64 `yaml:"peak_weight"`
	PeakSaturationMinutes    float64 `yaml:"peak_saturation_minutes"`

	// value < ModerateThreshold is low, value > HighThreshold is high,
	// everything in between (inclusive) is moderate
	ModerateThreshold float64 `yaml:"moderate_threshold"`
	HighThreshold     float64 `yaml:"high_threshold"`
}

// TrendPolicy sets the stable band around the prior window's total.
// The band is the wider of the relative and absolute tolerances.
type TrendPolicy struct {
	RelativeTolerance float64 `yaml:"relative_tolerance"`
	AbsoluteMinutes   float64 `yaml:"absolute_minutes"`
}

// RecommendationPolicy holds rule guard thresholds and the output cap
type RecommendationPolicy struct {
	BreakAverageMinutes float64 `yaml:"break_average_minutes"`
	PeakDayMinutes      float64 `yaml:"peak_day_minutes"`
	Max                 int     `yaml:"max"`
}

// DefaultPolicy returns the shipped policy table
func DefaultPolicy() Policy {
	return Policy{
		Risk: RiskPolicy{
			AverageWeight:            50,
			AverageSaturationMinutes: 360,
			DaysActiveWeight:         20,
			PeakWeight:               30,
			PeakSaturationMinutes:    480,
			ModerateThreshold:        34,
			HighThreshold:            66,
		},
		Trend: TrendPolicy{
			RelativeTolerance: 0.05,
			AbsoluteMinutes:   10,
		},
		Recommendations: RecommendationPolicy{
			BreakAverageMinutes: 240,
			PeakDayMinutes:      360,
			Max:                 5,
		},
	}
}

// Validate rejects policies that would produce scores outside [0, 100] or
// overlapping level bands
func (p Policy) Validate() error {
	r := p.Risk
	if r.AverageWeight < 0 || r.DaysActiveWeight < 0 || r.PeakWeight < 0 {
		return fmt.Errorf("risk weights must not be negative")
	}
	if sum := r.AverageWeight + r.DaysActiveWeight + r.PeakWeight; sum > MaxRiskValue {
		return fmt.Errorf("risk weights sum to %.1f, must not exceed %d", sum, MaxRiskValue)
	}
	if r.AverageSaturationMinutes <= 0 || r.PeakSaturationMinutes <= 0 {
		return fmt.Errorf("saturation points must be positive")
	}
	if r.ModerateThreshold <= 0 || r.ModerateThreshold > r.HighThreshold || r.HighThreshold >= MaxRiskValue {
		return fmt.Errorf("level thresholds must satisfy 0 < moderate <= high < %d", MaxRiskValue)
	}
	if p.Trend.RelativeTolerance < 0 || p.Trend.AbsoluteMinutes < 0 {
		return fmt.Errorf("trend tolerances must not be negative")
	}
	if p.Recommendations.Max <= 0 {
		return fmt.Errorf("recommendations.max must be positive")
	}
	return nil
}

// LoadPolicyFile reads a YAML policy. Keys absent from the file keep their
// default values.
func LoadPolicyFile(path string) (Policy, error) {
	policy := DefaultPolicy()

	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("failed to read policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return DefaultPolicy(), fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return DefaultPolicy(), fmt.Errorf("invalid policy file %s: %w", path, err)
	}
	return policy, nil
}
