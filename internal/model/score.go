package model

// Framework names a weighted scoring model.
type Framework string

const (
	// FrameworkLeadScore is the composite, primary score.
	FrameworkLeadScore     Framework = "lead_score"
	FrameworkQualification Framework = "qualification"
	FrameworkBANT          Framework = "bant"
	FrameworkSPIN          Framework = "spin"
)

// Frameworks lists every framework in reporting order.
var Frameworks = []Framework{
	FrameworkLeadScore,
	FrameworkQualification,
	FrameworkBANT,
	FrameworkSPIN,
}

// Valid reports whether f is a known framework.
func (f Framework) Valid() bool {
	for _, k := range Frameworks {
		if f == k {
			return true
		}
	}
	return false
}

// Tier classifies a score.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Thresholds holds the closed lower bounds for the hot and warm tiers.
type Thresholds struct {
	Hot  int `json:"hot" yaml:"hot"`
	Warm int `json:"warm" yaml:"warm"`
}

// DefaultThresholds returns the canonical 71/40 tier bounds.
func DefaultThresholds() Thresholds {
	return Thresholds{Hot: 71, Warm: 40}
}

// TierFor classifies score, checking the highest tier first.
func (t Thresholds) TierFor(score int) Tier {
	switch {
	case score >= t.Hot:
		return TierHot
	case score >= t.Warm:
		return TierWarm
	default:
		return TierCold
	}
}

// ScoreResult is the outcome of one framework for one contact.
type ScoreResult struct {
	Framework Framework `json:"framework"`
	Score     int       `json:"score"`
	Tier      Tier      `json:"tier"`

	// Factors holds the 0-100 sub-score of each weighted factor.
	Factors map[string]float64 `json:"factors,omitempty"`
}

// FindScore returns the result for framework f, if present.
func FindScore(results []ScoreResult, f Framework) (ScoreResult, bool) {
	for _, r := range results {
		if r.Framework == f {
			return r, true
		}
	}
	return ScoreResult{}, false
}
