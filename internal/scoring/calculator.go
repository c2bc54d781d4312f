package scoring

import (
	"math"

	"github.com/sells-group/leadscore/internal/model"
)

// Calculate scores in against every framework. It is pure: the same input
// and config always produce the same results.
func Calculate(in Input, cfg Config) []model.ScoreResult {
	out := make([]model.ScoreResult, 0, len(model.Frameworks))
	for _, fw := range model.Frameworks {
		out = append(out, CalculateFramework(fw, in, cfg))
	}
	return out
}

// CalculateFramework scores a single framework. The score is the weighted
// sum of factor values divided by 100, rounded and clamped to 0-100.
func CalculateFramework(fw model.Framework, in Input, cfg Config) model.ScoreResult {
	weights := cfg.Weights[fw]
	rules := cfg.Rules[fw]

	factors := make(map[string]float64, len(weights))
	total := 0.0
	for _, name := range sortedFactors(weights) {
		v := clamp(rules[name].Value(in), 0, 100)
		factors[name] = math.Round(v*100) / 100
		total += v * float64(weights[name])
	}

	score := int(clamp(math.Round(total/100), 0, 100))
	return model.ScoreResult{
		Framework: fw,
		Score:     score,
		Tier:      cfg.Thresholds.TierFor(score),
		Factors:   factors,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
