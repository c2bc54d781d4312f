// Package scoring implements the weighted lead-scoring frameworks.
package scoring

import (
	"fmt"
	"os"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
)

// Weights maps factor name to an integer percentage.
type Weights map[string]int

// Config is a tenant's complete scoring configuration. It is passed
// explicitly into every calculation.
type Config struct {
	Weights    map[model.Framework]Weights         `json:"weights" yaml:"weights"`
	Rules      map[model.Framework]map[string]Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	Thresholds model.Thresholds                    `json:"thresholds" yaml:"thresholds"`
}

// Update is a partial configuration change. Frameworks absent from Weights
// or Rules keep their current values.
type Update struct {
	Weights    map[model.Framework]Weights         `json:"weights" yaml:"weights"`
	Rules      map[model.Framework]map[string]Rule `json:"rules,omitempty" yaml:"rules,omitempty"`
	Thresholds *model.Thresholds                   `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// WeightSum returns the sum of a framework's weights.
func WeightSum(w Weights) int {
	sum := 0
	for _, v := range w {
		sum += v
	}
	return sum
}

// Apply returns base with u merged on top. base is not modified.
func Apply(base Config, u Update) Config {
	out := base.Clone()
	for fw, w := range u.Weights {
		out.Weights[fw] = cloneWeights(w)
	}
	for fw, rules := range u.Rules {
		out.Rules[fw] = cloneRules(rules)
	}
	if u.Thresholds != nil {
		out.Thresholds = *u.Thresholds
	}
	return out
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := Config{
		Weights:    make(map[model.Framework]Weights, len(c.Weights)),
		Rules:      make(map[model.Framework]map[string]Rule, len(c.Rules)),
		Thresholds: c.Thresholds,
	}
	for fw, w := range c.Weights {
		out.Weights[fw] = cloneWeights(w)
	}
	for fw, rules := range c.Rules {
		out.Rules[fw] = cloneRules(rules)
	}
	return out
}

func cloneWeights(w Weights) Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

func cloneRules(rules map[string]Rule) map[string]Rule {
	out := make(map[string]Rule, len(rules))
	for k, r := range rules {
		out[k] = r.clone()
	}
	return out
}

// ValidateConfig checks every invariant of a scoring configuration and
// reports all violations at once.
func ValidateConfig(c Config) error {
	var errs []string

	for fw := range c.Weights {
		if !fw.Valid() {
			errs = append(errs, fmt.Sprintf("unknown framework %q", fw))
		}
	}
	for fw := range c.Rules {
		if !fw.Valid() {
			errs = append(errs, fmt.Sprintf("unknown framework %q in rules", fw))
		}
	}

	for _, fw := range model.Frameworks {
		w, ok := c.Weights[fw]
		if !ok || len(w) == 0 {
			errs = append(errs, fmt.Sprintf("%s: no weights configured", fw))
			continue
		}

		inBounds := true
		for _, factor := range sortedFactors(w) {
			if w[factor] < 0 || w[factor] > 100 {
				inBounds = false
				errs = append(errs, fmt.Sprintf("%s.%s weight must be between 0 and 100, got %d", fw, factor, w[factor]))
			}
			rule, ok := c.Rules[fw][factor]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s.%s has no rule table", fw, factor))
				continue
			}
			for _, msg := range rule.validate() {
				errs = append(errs, fmt.Sprintf("%s.%s: %s", fw, factor, msg))
			}
		}

		if !inBounds {
			continue
		}
		if sum := WeightSum(w); sum != 100 {
			errs = append(errs, fmt.Sprintf("%s weights must sum to 100, got %d", fw, sum))
		}
	}

	th := c.Thresholds
	if th.Warm <= 0 || th.Hot > 100 || th.Warm >= th.Hot {
		errs = append(errs, fmt.Sprintf("thresholds must satisfy 0 < warm < hot <= 100, got warm=%d hot=%d", th.Warm, th.Hot))
	}

	if len(errs) > 0 {
		return apperr.Validation("invalid scoring config", errs...)
	}
	return nil
}

func sortedFactors(w Weights) []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadConfig reads a scoring configuration from a YAML file. Frameworks the
// file omits fall back to DefaultConfig. The merged result must validate.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, eris.Wrapf(err, "scoring: read config %s", path)
	}

	// The YAML has a top-level "scoring" key.
	var wrapper struct {
		Scoring Update `yaml:"scoring"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Config{}, eris.Wrap(err, "scoring: parse config")
	}

	cfg := Apply(DefaultConfig(), wrapper.Scoring)
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, eris.Wrapf(err, "scoring: validate %s", path)
	}
	return cfg, nil
}

// Factors returns the weighted factors of a framework in sorted order.
func (c Config) Factors(fw model.Framework) []string {
	keys := sortedFactors(c.Weights[fw])
	return slices.Clip(keys)
}
