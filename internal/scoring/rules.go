package scoring

import (
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/sells-group/leadscore/internal/model"
)

// RuleKind selects how a factor value is derived from facts.
type RuleKind string

const (
	RuleKeyword      RuleKind = "keyword"
	RuleSize         RuleKind = "size"
	RuleRecency      RuleKind = "recency"
	RulePresence     RuleKind = "presence"
	RuleCompleteness RuleKind = "completeness"
)

// KeywordTier scores text containing any of Keywords.
type KeywordTier struct {
	Keywords []string `json:"keywords" yaml:"keywords"`
	Score    float64  `json:"score" yaml:"score"`
}

// SizeBand scores a company size within [Min, Max]. Max 0 is unbounded.
type SizeBand struct {
	Min   int     `json:"min" yaml:"min"`
	Max   int     `json:"max" yaml:"max"`
	Score float64 `json:"score" yaml:"score"`
}

// Rule maps facts onto a factor value in [0, 100]. Neutral is used when
// the inputs the rule reads are absent.
type Rule struct {
	Kind      RuleKind      `json:"kind" yaml:"kind"`
	Fields    []string      `json:"fields,omitempty" yaml:"fields,omitempty"`
	Tiers     []KeywordTier `json:"tiers,omitempty" yaml:"tiers,omitempty"`
	NoMatch   float64       `json:"no_match,omitempty" yaml:"no_match,omitempty"`
	Bands     []SizeBand    `json:"bands,omitempty" yaml:"bands,omitempty"`
	FreshDays int           `json:"fresh_days,omitempty" yaml:"fresh_days,omitempty"`
	StaleDays int           `json:"stale_days,omitempty" yaml:"stale_days,omitempty"`
	PerItem   float64       `json:"per_item,omitempty" yaml:"per_item,omitempty"`
	Neutral   float64       `json:"neutral" yaml:"neutral"`
}

// Input is everything a calculation reads.
type Input struct {
	Facts   *model.EnrichmentFacts
	Contact *model.Contact
	AsOf    time.Time
}

var folder = cases.Fold()

func fold(s string) string {
	return folder.String(s)
}

// text returns a field from facts, falling back to the contact's raw
// attributes for title, industry, and company size.
func (in Input) text(field string) (string, bool) {
	if v, ok := in.Facts.Text(field); ok {
		return v, true
	}
	if in.Contact == nil {
		return "", false
	}
	var raw string
	switch field {
	case model.FieldTitle:
		raw = in.Contact.Title
	case model.FieldIndustry:
		raw = in.Contact.Industry
	case model.FieldCompanySize:
		raw = in.Contact.CompanySize
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (in Input) companySize() (int, bool) {
	if n, ok := in.Facts.CompanySizeValue(); ok {
		return n, true
	}
	if in.Contact == nil {
		return 0, false
	}
	return model.ParseCompanySize(in.Contact.CompanySize)
}

// Value evaluates the rule against in.
func (r Rule) Value(in Input) float64 {
	switch r.Kind {
	case RuleKeyword:
		return r.keyword(in)
	case RuleSize:
		return r.size(in)
	case RuleRecency:
		return r.recency(in)
	case RulePresence:
		return r.presence(in)
	case RuleCompleteness:
		return float64(in.Facts.Populated()) * 100 / float64(len(model.FactFields))
	default:
		return r.Neutral
	}
}

func (r Rule) keyword(in Input) float64 {
	var parts []string
	for _, f := range r.Fields {
		if v, ok := in.text(f); ok {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return r.Neutral
	}

	text := fold(strings.Join(parts, "\n"))
	best, matched := 0.0, false
	for _, tier := range r.Tiers {
		for _, kw := range tier.Keywords {
			if containsWord(text, fold(kw)) {
				if !matched || tier.Score > best {
					best = tier.Score
				}
				matched = true
				break
			}
		}
	}
	if !matched {
		return r.NoMatch
	}
	return best
}

// containsWord reports whether kw occurs in text starting at a word
// boundary. Keywords may be stems, so the end is not anchored.
func containsWord(text, kw string) bool {
	if kw == "" {
		return false
	}
	for off := 0; off < len(text); {
		i := strings.Index(text[off:], kw)
		if i < 0 {
			return false
		}
		i += off
		if i == 0 {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:i])
		if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
			return true
		}
		off = i + 1
	}
	return false
}

func (r Rule) size(in Input) float64 {
	n, ok := in.companySize()
	if !ok {
		return r.Neutral
	}
	for _, b := range r.Bands {
		if n >= b.Min && (b.Max == 0 || n <= b.Max) {
			return b.Score
		}
	}
	return r.Neutral
}

func (r Rule) recency(in Input) float64 {
	if in.Contact == nil || in.Contact.LastEngagedAt == nil || in.AsOf.IsZero() {
		return r.Neutral
	}
	days := in.AsOf.Sub(*in.Contact.LastEngagedAt).Hours() / 24
	switch {
	case days <= float64(r.FreshDays):
		return 100
	case days >= float64(r.StaleDays):
		return 0
	}
	span := float64(r.StaleDays - r.FreshDays)
	return 100 * (float64(r.StaleDays) - days) / span
}

func (r Rule) presence(in Input) float64 {
	count := 0
	for _, f := range r.Fields {
		n := in.Facts.Count(f)
		if n == 0 {
			if _, ok := in.text(f); ok {
				n = 1
			}
		}
		count += n
	}
	if count == 0 {
		return r.Neutral
	}
	per := r.PerItem
	if per <= 0 {
		per = 100
	}
	return min(100, float64(count)*per)
}

func (r Rule) validate() []string {
	var errs []string
	inRange := func(name string, v float64) {
		if v < 0 || v > 100 {
			errs = append(errs, fmt.Sprintf("%s must be within 0-100, got %g", name, v))
		}
	}
	checkFields := func() {
		if len(r.Fields) == 0 {
			errs = append(errs, "fields required")
		}
		for _, f := range r.Fields {
			if !slices.Contains(model.FactFields, f) {
				errs = append(errs, fmt.Sprintf("unknown field %q", f))
			}
		}
	}

	inRange("neutral", r.Neutral)
	switch r.Kind {
	case RuleKeyword:
		checkFields()
		inRange("no_match", r.NoMatch)
		if len(r.Tiers) == 0 {
			errs = append(errs, "keyword rule needs at least one tier")
		}
		for i, t := range r.Tiers {
			inRange(fmt.Sprintf("tier %d score", i), t.Score)
			if len(t.Keywords) == 0 {
				errs = append(errs, fmt.Sprintf("tier %d has no keywords", i))
			}
		}
	case RuleSize:
		if len(r.Bands) == 0 {
			errs = append(errs, "size rule needs at least one band")
		}
		for i, b := range r.Bands {
			inRange(fmt.Sprintf("band %d score", i), b.Score)
			if b.Min < 0 || (b.Max != 0 && b.Max < b.Min) {
				errs = append(errs, fmt.Sprintf("band %d range %d-%d is invalid", i, b.Min, b.Max))
			}
		}
	case RuleRecency:
		if r.FreshDays < 0 || r.StaleDays <= r.FreshDays {
			errs = append(errs, fmt.Sprintf("recency needs 0 <= fresh_days < stale_days, got %d/%d", r.FreshDays, r.StaleDays))
		}
	case RulePresence:
		checkFields()
		if r.PerItem < 0 || r.PerItem > 100 {
			errs = append(errs, fmt.Sprintf("per_item must be within 0-100, got %g", r.PerItem))
		}
	case RuleCompleteness:
	default:
		errs = append(errs, fmt.Sprintf("unknown rule kind %q", r.Kind))
	}
	return errs
}

func (r Rule) clone() Rule {
	out := r
	out.Fields = slices.Clone(r.Fields)
	out.Bands = slices.Clone(r.Bands)
	if r.Tiers != nil {
		out.Tiers = make([]KeywordTier, len(r.Tiers))
		for i, t := range r.Tiers {
			out.Tiers[i] = KeywordTier{Keywords: slices.Clone(t.Keywords), Score: t.Score}
		}
	}
	return out
}
