package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Fact field names as they appear in provider payloads and scoring rule tables.
const (
	FieldSummary             = "summary"
	FieldTitle               = "title"
	FieldSeniority           = "seniority"
	FieldCompanySize         = "company_size"
	FieldIndustry            = "industry"
	FieldTalkingPoints       = "talking_points"
	FieldRecentNews          = "recent_news"
	FieldRecommendedApproach = "recommended_approach"
	FieldPersonaType         = "persona_type"
	FieldVertical            = "vertical"
)

// FactFields lists every known fact field in canonical order.
var FactFields = []string{
	FieldSummary,
	FieldTitle,
	FieldSeniority,
	FieldCompanySize,
	FieldIndustry,
	FieldTalkingPoints,
	FieldRecentNews,
	FieldRecommendedApproach,
	FieldPersonaType,
	FieldVertical,
}

// EnrichmentFacts is the provider-agnostic result of enriching a contact.
// Scalar fields are nil when no provider supplied them.
type EnrichmentFacts struct {
	Summary             *string  `json:"summary,omitempty"`
	Title               *string  `json:"title,omitempty"`
	Seniority           *string  `json:"seniority,omitempty"`
	CompanySize         *string  `json:"company_size,omitempty"`
	Industry            *string  `json:"industry,omitempty"`
	TalkingPoints       []string `json:"talking_points,omitempty"`
	RecentNews          []string `json:"recent_news,omitempty"`
	RecommendedApproach *string  `json:"recommended_approach,omitempty"`
	PersonaType         *string  `json:"persona_type,omitempty"`
	Vertical            *string  `json:"vertical,omitempty"`

	// Extra holds provider keys outside the known field set.
	Extra map[string]json.RawMessage `json:"extra,omitempty"`

	// Sources names the providers that contributed to these facts.
	Sources []string `json:"sources,omitempty"`
}

// Scalar returns a pointer to the named scalar field, or nil if name is not scalar.
func (f *EnrichmentFacts) Scalar(name string) **string {
	switch name {
	case FieldSummary:
		return &f.Summary
	case FieldTitle:
		return &f.Title
	case FieldSeniority:
		return &f.Seniority
	case FieldCompanySize:
		return &f.CompanySize
	case FieldIndustry:
		return &f.Industry
	case FieldRecommendedApproach:
		return &f.RecommendedApproach
	case FieldPersonaType:
		return &f.PersonaType
	case FieldVertical:
		return &f.Vertical
	default:
		return nil
	}
}

// List returns a pointer to the named list field, or nil if name is not a list.
func (f *EnrichmentFacts) List(name string) *[]string {
	switch name {
	case FieldTalkingPoints:
		return &f.TalkingPoints
	case FieldRecentNews:
		return &f.RecentNews
	default:
		return nil
	}
}

// Text returns the trimmed text for a field and whether it is present.
// List fields are joined with newlines.
func (f *EnrichmentFacts) Text(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	if p := f.Scalar(name); p != nil {
		if *p == nil {
			return "", false
		}
		v := strings.TrimSpace(**p)
		return v, v != ""
	}
	if l := f.List(name); l != nil {
		items := nonEmpty(*l)
		if len(items) == 0 {
			return "", false
		}
		return strings.Join(items, "\n"), true
	}
	return "", false
}

// Count returns the number of non-empty items for a list field, or 1/0 for a
// present/absent scalar field.
func (f *EnrichmentFacts) Count(name string) int {
	if f == nil {
		return 0
	}
	if l := f.List(name); l != nil {
		return len(nonEmpty(*l))
	}
	if _, ok := f.Text(name); ok {
		return 1
	}
	return 0
}

// Populated returns how many known fields carry a value.
func (f *EnrichmentFacts) Populated() int {
	n := 0
	for _, name := range FactFields {
		if _, ok := f.Text(name); ok {
			n++
		}
	}
	return n
}

// Empty reports whether no known field carries a value.
func (f *EnrichmentFacts) Empty() bool {
	return f == nil || f.Populated() == 0
}

// CompanySizeValue parses the company size fact into an employee count.
// Ranges such as "51-200" resolve to their lower bound, "1,000+" to 1000.
func (f *EnrichmentFacts) CompanySizeValue() (int, bool) {
	v, ok := f.Text(FieldCompanySize)
	if !ok {
		return 0, false
	}
	return ParseCompanySize(v)
}

// ParseCompanySize extracts the first integer from a free-form company size.
func ParseCompanySize(s string) (int, bool) {
	s = strings.ReplaceAll(s, ",", "")
	start := -1
	for i, r := range s {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return atoi(s[start:i])
		}
	}
	if start >= 0 {
		return atoi(s[start:])
	}
	return 0, false
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// String returns a pointer to s, or nil if s is blank.
func String(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
