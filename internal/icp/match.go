// Package icp scores contacts against ideal client profiles.
package icp

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
)

var folder = cases.Fold()

func key(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// Attributes are the contact values an ICP is matched on. Enriched facts
// take precedence over raw contact attributes.
type Attributes struct {
	Industries  []string
	Personas    []string
	CompanySize int
	HasSize     bool
}

// AttributesOf collects match attributes from a contact and its facts.
func AttributesOf(c *model.Contact) Attributes {
	var a Attributes
	add := func(dst *[]string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = append(*dst, v)
		}
	}

	if v, ok := c.Facts.Text(model.FieldIndustry); ok {
		add(&a.Industries, v)
	}
	if v, ok := c.Facts.Text(model.FieldVertical); ok {
		add(&a.Industries, v)
	}
	add(&a.Industries, c.Industry)

	if v, ok := c.Facts.Text(model.FieldPersonaType); ok {
		add(&a.Personas, v)
	}
	if len(a.Personas) == 0 {
		add(&a.Personas, c.Title)
	}

	if n, ok := c.Facts.CompanySizeValue(); ok {
		a.CompanySize, a.HasSize = n, true
	} else if n, ok := model.ParseCompanySize(c.CompanySize); ok {
		a.CompanySize, a.HasSize = n, true
	}
	return a
}

// Match scores attrs against p. The breakdown is always populated.
func Match(attrs Attributes, p model.ICP, th model.Thresholds) (int, model.Tier, model.ICPBreakdown) {
	b := model.ICPBreakdown{
		IndustryMatch:    anyIn(attrs.Industries, p.Criteria.Industries),
		PersonaMatch:     anyIn(attrs.Personas, p.Criteria.Personas),
		CompanySizeMatch: attrs.HasSize && inRange(attrs.CompanySize, p.Criteria.MinCompanySize, p.Criteria.MaxCompanySize),
	}

	score := 0
	if b.IndustryMatch {
		score += p.Weights.Industry
	}
	if b.PersonaMatch {
		score += p.Weights.Persona
	}
	if b.CompanySizeMatch {
		score += p.Weights.CompanySize
	}
	score = max(0, min(100, score))
	return score, th.TierFor(score), b
}

// MatchContact is Match over AttributesOf(c).
func MatchContact(c *model.Contact, p model.ICP, th model.Thresholds) model.ICPMatch {
	score, tier, b := Match(AttributesOf(c), p, th)
	return model.ICPMatch{ContactID: c.ID, Score: score, Tier: tier, Breakdown: b}
}

func anyIn(values, set []string) bool {
	for _, v := range values {
		k := key(v)
		for _, s := range set {
			if key(s) == k {
				return true
			}
		}
	}
	return false
}

func inRange(n, lo, hi int) bool {
	return n >= lo && (hi == 0 || n <= hi)
}

// Validate checks an ICP definition before it is stored.
func Validate(p model.ICP) error {
	var errs []string
	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, "name is required")
	}
	w := p.Weights
	inBounds := true
	for _, f := range []struct {
		name  string
		value int
	}{{"industry", w.Industry}, {"persona", w.Persona}, {"company_size", w.CompanySize}} {
		if f.value < 0 || f.value > 100 {
			inBounds = false
			errs = append(errs, fmt.Sprintf("%s weight must be between 0 and 100, got %d", f.name, f.value))
		}
	}
	if sum := w.Sum(); inBounds && sum != 100 {
		errs = append(errs, fmt.Sprintf("icp weights must sum to 100, got %d", sum))
	}
	c := p.Criteria
	if c.MinCompanySize < 0 {
		errs = append(errs, "min_company_size must be >= 0")
	}
	if c.MaxCompanySize != 0 && c.MaxCompanySize < c.MinCompanySize {
		errs = append(errs, fmt.Sprintf("max_company_size %d is below min_company_size %d", c.MaxCompanySize, c.MinCompanySize))
	}
	if len(errs) > 0 {
		return apperr.Validation("invalid icp", errs...)
	}
	return nil
}
