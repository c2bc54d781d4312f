package provider

import (
	"fmt"
	"strings"

	"github.com/sells-group/leadscore/internal/model"
)

// SystemPrompt instructs every provider to answer with the facts document.
const SystemPrompt = `You are a B2B sales research assistant. Research the contact and
their company using public information and answer with ONE JSON object only, no prose.

Keys (omit a key or use null when unknown, never guess):
- summary: 2-3 sentence professional summary of the contact
- title: current job title
- seniority: one of c-level, vp, director, manager, individual contributor
- company_size: employee count or range, e.g. "51-200"
- industry: the company's primary industry
- vertical: a narrower market vertical
- persona_type: one of decision-maker, champion, influencer, evaluator, end-user, gatekeeper
- talking_points: up to 5 short conversation openers
- recent_news: up to 5 recent company or contact news items
- recommended_approach: one or two sentences on how to engage`

// BuildPrompt renders the per-contact user prompt from raw attributes.
func BuildPrompt(c *model.Contact) string {
	var b strings.Builder
	b.WriteString("Research this contact:\n")
	line := func(label, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fmt.Fprintf(&b, "- %s: %s\n", label, v)
		}
	}
	line("Name", c.Name)
	line("Email", c.Email)
	line("Company", c.Company)
	line("Title", c.Title)
	line("Industry", c.Industry)
	line("Company size", c.CompanySize)
	line("LinkedIn", c.LinkedInURL)
	line("Website", c.WebsiteURL)
	return b.String()
}

// FactsSchema is the JSON schema of the facts document.
func FactsSchema() map[string]any {
	str := map[string]any{"type": "string"}
	list := map[string]any{"type": "array", "items": str, "maxItems": MaxListItems}
	props := map[string]any{}
	for _, f := range model.FactFields {
		switch f {
		case model.FieldTalkingPoints, model.FieldRecentNews:
			props[f] = list
		default:
			props[f] = str
		}
	}
	return map[string]any{"type": "object", "properties": props}
}
