package model

import "time"

// DefaultTenant is used when a request names no tenant.
const DefaultTenant = "default"

// Contact is a sales contact owned by the contact store. The enrichment
// service reads the raw attributes and writes the enrichment fields.
type Contact struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`

	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	Company     string `json:"company,omitempty"`
	Title       string `json:"title,omitempty"`
	Phone       string `json:"phone,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
	WebsiteURL  string `json:"website_url,omitempty"`
	Industry    string `json:"industry,omitempty"`
	CompanySize string `json:"company_size,omitempty"`

	EnrichmentStatus JobStatus        `json:"enrichment_status"`
	EnrichmentError  string           `json:"enrichment_error,omitempty"`
	Facts            *EnrichmentFacts `json:"facts,omitempty"`
	Scores           []ScoreResult    `json:"scores,omitempty"`
	LastEnrichedAt   *time.Time       `json:"last_enriched_at,omitempty"`
	LastEngagedAt    *time.Time       `json:"last_engaged_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EnrichmentRecord is what a completed job writes back to the contact.
type EnrichmentRecord struct {
	Facts      *EnrichmentFacts `json:"facts"`
	Scores     []ScoreResult    `json:"scores"`
	EnrichedAt time.Time        `json:"enriched_at"`
	CostUSD    float64          `json:"cost_usd"`
}
