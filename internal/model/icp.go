package model

import "time"

// ICP is an ideal client profile: matching criteria plus criterion weights.
type ICP struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id"`
	Name      string      `json:"name"`
	Criteria  ICPCriteria `json:"criteria"`
	Weights   ICPWeights  `json:"weights"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ICPCriteria are the sets and range a contact is matched against.
// MaxCompanySize of 0 means no upper bound.
type ICPCriteria struct {
	Industries     []string `json:"industries"`
	Personas       []string `json:"personas"`
	MinCompanySize int      `json:"min_company_size"`
	MaxCompanySize int      `json:"max_company_size"`
}

// ICPWeights are integer percentages and must sum to 100.
type ICPWeights struct {
	Industry    int `json:"industry_weight"`
	Persona     int `json:"persona_weight"`
	CompanySize int `json:"company_size_weight"`
}

// Sum returns the total of the three weights.
func (w ICPWeights) Sum() int {
	return w.Industry + w.Persona + w.CompanySize
}

// ICPBreakdown explains which criteria a contact satisfied.
type ICPBreakdown struct {
	IndustryMatch    bool `json:"industry_match"`
	PersonaMatch     bool `json:"persona_match"`
	CompanySizeMatch bool `json:"company_size_match"`
}

// ICPMatch is the match result for one contact.
type ICPMatch struct {
	ContactID string       `json:"id"`
	Score     int          `json:"score"`
	Tier      Tier         `json:"tier"`
	Breakdown ICPBreakdown `json:"breakdown"`
}
