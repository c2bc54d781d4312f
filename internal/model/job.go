package model

import "time"

// JobStatus represents the enrichment state of a contact.
type JobStatus string

const (
	// JobStatusNone means the contact has never been enriched.
	JobStatusNone       JobStatus = ""
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// InFlight reports whether the status blocks a new enqueue for the same contact.
func (s JobStatus) InFlight() bool {
	return s == JobStatusPending || s == JobStatusProcessing
}

// Terminal reports whether the status ends a job's lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusNone, JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// EnrichmentJob tracks one enrichment request for a contact.
type EnrichmentJob struct {
	ID          string           `json:"id"`
	TenantID    string           `json:"tenant_id"`
	ContactID   string           `json:"contact_id"`
	Priority    int              `json:"priority"`
	Status      JobStatus        `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	FinishedAt  *time.Time       `json:"finished_at,omitempty"`
	Error       string           `json:"error,omitempty"`
	CostUSD     float64          `json:"cost_usd,omitempty"`
	Facts       *EnrichmentFacts `json:"facts,omitempty"`
	Scores      []ScoreResult    `json:"scores,omitempty"`
}

// JobKey identifies the single in-flight slot of a contact within a tenant.
type JobKey struct {
	TenantID  string
	ContactID string
}

// Key returns the in-flight slot key for the job.
func (j *EnrichmentJob) Key() JobKey {
	return JobKey{TenantID: j.TenantID, ContactID: j.ContactID}
}
