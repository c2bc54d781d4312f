// Package store persists contacts, enrichment results, scoring configuration,
// ICPs and score history.
package store

import (
	"context"
	"time"

	"github.com/sells-group/leadscore/internal/model"
)

// ContactFilter specifies criteria for listing contacts.
type ContactFilter struct {
	TenantID string   `json:"tenant_id"`
	IDs      []string `json:"ids,omitempty"`
	Limit    int      `json:"limit,omitempty"`
	Offset   int      `json:"offset,omitempty"`
}

// ScorePoint is one framework score recorded for a contact.
type ScorePoint struct {
	TenantID   string          `json:"tenant_id"`
	ContactID  string          `json:"contact_id"`
	Framework  model.Framework `json:"framework"`
	Score      int             `json:"score"`
	Tier       model.Tier      `json:"tier"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Store defines the persistence interface for enrichment and scoring.
// Lookups of missing contacts and ICPs return an apperr not_found error.
type Store interface {
	// Contacts
	GetContact(ctx context.Context, tenantID, id string) (*model.Contact, error)
	ListContacts(ctx context.Context, filter ContactFilter) ([]model.Contact, error)
	UpsertContact(ctx context.Context, c *model.Contact) (*model.Contact, error)
	UpdateEnrichmentStatus(ctx context.Context, tenantID, id string, status model.JobStatus, reason string) error
	SaveEnrichment(ctx context.Context, tenantID, id string, rec model.EnrichmentRecord) error
	FailInFlight(ctx context.Context, reason string) (int64, error)

	// Scoring configuration, stored as an opaque JSON document per tenant.
	// GetScoringConfig returns nil data when the tenant has none.
	GetScoringConfig(ctx context.Context, tenantID string) ([]byte, error)
	PutScoringConfig(ctx context.Context, tenantID string, data []byte) error

	// ICPs
	GetICP(ctx context.Context, tenantID, id string) (*model.ICP, error)
	PutICP(ctx context.Context, icp *model.ICP) (*model.ICP, error)

	// Score history
	AppendScores(ctx context.Context, points []ScorePoint) (int64, error)
	RecentScores(ctx context.Context, tenantID string, fw model.Framework, limit int) ([]int, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Points flattens a contact's scores into history rows.
func Points(tenantID, contactID string, scores []model.ScoreResult, at time.Time) []ScorePoint {
	out := make([]ScorePoint, 0, len(scores))
	for _, s := range scores {
		out = append(out, ScorePoint{
			TenantID:   tenantID,
			ContactID:  contactID,
			Framework:  s.Framework,
			Score:      s.Score,
			Tier:       s.Tier,
			RecordedAt: at.UTC(),
		})
	}
	return out
}

// DefaultListLimit caps ListContacts when the filter sets no limit.
const DefaultListLimit = 1000

func listLimit(f ContactFilter) int {
	if f.Limit <= 0 || f.Limit > DefaultListLimit {
		return DefaultListLimit
	}
	return f.Limit
}
