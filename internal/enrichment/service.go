// Package enrichment connects the job queue to the provider orchestrator,
// the score calculator and the store.
package enrichment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/orchestrator"
	"github.com/sells-group/leadscore/internal/queue"
	"github.com/sells-group/leadscore/internal/scoring"
	"github.com/sells-group/leadscore/internal/store"
)

// Enricher produces facts for a contact.
type Enricher interface {
	Enrich(ctx context.Context, c *model.Contact) (*orchestrator.Outcome, error)
}

// Service runs enrichment jobs and answers status reads.
type Service struct {
	store    store.Store
	queue    *queue.Queue
	enricher Enricher
	configs  *scoring.ConfigStore
	now      func() time.Time
	// pageSize bounds each ListContacts call during ICP matching.
	pageSize int
}

// New creates a Service.
func New(st store.Store, q *queue.Queue, enricher Enricher, configs *scoring.ConfigStore) *Service {
	return &Service{
		store:    st,
		queue:    q,
		enricher: enricher,
		configs:  configs,
		now:      time.Now,
		pageSize: store.DefaultListLimit,
	}
}

// Status is the pollable view of a contact's enrichment.
type Status struct {
	ContactID string                 `json:"contact_id"`
	Status    model.JobStatus        `json:"status"`
	JobID     string                 `json:"job_id,omitempty"`
	Error     string                 `json:"error,omitempty"`
	CostUSD   float64                `json:"cost_usd,omitempty"`
	Scores    []model.ScoreResult    `json:"scores,omitempty"`
	Facts     *model.EnrichmentFacts `json:"facts,omitempty"`
}

// Enqueue requests enrichment of one contact. An in-flight job for the
// contact is returned unchanged with created=false.
func (s *Service) Enqueue(ctx context.Context, tenantID, contactID string, priority int) (model.EnrichmentJob, bool, error) {
	if strings.TrimSpace(contactID) == "" {
		return model.EnrichmentJob{}, false, apperr.Validation("contact id is required")
	}
	if _, err := s.store.GetContact(ctx, tenantID, contactID); err != nil {
		return model.EnrichmentJob{}, false, err
	}

	// Pending is persisted before a worker can see the job so a later
	// processing or terminal write always lands last.
	if !s.inFlight(tenantID, contactID) {
		s.markPending(ctx, tenantID, contactID)
	}
	job, created := s.queue.Enqueue(tenantID, contactID, priority)
	return job, created, nil
}

// EnqueueBatch requests enrichment of many contacts. Unknown contacts are
// skipped along with duplicates.
func (s *Service) EnqueueBatch(ctx context.Context, tenantID string, contactIDs []string, priority int) (queue.BatchResult, error) {
	ids := dedupe(contactIDs)
	if len(ids) == 0 {
		return queue.BatchResult{}, apperr.Validation("contact_ids must not be empty")
	}
	if len(ids) > store.DefaultListLimit {
		return queue.BatchResult{}, apperr.Validation(fmt.Sprintf("at most %d contact_ids per batch", store.DefaultListLimit))
	}

	found, err := s.store.ListContacts(ctx, store.ContactFilter{TenantID: tenantID, IDs: ids, Limit: len(ids)})
	if err != nil {
		return queue.BatchResult{}, eris.Wrap(err, "enrichment: list batch contacts")
	}
	known := make(map[string]bool, len(found))
	for _, c := range found {
		known[c.ID] = true
	}
	existing := make([]string, 0, len(found))
	for _, id := range ids {
		if known[id] {
			existing = append(existing, id)
		}
	}

	for _, id := range existing {
		if !s.inFlight(tenantID, id) {
			s.markPending(ctx, tenantID, id)
		}
	}
	res := s.queue.EnqueueBatch(tenantID, existing, priority)
	res.Skipped += len(contactIDs) - len(existing)

	zap.L().Info("enrichment: batch enqueued",
		zap.String("tenant_id", tenantID),
		zap.Int("queued", res.Queued),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (s *Service) inFlight(tenantID, contactID string) bool {
	job, ok := s.queue.Status(tenantID, contactID)
	return ok && job.Status.InFlight()
}

func (s *Service) markPending(ctx context.Context, tenantID, contactID string) {
	if err := s.store.UpdateEnrichmentStatus(ctx, tenantID, contactID, model.JobStatusPending, ""); err != nil {
		zap.L().Warn("enrichment: persist pending status",
			zap.String("tenant_id", tenantID),
			zap.String("contact_id", contactID),
			zap.Error(err),
		)
	}
}

// Status returns the contact's enrichment status without blocking. The
// queue is consulted first; contacts it no longer remembers are read from
// the store.
func (s *Service) Status(ctx context.Context, tenantID, contactID string) (Status, error) {
	if job, ok := s.queue.Status(tenantID, contactID); ok {
		st := Status{
			ContactID: contactID,
			Status:    job.Status,
			JobID:     job.ID,
			Error:     job.Error,
			CostUSD:   job.CostUSD,
			Scores:    job.Scores,
			Facts:     job.Facts,
		}
		if job.Status.InFlight() {
			st.Scores, st.Facts = nil, nil
		}
		return st, nil
	}

	c, err := s.store.GetContact(ctx, tenantID, contactID)
	if err != nil {
		return Status{}, err
	}
	return Status{
		ContactID: c.ID,
		Status:    c.EnrichmentStatus,
		Error:     c.EnrichmentError,
		Scores:    c.Scores,
		Facts:     c.Facts,
	}, nil
}

// Process runs one job: orchestrate providers, score the merged facts and
// persist the result. It satisfies queue.Processor.
func (s *Service) Process(ctx context.Context, job model.EnrichmentJob) (*queue.Result, error) {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("contact_id", job.ContactID),
	)

	if err := s.store.UpdateEnrichmentStatus(ctx, job.TenantID, job.ContactID, model.JobStatusProcessing, ""); err != nil {
		log.Warn("enrichment: persist processing status", zap.Error(err))
	}

	contact, err := s.store.GetContact(ctx, job.TenantID, job.ContactID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			err = apperr.Internal(err)
		}
		return nil, eris.Wrap(err, "enrichment: load contact")
	}

	out, err := s.enricher.Enrich(ctx, contact)
	var spent float64
	if out != nil {
		spent = out.CostUSD
		for _, a := range out.Attempts {
			log.Debug("enrichment: provider attempt",
				zap.String("provider", a.Provider),
				zap.String("outcome", a.Outcome),
				zap.Duration("elapsed", a.Elapsed),
				zap.Float64("cost_usd", a.CostUSD),
			)
		}
	}
	if err != nil {
		return &queue.Result{CostUSD: spent}, err
	}

	cfg, err := s.configs.Get(ctx, job.TenantID)
	if err != nil {
		return &queue.Result{CostUSD: spent}, apperr.Internal(eris.Wrap(err, "enrichment: load scoring config"))
	}

	now := s.now().UTC()
	scores := scoring.Calculate(scoring.Input{Facts: out.Facts, Contact: contact, AsOf: now}, cfg)

	rec := model.EnrichmentRecord{Facts: out.Facts, Scores: scores, EnrichedAt: now, CostUSD: spent}
	if err := s.store.SaveEnrichment(ctx, job.TenantID, job.ContactID, rec); err != nil {
		return &queue.Result{CostUSD: spent}, apperr.Internal(eris.Wrap(err, "enrichment: save result"))
	}

	if _, err := s.store.AppendScores(ctx, store.Points(job.TenantID, job.ContactID, scores, now)); err != nil {
		log.Warn("enrichment: append score history", zap.Error(err))
	}

	log.Info("enrichment: contact scored",
		zap.Strings("sources", out.Facts.Sources),
		zap.Int("lead_score", leadScore(scores)),
		zap.Float64("cost_usd", spent),
	)
	return &queue.Result{Facts: out.Facts, Scores: scores, CostUSD: spent}, nil
}

// Finish persists the terminal status of a job, with the reason for a
// failure. It runs after the queue transition, so it overrides a pending
// write from a concurrent enqueue. It satisfies queue.Finisher.
func (s *Service) Finish(ctx context.Context, job model.EnrichmentJob) {
	if !job.Status.Terminal() {
		return
	}
	if err := s.store.UpdateEnrichmentStatus(ctx, job.TenantID, job.ContactID, job.Status, job.Error); err != nil {
		zap.L().Error("enrichment: persist terminal status",
			zap.String("status", string(job.Status)),
			zap.String("job_id", job.ID),
			zap.String("contact_id", job.ContactID),
			zap.Error(err),
		)
	}
}

// Recover fails contacts left pending or processing by a previous process.
func (s *Service) Recover(ctx context.Context) (int64, error) {
	n, err := s.store.FailInFlight(ctx, queue.ReasonInterrupted)
	if err != nil {
		return 0, eris.Wrap(err, "enrichment: recover in-flight contacts")
	}
	if n > 0 {
		zap.L().Warn("enrichment: marked interrupted contacts as failed", zap.Int64("count", n))
	}
	return n, nil
}

// Wait blocks until the job reaches a terminal state or ctx ends, then
// returns its snapshot.
func (s *Service) Wait(ctx context.Context, job model.EnrichmentJob) (model.EnrichmentJob, error) {
	done, ok := s.queue.Done(job.ID)
	if !ok {
		return model.EnrichmentJob{}, apperr.NotFound("job", job.ID)
	}
	select {
	case <-done:
	case <-ctx.Done():
		return model.EnrichmentJob{}, eris.Wrap(ctx.Err(), "enrichment: wait for job")
	}
	final, ok := s.queue.Job(job.ID)
	if !ok {
		return model.EnrichmentJob{}, apperr.NotFound("job", job.ID)
	}
	return final, nil
}

func leadScore(scores []model.ScoreResult) int {
	for _, s := range scores {
		if s.Framework == model.FrameworkLeadScore {
			return s.Score
		}
	}
	return 0
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
