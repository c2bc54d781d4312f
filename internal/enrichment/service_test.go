package enrichment

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/orchestrator"
	"github.com/sells-group/leadscore/internal/queue"
	"github.com/sells-group/leadscore/internal/scoring"
	"github.com/sells-group/leadscore/internal/store"
)

type fakeEnricher struct {
	mu    sync.Mutex
	calls []string
	facts *model.EnrichmentFacts
	cost  float64
	err   error
}

func (f *fakeEnricher) Enrich(_ context.Context, c *model.Contact) (*orchestrator.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c.ID)
	out := &orchestrator.Outcome{Facts: f.facts, CostUSD: f.cost}
	if f.err != nil {
		out.Facts = nil
		return out, f.err
	}
	return out, nil
}

type harness struct {
	st       *store.SQLiteStore
	queue    *queue.Queue
	enricher *fakeEnricher
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "leadscore.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	q, err := queue.New(queue.Options{})
	require.NoError(t, err)
	t.Cleanup(q.Close)

	configs, err := scoring.NewConfigStore(st, scoring.DefaultConfig(), 0, 0)
	require.NoError(t, err)

	enricher := &fakeEnricher{
		facts: &model.EnrichmentFacts{
			Summary:     model.String("Leads platform engineering at Acme."),
			Seniority:   model.String("VP"),
			CompanySize: model.String("120"),
			Industry:    model.String("Software"),
			PersonaType: model.String("Technical Buyer"),
			Sources:     []string{"anthropic", "perplexity"},
		},
		cost: 0.012,
	}
	return &harness{st: st, queue: q, enricher: enricher, svc: New(st, q, enricher, configs)}
}

func (h *harness) seed(t *testing.T, tenant, id string, mutate ...func(*model.Contact)) {
	t.Helper()
	c := &model.Contact{ID: id, TenantID: tenant, Name: "Contact " + id, Title: "VP Engineering", Company: "Acme"}
	for _, m := range mutate {
		m(c)
	}
	_, err := h.st.UpsertContact(context.Background(), c)
	require.NoError(t, err)
}

func TestEnqueue_UnknownContact(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.svc.Enqueue(context.Background(), "t1", "missing", 0)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, _, err = h.svc.Enqueue(context.Background(), "t1", "  ", 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestEnqueue_DedupesAndPersistsPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "t1", "c1")

	first, created, err := h.svc.Enqueue(ctx, "t1", "c1", 0)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := h.svc.Enqueue(ctx, "t1", "c1", 5)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.queue.Stats().Pending)

	c, err := h.st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, c.EnrichmentStatus)

	st, err := h.svc.Status(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, st.Status)
	assert.Equal(t, first.ID, st.JobID)
	assert.Nil(t, st.Scores)
}

func TestEnqueueBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "t1", "c1")
	h.seed(t, "t1", "c2")
	h.seed(t, "t2", "c3")

	_, _, err := h.svc.Enqueue(ctx, "t1", "c1", 0)
	require.NoError(t, err)

	res, err := h.svc.EnqueueBatch(ctx, "t1", []string{"c1", "c2", "c2", "c3", "nope"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 4, res.Skipped)
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "c2", res.Jobs[0].ContactID)

	again, err := h.svc.EnqueueBatch(ctx, "t1", []string{"c1", "c2"}, 0)
	require.NoError(t, err)
	assert.Zero(t, again.Queued)
	assert.Equal(t, 2, again.Skipped)

	_, err = h.svc.EnqueueBatch(ctx, "t1", []string{"", " "}, 0)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestProcess_ScoresAndPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "t1", "c1")

	job, _, err := h.svc.Enqueue(ctx, "t1", "c1", 0)
	require.NoError(t, err)

	res, err := h.svc.Process(ctx, job)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.InDelta(t, 0.012, res.CostUSD, 1e-9)
	assert.Equal(t, "Software", *res.Facts.Industry)
	require.Len(t, res.Scores, len(model.Frameworks))
	for _, s := range res.Scores {
		assert.GreaterOrEqual(t, s.Score, 0)
		assert.LessOrEqual(t, s.Score, 100)
	}

	c, err := h.st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, c.EnrichmentStatus)
	require.NotNil(t, c.Facts)
	require.Len(t, c.Scores, len(res.Scores))
	assert.Equal(t, leadScore(res.Scores), leadScore(c.Scores))
	assert.NotNil(t, c.LastEnrichedAt)

	recent, err := h.st.RecentScores(ctx, "t1", model.FrameworkLeadScore, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestProcess_ProviderUnavailableKeepsCost(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "t1", "c1")
	h.enricher.err = apperr.ProviderUnavailable(errors.New("anthropic: timeout; perplexity: error"))
	h.enricher.cost = 0.004

	job, _, err := h.svc.Enqueue(ctx, "t1", "c1", 0)
	require.NoError(t, err)

	res, err := h.svc.Process(ctx, job)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindProviderUnavailable))
	require.NotNil(t, res)
	assert.InDelta(t, 0.004, res.CostUSD, 1e-9)

	job.Status = model.JobStatusFailed
	job.Error = err.Error()
	h.svc.Finish(ctx, job)

	c, err := h.st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, c.EnrichmentStatus)
	assert.Contains(t, c.EnrichmentError, "perplexity: error")
}

func TestPool_EndToEnd(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", "ok")
	h.seed(t, "t1", "bad")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := queue.NewPool(h.queue, h.svc.Process, h.svc.Finish, queue.PoolConfig{Workers: 2, JobTimeout: 5 * time.Second})
	go func() { _ = pool.Run(ctx) }()

	job, _, err := h.svc.Enqueue(ctx, "t1", "ok", 0)
	require.NoError(t, err)

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	final, err := h.svc.Wait(waitCtx, job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	assert.NotEmpty(t, final.Scores)

	st, err := h.svc.Status(ctx, "t1", "ok")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, st.Status)
	assert.NotNil(t, st.Facts)

	// Total failure, then a re-enqueue creates a fresh job.
	h.enricher.mu.Lock()
	h.enricher.err = apperr.ProviderUnavailable(errors.New("all providers absent"))
	h.enricher.mu.Unlock()

	job, _, err = h.svc.Enqueue(ctx, "t1", "bad", 0)
	require.NoError(t, err)
	final, err = h.svc.Wait(waitCtx, job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, final.Status)
	assert.Contains(t, final.Error, "all providers absent")

	require.Eventually(t, func() bool {
		c, err := h.st.GetContact(ctx, "t1", "bad")
		return err == nil && c.EnrichmentStatus == model.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	retry, created, err := h.svc.Enqueue(ctx, "t1", "bad", 0)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, job.ID, retry.ID)
}

func TestRecover(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "t1", "c1")
	h.seed(t, "t1", "c2")
	require.NoError(t, h.st.UpdateEnrichmentStatus(ctx, "t1", "c1", model.JobStatusProcessing, ""))

	n, err := h.svc.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	st, err := h.svc.Status(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, st.Status)
	assert.Equal(t, queue.ReasonInterrupted, st.Error)

	st, err = h.svc.Status(ctx, "t1", "c2")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusNone, st.Status)
}

func TestWait_UnknownJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Wait(context.Background(), model.EnrichmentJob{ID: "nope"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

type saveFailingStore struct {
	store.Store
}

func (saveFailingStore) SaveEnrichment(context.Context, string, string, model.EnrichmentRecord) error {
	return errors.New(`pq: password authentication failed for user "admin" host 10.0.0.5`)
}

func TestPool_InternalFailureReasonIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", "c1")
	configs, err := scoring.NewConfigStore(h.st, scoring.DefaultConfig(), 0, 0)
	require.NoError(t, err)
	svc := New(saveFailingStore{h.st}, h.queue, h.enricher, configs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := queue.NewPool(h.queue, svc.Process, svc.Finish, queue.PoolConfig{Workers: 1, JobTimeout: 5 * time.Second})
	go func() { _ = pool.Run(ctx) }()

	job, _, err := svc.Enqueue(ctx, "t1", "c1", 0)
	require.NoError(t, err)
	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	final, err := svc.Wait(waitCtx, job)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, final.Status)
	assert.Equal(t, "internal error", final.Error)
	assert.InDelta(t, 0.012, final.CostUSD, 1e-9)

	st, err := svc.Status(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "internal error", st.Error)

	require.Eventually(t, func() bool {
		c, err := h.st.GetContact(ctx, "t1", "c1")
		return err == nil && c.EnrichmentStatus == model.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	c, err := h.st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "internal error", c.EnrichmentError)
	assert.NotContains(t, c.EnrichmentError, "password")
}

func TestProcess_StoreFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "t1", "c1")
	configs, err := scoring.NewConfigStore(h.st, scoring.DefaultConfig(), 0, 0)
	require.NoError(t, err)
	svc := New(saveFailingStore{h.st}, h.queue, h.enricher, configs)

	res, err := svc.Process(context.Background(), model.EnrichmentJob{ID: "j1", TenantID: "t1", ContactID: "c1"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	require.NotNil(t, res)
	assert.InDelta(t, 0.012, res.CostUSD, 1e-9)

	_, err = svc.Process(context.Background(), model.EnrichmentJob{ID: "j2", TenantID: "t1", ContactID: "gone"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestEnqueue_DoesNotOverwriteInFlightStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "t1", "c1")

	first, _, err := h.svc.Enqueue(ctx, "t1", "c1", 0)
	require.NoError(t, err)
	picked, ok := h.queue.TryDequeue()
	require.True(t, ok)
	require.Equal(t, first.ID, picked.ID)
	require.NoError(t, h.st.UpdateEnrichmentStatus(ctx, "t1", "c1", model.JobStatusProcessing, ""))

	again, created, err := h.svc.Enqueue(ctx, "t1", "c1", 0)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	res, err := h.svc.EnqueueBatch(ctx, "t1", []string{"c1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	c, err := h.st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, c.EnrichmentStatus)
}

func TestFinish_PersistsTerminalStatusOverStalePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seed(t, "t1", "c1")
	require.NoError(t, h.st.UpdateEnrichmentStatus(ctx, "t1", "c1", model.JobStatusPending, ""))

	h.svc.Finish(ctx, model.EnrichmentJob{TenantID: "t1", ContactID: "c1", Status: model.JobStatusCompleted})
	c, err := h.st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, c.EnrichmentStatus)

	h.svc.Finish(ctx, model.EnrichmentJob{TenantID: "t1", ContactID: "c1", Status: model.JobStatusProcessing})
	c, err = h.st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, c.EnrichmentStatus)
}
