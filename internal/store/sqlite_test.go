package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
)

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedContact(t *testing.T, st Store, tenant, id string) *model.Contact {
	t.Helper()
	engaged := time.Now().Add(-72 * time.Hour).UTC().Truncate(time.Second)
	c, err := st.UpsertContact(context.Background(), &model.Contact{
		ID:            id,
		TenantID:      tenant,
		Name:          "Jane Doe",
		Email:         "jane@acme.io",
		Company:       "Acme",
		Title:         "VP Engineering",
		CompanySize:   "51-200",
		LastEngagedAt: &engaged,
	})
	require.NoError(t, err)
	return c
}

func TestSQLite_ContactUpsertAndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	c := seedContact(t, st, "t1", "c1")
	assert.Equal(t, "Jane Doe", c.Name)
	assert.Equal(t, model.JobStatusNone, c.EnrichmentStatus)
	require.NotNil(t, c.LastEngagedAt)
	assert.Nil(t, c.Facts)
	assert.Nil(t, c.LastEnrichedAt)

	c.Title = "CTO"
	updated, err := st.UpsertContact(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "CTO", updated.Title)

	_, err = st.GetContact(ctx, "t2", "c1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSQLite_ListContacts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		seedContact(t, st, "t1", id)
	}
	seedContact(t, st, "t2", "z")

	all, err := st.ListContacts(ctx, ContactFilter{TenantID: "t1"})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := st.ListContacts(ctx, ContactFilter{TenantID: "t1", IDs: []string{"c", "a", "missing"}})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "a", some[0].ID)
	assert.Equal(t, "c", some[1].ID)

	page, err := st.ListContacts(ctx, ContactFilter{TenantID: "t1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestSQLite_EnrichmentLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedContact(t, st, "t1", "c1")

	require.NoError(t, st.UpdateEnrichmentStatus(ctx, "t1", "c1", model.JobStatusProcessing, ""))
	c, err := st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusProcessing, c.EnrichmentStatus)

	at := time.Now().UTC().Truncate(time.Second)
	rec := model.EnrichmentRecord{
		Facts:      &model.EnrichmentFacts{Industry: model.String("Software"), TalkingPoints: []string{"x"}},
		Scores:     []model.ScoreResult{{Framework: model.FrameworkLeadScore, Score: 81, Tier: model.TierHot}},
		EnrichedAt: at,
	}
	require.NoError(t, st.SaveEnrichment(ctx, "t1", "c1", rec))

	c, err = st.GetContact(ctx, "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, c.EnrichmentStatus)
	assert.Equal(t, "Software", *c.Facts.Industry)
	assert.Equal(t, []string{"x"}, c.Facts.TalkingPoints)
	require.Len(t, c.Scores, 1)
	assert.Equal(t, 81, c.Scores[0].Score)
	require.NotNil(t, c.LastEnrichedAt)
	assert.True(t, at.Equal(*c.LastEnrichedAt))

	err = st.UpdateEnrichmentStatus(ctx, "t1", "nobody", model.JobStatusFailed, "x")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSQLite_FailInFlight(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	for _, id := range []string{"p", "q", "done"} {
		seedContact(t, st, "t1", id)
	}
	require.NoError(t, st.UpdateEnrichmentStatus(ctx, "t1", "p", model.JobStatusPending, ""))
	require.NoError(t, st.UpdateEnrichmentStatus(ctx, "t1", "q", model.JobStatusProcessing, ""))
	require.NoError(t, st.UpdateEnrichmentStatus(ctx, "t1", "done", model.JobStatusCompleted, ""))

	n, err := st.FailInFlight(ctx, "interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	c, err := st.GetContact(ctx, "t1", "q")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, c.EnrichmentStatus)
	assert.Equal(t, "interrupted", c.EnrichmentError)

	c, err = st.GetContact(ctx, "t1", "done")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, c.EnrichmentStatus)
}

func TestSQLite_ScoringConfig(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	data, err := st.GetScoringConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, st.PutScoringConfig(ctx, "t1", []byte(`{"thresholds":{"hot":80,"warm":50}}`)))
	require.NoError(t, st.PutScoringConfig(ctx, "t1", []byte(`{"thresholds":{"hot":75,"warm":50}}`)))

	data, err = st.GetScoringConfig(ctx, "t1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"thresholds":{"hot":75,"warm":50}}`, string(data))
}

func TestSQLite_ICP(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.GetICP(ctx, "t1", "icp-1")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	in := &model.ICP{
		ID:       "icp-1",
		TenantID: "t1",
		Name:     "Mid-market SaaS",
		Criteria: model.ICPCriteria{Industries: []string{"Software"}, Personas: []string{"VP"}, MinCompanySize: 50, MaxCompanySize: 500},
		Weights:  model.ICPWeights{Industry: 40, Persona: 30, CompanySize: 30},
	}
	got, err := st.PutICP(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.Criteria, got.Criteria)
	assert.Equal(t, in.Weights, got.Weights)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLite_ScoreHistory(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	var points []ScorePoint
	for i, score := range []int{10, 20, 30} {
		points = append(points, Points("t1", "c1", []model.ScoreResult{
			{Framework: model.FrameworkLeadScore, Score: score, Tier: model.TierCold},
			{Framework: model.FrameworkBANT, Score: score + 1, Tier: model.TierCold},
		}, base.Add(time.Duration(i)*time.Second))...)
	}

	n, err := st.AppendScores(ctx, points)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	recent, err := st.RecentScores(ctx, "t1", model.FrameworkLeadScore, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 20}, recent)

	none, err := st.RecentScores(ctx, "t2", model.FrameworkLeadScore, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	n, err = st.AppendScores(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}
