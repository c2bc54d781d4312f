package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/resilience"
)

func zapNop() *zap.Logger { return zap.NewNop() }

type memScores struct {
	scores map[model.Framework][]int
	err    error
}

func (m *memScores) RecentScores(_ context.Context, _ string, fw model.Framework, limit int) ([]int, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := m.scores[fw]
	if len(s) > limit {
		s = s[:limit]
	}
	return s, nil
}

func TestDistribute(t *testing.T) {
	d, err := Distribute([]int{10, 40, 70, 71, 100}, model.DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, 5, d.Count)
	assert.InDelta(t, 58.2, d.Mean, 0.001)
	assert.InDelta(t, 70, d.Median, 0.001)
	assert.InDelta(t, 10, d.Min, 0.001)
	assert.InDelta(t, 100, d.Max, 0.001)
	assert.Equal(t, map[model.Tier]int{model.TierCold: 1, model.TierWarm: 2, model.TierHot: 2}, d.Tiers)

	empty, err := Distribute(nil, model.DefaultThresholds())
	require.NoError(t, err)
	assert.Zero(t, empty.Count)
}

func TestCollector_Collect(t *testing.T) {
	breakers := resilience.NewProviderBreakers(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_, _ = resilience.ExecuteVal(context.Background(), breakers.Get("perplexity"), func(context.Context) (int, error) {
		return 0, errors.New("down")
	})
	breakers.Get("anthropic")

	metrics := MustNewMetrics(prometheus.NewRegistry())
	metrics.ObserveProvider("anthropic", "ok", time.Second, 0.25)

	scores := &memScores{scores: map[model.Framework][]int{model.FrameworkLeadScore: {81, 32}}}
	c := NewCollector(fixedStats{Pending: 1, Completed: 3, Failed: 1}, scores, breakers, metrics)

	snap, err := c.Collect(context.Background(), "t1", model.DefaultThresholds())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Queue.Pending)
	assert.InDelta(t, 0.25, snap.FailureRate, 1e-9)
	assert.InDelta(t, 0.25, snap.SpendUSD, 1e-9)
	assert.Equal(t, "open", snap.Breakers["perplexity"])
	assert.Equal(t, "closed", snap.Breakers["anthropic"])
	assert.Equal(t, 2, snap.Scores[model.FrameworkLeadScore].Count)
	assert.Zero(t, snap.Scores[model.FrameworkSPIN].Count)
}

func TestCollector_ScoreError(t *testing.T) {
	c := NewCollector(fixedStats{}, &memScores{err: errors.New("db down")}, nil, nil)
	_, err := c.Collect(context.Background(), "t1", model.DefaultThresholds())
	require.Error(t, err)

	snap, err := c.Collect(context.Background(), "", model.DefaultThresholds())
	require.NoError(t, err)
	assert.Nil(t, snap.Scores)
}

func TestMetrics_Observers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.JobEnqueued(true)
	m.JobEnqueued(false)
	m.JobEnqueued(true)
	m.JobFinished(model.JobStatusFailed, 2*time.Second)
	m.QueueDepth(3, 1)
	m.ObserveProvider("gemini", "timeout", 12*time.Second, 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.enqueued.WithLabelValues("created")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.enqueued.WithLabelValues("deduped")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.jobsFinished.WithLabelValues("failed")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.queueDepth.WithLabelValues("pending")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.providerCalls.WithLabelValues("gemini", "timeout")), 0)

	// Registering twice reuses the existing collectors.
	again := MustNewMetrics(reg)
	again.JobEnqueued(true)
	assert.InDelta(t, 3, testutil.ToFloat64(m.enqueued.WithLabelValues("created")), 0)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobEnqueued(true)
		m.QueueDepth(1, 1)
		assert.Zero(t, m.SpendUSD())
	})
}
