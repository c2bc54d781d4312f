package monitoring

import (
	"context"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/queue"
	"github.com/sells-group/leadscore/internal/resilience"
)

// DefaultScoreWindow is how many recent scores per framework feed the
// distribution.
const DefaultScoreWindow = 500

// QueueStatser reports queue counters.
type QueueStatser interface {
	Stats() queue.Stats
}

// ScoreSource returns the newest recorded scores for a framework.
type ScoreSource interface {
	RecentScores(ctx context.Context, tenantID string, fw model.Framework, limit int) ([]int, error)
}

// Distribution summarizes recent scores of one framework.
type Distribution struct {
	Count  int                `json:"count"`
	Mean   float64            `json:"mean"`
	Median float64            `json:"median"`
	P90    float64            `json:"p90"`
	Min    float64            `json:"min"`
	Max    float64            `json:"max"`
	Tiers  map[model.Tier]int `json:"tiers"`
}

// Snapshot is a point-in-time view of enrichment health.
type Snapshot struct {
	Queue       queue.Stats                      `json:"queue"`
	FailureRate float64                          `json:"failure_rate"`
	SpendUSD    float64                          `json:"spend_usd"`
	Breakers    map[string]string                `json:"breakers,omitempty"`
	Scores      map[model.Framework]Distribution `json:"scores,omitempty"`
	CollectedAt time.Time                        `json:"collected_at"`
}

// Collector gathers snapshots from the queue, score history and breakers.
type Collector struct {
	queue    QueueStatser
	scores   ScoreSource
	breakers *resilience.ProviderBreakers
	metrics  *Metrics
	window   int
}

// NewCollector creates a collector. scores, breakers and metrics may be nil.
func NewCollector(q QueueStatser, scores ScoreSource, breakers *resilience.ProviderBreakers, metrics *Metrics) *Collector {
	return &Collector{queue: q, scores: scores, breakers: breakers, metrics: metrics, window: DefaultScoreWindow}
}

// Collect builds a snapshot. Score distributions are computed for tenantID
// using the tenant's tier thresholds; an empty tenantID skips them.
func (c *Collector) Collect(ctx context.Context, tenantID string, th model.Thresholds) (*Snapshot, error) {
	snap := &Snapshot{
		Queue:       c.queue.Stats(),
		SpendUSD:    c.metrics.SpendUSD(),
		CollectedAt: time.Now().UTC(),
	}
	if finished := snap.Queue.Completed + snap.Queue.Failed; finished > 0 {
		snap.FailureRate = float64(snap.Queue.Failed) / float64(finished)
	}

	if c.breakers != nil {
		states := c.breakers.States()
		snap.Breakers = make(map[string]string, len(states))
		for name, st := range states {
			snap.Breakers[name] = st.String()
		}
	}

	if c.scores == nil || tenantID == "" {
		return snap, nil
	}
	snap.Scores = make(map[model.Framework]Distribution, len(model.Frameworks))
	for _, fw := range model.Frameworks {
		recent, err := c.scores.RecentScores(ctx, tenantID, fw, c.window)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: recent %s scores", fw)
		}
		d, err := Distribute(recent, th)
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: %s distribution", fw)
		}
		snap.Scores[fw] = d
	}
	return snap, nil
}

// Distribute summarizes scores. An empty input yields a zero Distribution.
func Distribute(scores []int, th model.Thresholds) (Distribution, error) {
	d := Distribution{Count: len(scores), Tiers: map[model.Tier]int{}}
	if len(scores) == 0 {
		return d, nil
	}

	data := stats.LoadRawData(scores)
	var err error
	if d.Mean, err = stats.Mean(data); err != nil {
		return d, err
	}
	if d.Median, err = stats.Median(data); err != nil {
		return d, err
	}
	if d.P90, err = stats.Percentile(data, 90); err != nil {
		return d, err
	}
	if d.Min, err = stats.Min(data); err != nil {
		return d, err
	}
	if d.Max, err = stats.Max(data); err != nil {
		return d, err
	}
	if d.Mean, err = stats.Round(d.Mean, 2); err != nil {
		return d, err
	}
	for _, s := range scores {
		d.Tiers[th.TierFor(s)]++
	}
	return d, nil
}
