package monitoring

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sells-group/leadscore/internal/model"
)

const namespace = "leadscore"

// Metrics exposes Prometheus collectors for the queue, jobs and providers.
// It satisfies the queue and orchestrator observer interfaces.
type Metrics struct {
	enqueued        *prometheus.CounterVec
	jobsFinished    *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	queueDepth      *prometheus.GaugeVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	providerCost    *prometheus.CounterVec

	mu       sync.Mutex
	spendUSD float64
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		enqueued: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Enrichment requests by result (created or deduped).",
		}, []string{"result"})),
		jobsFinished: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"status"})),
		jobDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "job_duration_seconds",
			Help:      "Time from dequeue to terminal status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30, 60, 120},
		})),
		queueDepth: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "jobs",
			Help:      "In-flight jobs by status.",
		}, []string{"status"})),
		providerCalls: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Provider calls by outcome.",
		}, []string{"provider", "outcome"})),
		providerLatency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Provider call latency including retries.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 12, 20},
		}, []string{"provider"})),
		providerCost: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "cost_usd_total",
			Help:      "Provider spend in USD.",
		}, []string{"provider"})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// JobEnqueued counts an enqueue request.
func (m *Metrics) JobEnqueued(created bool) {
	if m == nil {
		return
	}
	result := "deduped"
	if created {
		result = "created"
	}
	m.enqueued.WithLabelValues(result).Inc()
}

// JobFinished counts a terminal transition.
func (m *Metrics) JobFinished(status model.JobStatus, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(string(status)).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

// QueueDepth sets the in-flight gauges.
func (m *Metrics) QueueDepth(pending, processing int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(string(model.JobStatusPending)).Set(float64(pending))
	m.queueDepth.WithLabelValues(string(model.JobStatusProcessing)).Set(float64(processing))
}

// ObserveProvider records one provider call.
func (m *Metrics) ObserveProvider(provider, outcome string, elapsed time.Duration, costUSD float64) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
	if costUSD > 0 {
		m.providerCost.WithLabelValues(provider).Add(costUSD)
		m.mu.Lock()
		m.spendUSD += costUSD
		m.mu.Unlock()
	}
}

// SpendUSD returns provider spend recorded by this process.
func (m *Metrics) SpendUSD() float64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spendUSD
}
