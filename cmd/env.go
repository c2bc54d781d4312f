package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadscore/internal/config"
	"github.com/sells-group/leadscore/internal/cost"
	"github.com/sells-group/leadscore/internal/enrichment"
	"github.com/sells-group/leadscore/internal/monitoring"
	"github.com/sells-group/leadscore/internal/orchestrator"
	"github.com/sells-group/leadscore/internal/provider"
	"github.com/sells-group/leadscore/internal/queue"
	"github.com/sells-group/leadscore/internal/resilience"
	"github.com/sells-group/leadscore/internal/scoring"
	"github.com/sells-group/leadscore/internal/store"
	anthropicpkg "github.com/sells-group/leadscore/pkg/anthropic"
	"github.com/sells-group/leadscore/pkg/gemini"
	"github.com/sells-group/leadscore/pkg/perplexity"
)

// appEnv holds everything the serve and enrich commands share.
type appEnv struct {
	Store     store.Store
	Queue     *queue.Queue
	Configs   *scoring.ConfigStore
	Service   *enrichment.Service
	Metrics   *monitoring.Metrics
	Breakers  *resilience.ProviderBreakers
	Collector *monitoring.Collector
	Registry  *prometheus.Registry
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Queue != nil {
		e.Queue.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// Pool builds a worker pool over the environment's queue.
func (e *appEnv) Pool() *queue.Pool {
	return queue.NewPool(e.Queue, e.Service.Process, e.Service.Finish, queue.PoolConfig{
		Workers:    cfg.Queue.Workers,
		JobTimeout: time.Duration(cfg.Queue.JobTimeoutSecs) * time.Second,
	})
}

// initEnv validates config for mode, opens and migrates the store, and
// builds providers, the orchestrator, the queue and the service. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Registry = prometheus.NewRegistry()
	env.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	env.Metrics = monitoring.MustNewMetrics(env.Registry)

	defaults := scoring.DefaultConfig()
	if cfg.Scoring.File != "" {
		if defaults, err = scoring.LoadConfig(cfg.Scoring.File); err != nil {
			env.Close()
			return nil, err
		}
	}
	env.Configs, err = scoring.NewConfigStore(st, defaults, cfg.Scoring.CacheSize, time.Duration(cfg.Scoring.CacheTTLSecs)*time.Second)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.Queue, err = queue.New(queue.Options{HistorySize: cfg.Queue.HistorySize, Observer: env.Metrics})
	if err != nil {
		env.Close()
		return nil, err
	}

	orch, breakers, err := initOrchestrator(ctx, cfg, env.Metrics)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Breakers = breakers

	env.Service = enrichment.New(st, env.Queue, orch, env.Configs)
	env.Collector = monitoring.NewCollector(env.Queue, st, breakers, env.Metrics)
	return env, nil
}

// initOrchestrator builds the configured providers, each behind its own
// rate limit, retry policy and circuit breaker.
func initOrchestrator(ctx context.Context, c *config.Config, obs orchestrator.Observer) (*orchestrator.Orchestrator, *resilience.ProviderBreakers, error) {
	costs := cost.NewCalculator(c.Rates())
	names := []string{c.Providers.Primary}
	mode := orchestrator.Mode(c.Providers.Mode)
	if mode == orchestrator.ModeDual {
		names = append(names, c.Providers.Secondary)
	}

	var providers []provider.Provider
	for _, name := range names {
		p, err := newProvider(ctx, c, name, costs)
		if err != nil {
			return nil, nil, err
		}
		providers = append(providers, p)
	}

	breakers := resilience.NewProviderBreakers(resilience.FromCircuitConfig(
		c.Providers.CircuitFailureThreshold, c.Providers.CircuitResetTimeoutSecs,
	))
	retry := resilience.FromRetryConfig(
		c.Providers.RetryMaxAttempts, c.Providers.RetryInitialBackoffMs, c.Providers.RetryMaxBackoffMs,
	)

	opts := []orchestrator.Option{orchestrator.WithObserver(obs)}
	for _, name := range names {
		opts = append(opts, orchestrator.WithGuard(resilience.NewGuard(
			name, breakers, retry, c.Providers.RateLimitRPS, c.Providers.RateLimitBurst,
		)))
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Mode:        mode,
		Primary:     c.Providers.Primary,
		Secondary:   c.Providers.Secondary,
		CallTimeout: time.Duration(c.Providers.TimeoutSecs) * time.Second,
	}, provider.NewRegistry(providers...), opts...)
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("providers configured",
		zap.String("mode", c.Providers.Mode),
		zap.Strings("providers", orch.Providers()),
	)
	return orch, breakers, nil
}

func newProvider(ctx context.Context, c *config.Config, name string, costs *cost.Calculator) (provider.Provider, error) {
	switch name {
	case provider.NameAnthropic:
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		return provider.NewAnthropic(client, c.Anthropic.Model, c.Anthropic.MaxTokens, costs), nil
	case provider.NamePerplexity:
		client := perplexity.NewClient(c.Perplexity.Key,
			perplexity.WithBaseURL(c.Perplexity.BaseURL),
			perplexity.WithModel(c.Perplexity.Model),
		)
		return provider.NewPerplexity(client, c.Perplexity.Model, costs), nil
	case provider.NameGemini:
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:  c.Gemini.Key,
			Model:   c.Gemini.Model,
			BaseURL: c.Gemini.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return provider.NewGemini(client, c.Gemini.Model, costs), nil
	default:
		return nil, eris.Errorf("unknown provider %q", name)
	}
}
