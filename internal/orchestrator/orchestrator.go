// Package orchestrator fans a contact out to the configured enrichment
// providers and merges their facts.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
	"github.com/sells-group/leadscore/internal/provider"
	"github.com/sells-group/leadscore/internal/resilience"
)

// Mode selects how many providers are called per contact.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeDual   Mode = "dual"
)

// DefaultCallTimeout bounds each provider call, retries included.
const DefaultCallTimeout = 12 * time.Second

// Provider outcome labels.
const (
	OutcomeOK          = "ok"
	OutcomeTimeout     = "timeout"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeUnparseable = "unparseable"
	OutcomeError       = "error"
)

// Config selects the providers and timeouts.
type Config struct {
	Mode        Mode
	Primary     string
	Secondary   string
	CallTimeout time.Duration
}

// Observer receives per-provider call outcomes.
type Observer interface {
	ObserveProvider(provider, outcome string, elapsed time.Duration, costUSD float64)
}

// Attempt records one provider call.
type Attempt struct {
	Provider string        `json:"provider"`
	Outcome  string        `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
	CostUSD  float64       `json:"cost_usd"`
}

// Outcome is the merged result of one orchestration.
type Outcome struct {
	Facts    *model.EnrichmentFacts
	CostUSD  float64
	Attempts []Attempt
}

// Orchestrator calls providers concurrently and merges what comes back.
type Orchestrator struct {
	cfg       Config
	primary   provider.Provider
	secondary provider.Provider
	guards    map[string]*resilience.Guard
	observer  Observer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithGuard wraps calls to the named provider in g.
func WithGuard(g *resilience.Guard) Option {
	return func(o *Orchestrator) { o.guards[g.Name] = g }
}

// WithObserver reports provider outcomes to obs.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New resolves the configured providers from reg.
func New(cfg Config, reg *provider.Registry, opts ...Option) (*Orchestrator, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeSingle
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	o := &Orchestrator{cfg: cfg, guards: make(map[string]*resilience.Guard)}
	o.primary = reg.Get(cfg.Primary)
	if o.primary == nil {
		return nil, eris.Errorf("orchestrator: primary provider %q is not registered", cfg.Primary)
	}

	switch cfg.Mode {
	case ModeSingle:
	case ModeDual:
		o.secondary = reg.Get(cfg.Secondary)
		if o.secondary == nil {
			return nil, eris.Errorf("orchestrator: secondary provider %q is not registered", cfg.Secondary)
		}
		if cfg.Secondary == cfg.Primary {
			return nil, eris.New("orchestrator: primary and secondary providers must differ")
		}
	default:
		return nil, eris.Errorf("orchestrator: unknown mode %q", cfg.Mode)
	}

	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Providers returns the names of the providers called per contact.
func (o *Orchestrator) Providers() []string {
	if o.secondary == nil {
		return []string{o.primary.Name()}
	}
	return []string{o.primary.Name(), o.secondary.Name()}
}

// Enrich calls every configured provider concurrently and merges the
// results. A provider that errors, times out, or returns unparseable output
// contributes nothing. If no provider contributes, the error is of kind
// provider_unavailable. The returned Outcome is non-nil in both cases so
// spend can be accounted.
func (o *Orchestrator) Enrich(ctx context.Context, c *model.Contact) (*Outcome, error) {
	providers := []provider.Provider{o.primary}
	if o.secondary != nil {
		providers = append(providers, o.secondary)
	}

	results := make([]*provider.Result, len(providers))
	attempts := make([]Attempt, len(providers))

	var g errgroup.Group
	for i, p := range providers {
		g.Go(func() error {
			results[i], attempts[i] = o.call(ctx, p, c)
			return nil
		})
	}
	_ = g.Wait()

	out := &Outcome{Attempts: attempts}
	var facts []*model.EnrichmentFacts
	for i, res := range results {
		out.CostUSD += attempts[i].CostUSD
		if res != nil && res.Facts != nil {
			facts = append(facts, res.Facts)
		} else {
			facts = append(facts, nil)
		}
	}

	if len(facts) == 1 {
		facts = append(facts, nil)
	}
	out.Facts = Merge(facts[0], facts[1])

	if out.Facts == nil {
		reasons := make([]string, 0, len(attempts))
		for _, a := range attempts {
			reasons = append(reasons, a.Provider+": "+a.Error)
		}
		return out, apperr.ProviderUnavailable(eris.New(strings.Join(reasons, "; ")))
	}
	return out, nil
}

func (o *Orchestrator) call(ctx context.Context, p provider.Provider, c *model.Contact) (*provider.Result, Attempt) {
	name := p.Name()
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
	defer cancel()

	// Parse failures still return a result carrying the spend.
	var last *provider.Result
	enrich := func(ctx context.Context) (*provider.Result, error) {
		res, err := p.Enrich(ctx, c)
		if res != nil {
			last = res
		}
		return res, err
	}

	var (
		res *provider.Result
		err error
	)
	if g := o.guards[name]; g != nil {
		res, err = resilience.Call(callCtx, g, enrich)
	} else {
		res, err = enrich(callCtx)
	}

	a := Attempt{Provider: name, Outcome: OutcomeOK, Elapsed: time.Since(start)}
	if last != nil {
		a.CostUSD = last.CostUSD
	}
	if err == nil && (res == nil || res.Facts == nil) {
		err = provider.ErrNoFacts
	}
	if err != nil {
		a.Outcome = outcomeOf(callCtx, err)
		if a.Outcome == OutcomeError && last != nil && last.Facts == nil {
			a.Outcome = OutcomeUnparseable
		}
		a.Error = err.Error()
		res = nil
		zap.L().Warn("orchestrator: provider result absent",
			zap.String("provider", name),
			zap.String("contact_id", c.ID),
			zap.String("outcome", a.Outcome),
			zap.Duration("elapsed", a.Elapsed),
			zap.Error(err),
		)
	}
	if o.observer != nil {
		o.observer.ObserveProvider(name, a.Outcome, a.Elapsed, a.CostUSD)
	}
	return res, a
}

func outcomeOf(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, resilience.ErrCircuitOpen):
		return OutcomeCircuitOpen
	case errors.Is(err, provider.ErrNoFacts):
		return OutcomeUnparseable
	default:
		return OutcomeError
	}
}
