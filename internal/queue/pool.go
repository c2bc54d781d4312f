package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/leadscore/internal/apperr"
	"github.com/sells-group/leadscore/internal/model"
)

const (
	// DefaultWorkers is the number of concurrent workers.
	DefaultWorkers = 4
	// DefaultJobTimeout bounds one job end to end.
	DefaultJobTimeout = 60 * time.Second
	// ReasonInterrupted is the failure reason for jobs cut off by shutdown.
	ReasonInterrupted = "interrupted"
)

// Result is what a successful job produces.
type Result struct {
	Facts   *model.EnrichmentFacts
	Scores  []model.ScoreResult
	CostUSD float64
}

// Processor runs one job. A returned Result may be non-nil alongside an
// error so the spend is still recorded.
type Processor func(ctx context.Context, job model.EnrichmentJob) (*Result, error)

// Finisher is called with the terminal snapshot of every job the pool
// processed, after the queue transition.
type Finisher func(ctx context.Context, job model.EnrichmentJob)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers    int
	JobTimeout time.Duration
}

// Pool runs a fixed number of workers that pull jobs from a Queue.
type Pool struct {
	queue   *Queue
	process Processor
	finish  Finisher
	cfg     PoolConfig
}

// NewPool creates a worker pool. finish may be nil.
func NewPool(q *Queue, process Processor, finish Finisher, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}
	return &Pool{queue: q, process: process, finish: finish, cfg: cfg}
}

// Run starts the workers and blocks until ctx is done or the queue is
// closed.
func (p *Pool) Run(ctx context.Context) error {
	zap.L().Info("queue: starting workers",
		zap.Int("workers", p.cfg.Workers),
		zap.Duration("job_timeout", p.cfg.JobTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				job, err := p.queue.Dequeue(gctx)
				if err != nil {
					if errors.Is(err, ErrClosed) || gctx.Err() != nil {
						return nil
					}
					return err
				}
				p.handle(gctx, job)
			}
		})
	}
	return g.Wait()
}

type outcome struct {
	res *Result
	err error
	// reason overrides the failure reason derived from err.
	reason string
}

// failureReason is the reason recorded on a failed job. Classified errors
// keep their message; anything internal is reduced to a generic one.
func failureReason(err error) string {
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		return e.Error()
	}
	return apperr.Internal(err).Message
}

// handle runs one job under the job timeout. The worker stops waiting when
// the deadline passes even if the processor is still running.
func (p *Pool) handle(ctx context.Context, job model.EnrichmentJob) {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("tenant_id", job.TenantID),
		zap.String("contact_id", job.ContactID),
	)

	jctx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	results := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- outcome{err: apperr.Internal(eris.Errorf("queue: processor panic: %v", r))}
			}
		}()
		res, err := p.process(jctx, job)
		results <- outcome{res: res, err: err}
	}()

	var o outcome
	select {
	case o = <-results:
	case <-jctx.Done():
		if ctx.Err() != nil {
			o.reason = ReasonInterrupted
		} else {
			o.reason = fmt.Sprintf("job timed out after %s", p.cfg.JobTimeout)
		}
		o.err = eris.New(o.reason)
	}

	if o.err == nil && o.res == nil {
		o.err = apperr.Internal(eris.New("queue: processor returned no result"))
	}

	var cost float64
	if o.res != nil {
		cost = o.res.CostUSD
	}
	if o.err != nil {
		reason := o.reason
		if reason == "" {
			reason = failureReason(o.err)
		}
		log.Warn("queue: job failed",
			zap.String("reason", reason),
			zap.String("error", eris.ToString(o.err, true)),
		)
		p.queue.Fail(job.TenantID, job.ContactID, reason, cost)
	} else {
		log.Info("queue: job completed", zap.Float64("cost_usd", cost))
		p.queue.Complete(job.TenantID, job.ContactID, o.res.Facts, o.res.Scores, cost)
	}

	if p.finish != nil {
		if final, ok := p.queue.Job(job.ID); ok {
			fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			p.finish(fctx, final)
			fcancel()
		}
	}
}
