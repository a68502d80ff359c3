package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jordanlanch/salespilot/pkg/domain"
	"github.com/jordanlanch/salespilot/pkg/logger"
	"github.com/jordanlanch/salespilot/pkg/metrics"
)

// Dispatcher delivers one claimed scheduled step.
type Dispatcher interface {
	Dispatch(ctx context.Context, step *domain.ScheduledStep) error
}

// Pool runs the scheduler loop: independent workers polling for due
// PENDING steps, claiming them atomically and dispatching each claimed
// step. Multiple pools (or processes) may poll the same store; the claim
// protocol guarantees at most one delivery attempt per step per cycle.
type Pool struct {
	steps      domain.ScheduledStepRepository
	dispatcher Dispatcher
	clock      domain.Clock
	log        logger.Logger
	metrics    *metrics.Metrics

	pollInterval time.Duration
	batchSize    int
	workers      int
	claimTimeout time.Duration

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// Options tunes the pool.
type Options struct {
	PollInterval time.Duration
	BatchSize    int
	Workers      int
	ClaimTimeout time.Duration
}

// NewPool creates a scheduler pool. The metrics instance may be nil.
func NewPool(steps domain.ScheduledStepRepository, dispatcher Dispatcher, clock domain.Clock, log logger.Logger, m *metrics.Metrics, opts Options) *Pool {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 25
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = 10 * time.Minute
	}
	return &Pool{
		steps:        steps,
		dispatcher:   dispatcher,
		clock:        clock,
		log:          log,
		metrics:      m,
		pollInterval: opts.PollInterval,
		batchSize:    opts.BatchSize,
		workers:      opts.Workers,
		claimTimeout: opts.ClaimTimeout,
	}
}

// Start launches the workers. They poll until Stop is called or the parent
// context is cancelled.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.log.Info("scheduler pool starting",
		"workers", p.workers, "poll_interval", p.pollInterval.String(), "batch_size", p.batchSize)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
}

// Stop cancels the workers and waits for in-flight dispatches to drain.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.log.Info("scheduler pool stopped")
}

func (p *Pool) run(ctx context.Context, worker int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll claims one batch of due steps and dispatches them. Exposed so tests
// and manual triggers can drive a cycle without the ticker.
func (p *Pool) Poll(ctx context.Context) {
	claimed, err := p.steps.ClaimDue(ctx, p.clock.Now(), p.batchSize)
	if err != nil {
		p.log.Error("failed to claim due steps", "error", err)
		return
	}

	for _, step := range claimed {
		if ctx.Err() != nil {
			// Shutting down; release unprocessed claims for the next cycle.
			if err := p.steps.Release(context.Background(), step.ID); err != nil {
				p.log.Warn("failed to release step on shutdown", "step_id", step.ID, "error", err)
			}
			continue
		}
		if err := p.dispatcher.Dispatch(ctx, step); err != nil {
			p.log.Error("step dispatch errored",
				"step_id", step.ID, "enrollment_id", step.EnrollmentID, "error", err)
			if p.metrics != nil {
				p.metrics.StepsDispatched.WithLabelValues(metrics.OutcomeError).Inc()
			}
			continue
		}
		if p.metrics != nil {
			p.metrics.StepsDispatched.WithLabelValues(metrics.OutcomeOK).Inc()
		}
	}
}

// ReclaimStale returns steps stuck in PROCESSING beyond the claim timeout
// back to PENDING. A crashed worker leaves claims behind; this sweep makes
// them eligible again.
func (p *Pool) ReclaimStale(ctx context.Context) {
	cutoff := p.clock.Now().Add(-p.claimTimeout)
	reclaimed, err := p.steps.ReclaimStale(ctx, cutoff)
	if err != nil {
		p.log.Error("failed to reclaim stale steps", "error", err)
		return
	}
	if reclaimed > 0 {
		p.log.Warn("reclaimed stale processing steps", "count", reclaimed)
		if p.metrics != nil {
			p.metrics.StepsReclaimed.Add(float64(reclaimed))
		}
	}
}
