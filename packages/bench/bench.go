package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/multipart"
)

const (
	// DefaultIterations is the number of producers encoded per run
	DefaultIterations = 100
	// DefaultConcurrency is the number of productions in flight
	DefaultConcurrency = 1
)

// Factory builds a fresh producer driven by s. It is called once per
// iteration.
type Factory func(s cooperate.Scheduler) (*multipart.Producer, error)

// Config controls a run
type Config struct {
	Iterations  int
	Concurrency int
	Rate        float64 // iterations started per second, 0 is unlimited
	// FailFast aborts the run on the first failed iteration
	FailFast bool
}

// Runner encodes producers repeatedly and records timings
type Runner struct {
	config    Config
	factory   Factory
	scheduler *cooperate.Cooperator
	metrics   *Metrics
	logger    *zap.Logger
}

// RunnerOption configures the runner
type RunnerOption func(*Runner)

// WithCooperator drives productions on c instead of a private cooperator.
// The caller is responsible for running it.
func WithCooperator(c *cooperate.Cooperator) RunnerOption {
	return func(r *Runner) {
		r.scheduler = c
	}
}

// WithLogger sets the logger for iteration failures
func WithLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// NewRunner creates a runner
func NewRunner(config Config, factory Factory, opts ...RunnerOption) *Runner {
	if config.Iterations <= 0 {
		config.Iterations = DefaultIterations
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}

	r := &Runner{
		config:  config,
		factory: factory,
		metrics: NewMetrics(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns the live metrics of the runner
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Run executes all iterations and returns the summary. It returns early
// with the context error when ctx is cancelled, and with the first
// iteration error when FailFast is set.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	scheduler := r.scheduler
	if scheduler == nil {
		scheduler = cooperate.NewCooperator()
		scheduler.Start(runCtx)
	}

	var limiter *rate.Limiter
	if r.config.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.config.Rate), 1)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(r.config.Concurrency)

	r.metrics.Start()

	for i := 0; i < r.config.Iterations; i++ {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}

		iteration := i
		g.Go(func() error {
			err := r.iterate(gctx, scheduler)
			if err != nil {
				r.logger.Debug("bench iteration failed", zap.Int("iteration", iteration), zap.Error(err))
				if r.config.FailFast {
					return fmt.Errorf("iteration %d: %w", iteration, err)
				}
			}
			return nil
		})
	}

	err := g.Wait()
	r.metrics.Stop()
	if err == nil {
		err = ctx.Err()
	}
	return r.metrics.GetSummary(), err
}

func (r *Runner) iterate(ctx context.Context, s cooperate.Scheduler) error {
	start := time.Now()
	p, err := r.factory(s)
	if err != nil {
		r.metrics.Record(time.Since(start), 0, err)
		return err
	}

	sig := p.Start(io.Discard)
	err = sig.Wait(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		p.Stop()
		return err
	}
	r.metrics.Record(time.Since(start), p.Written(), err)
	return err
}
