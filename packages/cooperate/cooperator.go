package cooperate

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abdul-hamid-achik/formstream/packages/async"
)

var (
	// ErrDone is returned by an Iterator when it has no more steps.
	ErrDone = errors.New("cooperate: iterator done")
	// ErrTaskStopped resolves the Done signal of a stopped task.
	ErrTaskStopped = errors.New("cooperate: task stopped")
)

// Iterator is a unit of cooperative work.
//
// Next performs one step. It returns ErrDone when exhausted, any other
// error to fail the task, or a non-nil signal to suspend the task until the
// signal resolves.
type Iterator interface {
	Next() (*async.Signal, error)
}

// IteratorFunc adapts a function to the Iterator interface.
type IteratorFunc func() (*async.Signal, error)

func (f IteratorFunc) Next() (*async.Signal, error) {
	return f()
}

// Scheduler hands iterators to a cooperative driver.
type Scheduler interface {
	Cooperate(it Iterator, opts ...TaskOption) *Task
}

// TaskOption configures a task as it is scheduled
type TaskOption func(*Task)

// Paused schedules the task holding one pause, so no step runs before the
// matching Resume.
func Paused() TaskOption {
	return func(t *Task) {
		t.pauses++
	}
}

// Cooperator schedules tasks and runs their steps one at a time.
type Cooperator struct {
	mu      sync.Mutex
	tasks   []*Task
	nextID  uint64
	wake    chan struct{}
	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option is a functional option for Cooperator
type Option func(*Cooperator)

// WithRate limits the run loop to stepsPerSecond ticks, allowing bursts of
// burst ticks.
func WithRate(stepsPerSecond float64, burst int) Option {
	return func(c *Cooperator) {
		if stepsPerSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(stepsPerSecond), burst)
	}
}

// WithLogger sets the logger for task lifecycle events
func WithLogger(l *zap.Logger) Option {
	return func(c *Cooperator) {
		c.logger = l
	}
}

// NewCooperator creates a cooperator. It does nothing until Tick, Drain or
// Run is called.
func NewCooperator(opts ...Option) *Cooperator {
	c := &Cooperator{
		wake: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = Logger()
	}
	return c
}

var (
	defaultCooperator *Cooperator
	defaultOnce       sync.Once
)

// Default returns a process-wide cooperator running on a background
// goroutine. It exists for caller convenience; components accept an
// explicit Scheduler.
func Default() *Cooperator {
	defaultOnce.Do(func() {
		defaultCooperator = NewCooperator()
		defaultCooperator.Start(context.Background())
	})
	return defaultCooperator
}

// Cooperate schedules it as a new task.
func (c *Cooperator) Cooperate(it Iterator, opts ...TaskOption) *Task {
	c.mu.Lock()
	c.nextID++
	t := &Task{
		id:   c.nextID,
		c:    c,
		it:   it,
		done: async.NewSignal(),
	}
	for _, opt := range opts {
		opt(t)
	}
	c.tasks = append(c.tasks, t)
	c.mu.Unlock()

	c.logger.Debug("task scheduled", zap.Uint64("task", t.id))
	c.notify()
	return t
}

// Tick runs one step of every task that is runnable when it is reached and
// returns the number of steps taken.
func (c *Cooperator) Tick() int {
	c.mu.Lock()
	snapshot := make([]*Task, len(c.tasks))
	copy(snapshot, c.tasks)
	c.mu.Unlock()

	steps := 0
	for _, t := range snapshot {
		c.mu.Lock()
		if !t.runnableLocked() {
			c.mu.Unlock()
			continue
		}
		t.stepping = true
		c.mu.Unlock()

		t.step()
		steps++
	}
	return steps
}

// Drain ticks until no task is runnable and returns the total number of
// steps. Tasks suspended on a signal or paused are left in place.
func (c *Cooperator) Drain() int {
	total := 0
	for {
		n := c.Tick()
		if n == 0 {
			return total
		}
		total += n
	}
}

// Pending returns the number of tasks that have not finished.
func (c *Cooperator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// Run drives the cooperator until ctx is done.
func (c *Cooperator) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !c.hasRunnable() {
			select {
			case <-c.wake:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		c.Tick()
	}
}

// Start runs the cooperator on a new goroutine.
func (c *Cooperator) Start(ctx context.Context) {
	go func() {
		_ = c.Run(ctx)
	}()
}

func (c *Cooperator) hasRunnable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tasks {
		if t.runnableLocked() {
			return true
		}
	}
	return false
}

func (c *Cooperator) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Cooperator) removeLocked(t *Task) {
	for i, other := range c.tasks {
		if other == t {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
			return
		}
	}
}
