package multipart

import (
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/formstream/packages/async"
	"github.com/abdul-hamid-achik/formstream/packages/body"
	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/metrics"
)

// MaxBoundaryLength is the longest boundary RFC 2046 allows
const MaxBoundaryLength = 70

// Producer streams a multipart/form-data body. It implements body.Producer.
type Producer struct {
	fields    []Field
	boundary  string
	length    body.Length
	scheduler cooperate.Scheduler
	logger    *zap.Logger
	metrics   *metrics.Collector

	mu          sync.Mutex
	state       productionState
	task        *cooperate.Task
	result      *async.Signal
	lastReached int
	written     atomic.Int64
}

var _ body.Producer = (*Producer)(nil)

// Option is a functional option for Producer
type Option func(*Producer)

// WithBoundary sets an explicit boundary token instead of a random one.
// The caller is responsible for choosing a token that does not occur in
// any field value.
func WithBoundary(boundary string) Option {
	return func(p *Producer) {
		p.boundary = boundary
	}
}

// WithScheduler sets the scheduler that drives production
func WithScheduler(s cooperate.Scheduler) Option {
	return func(p *Producer) {
		p.scheduler = s
	}
}

// WithLogger sets the logger for production events
func WithLogger(l *zap.Logger) Option {
	return func(p *Producer) {
		p.logger = l
	}
}

// WithMetrics records production activity on c
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Producer) {
		p.metrics = c
	}
}

// NewProducer normalizes and orders fields and computes the body length.
// Invalid input is reported as a *ValidationError.
func NewProducer(fields any, opts ...Option) (*Producer, error) {
	p := &Producer{
		state:       idleState{},
		lastReached: -1,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.boundary == "" {
		p.boundary = NewBoundary()
	} else if err := validateBoundary(p.boundary); err != nil {
		return nil, err
	}
	if p.scheduler == nil {
		p.scheduler = cooperate.Default()
	}
	if p.logger == nil {
		p.logger = Logger()
	}

	normalized, err := Normalize(fields)
	if err != nil {
		return nil, err
	}
	sortFields(normalized)
	p.fields = normalized
	p.length = calculateLength(p.fields, p.boundary)

	p.logger.Debug("multipart producer created",
		zap.Int("fields", len(p.fields)),
		zap.Stringer("length", p.length))
	return p, nil
}

// NewBoundary returns a random boundary token.
func NewBoundary() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func validateBoundary(boundary string) error {
	if len(boundary) > MaxBoundaryLength {
		return invalid("", "boundary longer than %d bytes", MaxBoundaryLength)
	}
	if strings.ContainsAny(boundary, "\r\n") {
		return invalid("", "boundary contains a line break")
	}
	return nil
}

// Length returns the exact body length, or body.UnknownLength when an
// attachment does not know its own length.
func (p *Producer) Length() body.Length {
	return p.length
}

// Boundary returns the delimiter token.
func (p *Producer) Boundary() string {
	return p.boundary
}

// ContentType returns the request Content-Type for this body.
func (p *Producer) ContentType() string {
	return "multipart/form-data; boundary=" + p.boundary
}

// Fields returns the normalized fields in output order.
func (p *Producer) Fields() []Field {
	out := make([]Field, len(p.fields))
	copy(out, p.fields)
	return out
}

// State returns the current production state.
func (p *Producer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.public()
}

// Written returns the number of bytes written to the consumer so far.
func (p *Producer) Written() int64 {
	return p.written.Load()
}

// Start begins writing the body to w. The returned signal resolves with nil
// after the closing delimiter is written, or with a *ProductionError. It
// never resolves if Stop is called first.
func (p *Producer) Start(w io.Writer) *async.Signal {
	p.mu.Lock()
	var opts []cooperate.TaskOption
	switch st := p.state.(type) {
	case idleState:
		if st.paused {
			opts = append(opts, cooperate.Paused())
		}
	case stoppedState:
		p.mu.Unlock()
		return async.Resolved(body.ErrStopped)
	default:
		p.mu.Unlock()
		return async.Resolved(body.ErrAlreadyStarted)
	}

	p.state = producingState{paused: len(opts) > 0}
	p.result = async.NewSignal()
	out := &countingWriter{w: w, n: &p.written, metrics: p.metrics}
	p.task = p.scheduler.Cooperate(newWriteLoop(p.fields, p.boundary, &consumerSink{p: p, w: out}), opts...)
	task, result := p.task, p.result
	p.mu.Unlock()

	p.metrics.ProductionStarted()
	p.logger.Debug("multipart production started", zap.String("boundary", p.boundary))
	task.Done().OnDone(p.taskDone)
	return result
}

// Pause suspends production. While an attachment is being written the
// attachment is paused; otherwise the scheduler task is. A pause taken
// before Start holds production back until Resume.
func (p *Producer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch st := p.state.(type) {
	case idleState:
		p.state = idleState{paused: true}
	case producingState:
		if st.paused {
			return
		}
		p.state = producingState{paused: true}
		p.task.Pause()
	case attachmentState:
		if st.paused {
			return
		}
		st.paused = true
		p.state = st
		st.body.Pause()
	}
}

// Resume undoes Pause.
func (p *Producer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch st := p.state.(type) {
	case idleState:
		p.state = idleState{}
	case producingState:
		if !st.paused {
			return
		}
		p.state = producingState{}
		p.task.Resume()
	case attachmentState:
		if !st.paused {
			return
		}
		st.paused = false
		p.state = st
		st.body.Resume()
	}
}

// Stop cancels production and releases every attachment that is active or
// not yet reached. It is safe in any state. The signal returned by Start
// never resolves afterwards.
func (p *Producer) Stop() {
	p.mu.Lock()
	var active body.Producer
	switch st := p.state.(type) {
	case stoppedState, finishedState:
		p.mu.Unlock()
		return
	case attachmentState:
		active = st.body
	}
	wasIdle := p.task == nil
	task := p.task
	pending := p.unreachedLocked()
	p.state = stoppedState{}
	p.mu.Unlock()

	if active != nil {
		active.Stop()
	}
	if task != nil {
		task.Stop()
	}
	for _, b := range pending {
		b.Stop()
	}

	if !wasIdle {
		p.metrics.ProductionFinished(metrics.OutcomeStopped)
	}
	p.logger.Debug("multipart production stopped")
}

// startAttachment hands control to an attachment body and returns a signal
// that resolves once the body has been written.
func (p *Producer) startAttachment(index int, f Field, a *Attachment, w io.Writer) (*async.Signal, error) {
	p.mu.Lock()
	st, ok := p.state.(producingState)
	if !ok {
		// Stopped while this step was running; the task result is ignored.
		p.mu.Unlock()
		return nil, nil
	}
	p.state = attachmentState{index: index, field: f.Name, body: a.Body, paused: st.paused}
	p.lastReached = index
	if st.paused {
		// A pause taken during this step moves from the task to the body.
		p.task.Resume()
		a.Body.Pause()
	}
	p.mu.Unlock()

	done := async.NewSignal()
	a.Body.Start(w).OnDone(func(err error) {
		p.attachmentDone(err)
		if err != nil {
			done.Resolve(&ProductionError{Field: f.Name, Err: err})
			return
		}
		done.Resolve(nil)
	})
	return done, nil
}

// attachmentDone returns control to the scheduler task, carrying over a
// pending pause.
func (p *Producer) attachmentDone(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.state.(attachmentState)
	if !ok || err != nil {
		return
	}
	p.state = producingState{paused: st.paused}
	if st.paused {
		p.task.Pause()
	}
}

func (p *Producer) taskDone(err error) {
	if errors.Is(err, cooperate.ErrTaskStopped) {
		return
	}

	p.mu.Lock()
	if _, stopped := p.state.(stoppedState); stopped {
		p.mu.Unlock()
		return
	}
	if err != nil {
		var perr *ProductionError
		if !errors.As(err, &perr) {
			err = &ProductionError{Err: err}
		}
	}
	p.state = finishedState{err: err}
	pending := p.unreachedLocked()
	result := p.result
	p.mu.Unlock()

	if err != nil {
		for _, b := range pending {
			b.Stop()
		}
		p.metrics.ProductionFinished(metrics.OutcomeFailure)
		p.logger.Warn("multipart production failed", zap.Error(err))
	} else {
		scalars, attachments := p.countKinds()
		p.metrics.FieldsEncoded(scalars, attachments)
		p.metrics.ProductionFinished(metrics.OutcomeSuccess)
		p.logger.Debug("multipart production finished", zap.Int64("bytes", p.written.Load()))
	}
	result.Resolve(err)
}

// unreachedLocked returns the bodies of attachments production has not
// started yet.
func (p *Producer) unreachedLocked() []body.Producer {
	var out []body.Producer
	for i := p.lastReached + 1; i < len(p.fields); i++ {
		if a, ok := p.fields[i].Value.(*Attachment); ok {
			out = append(out, a.Body)
		}
	}
	return out
}

func (p *Producer) countKinds() (scalars, attachments int) {
	for _, f := range p.fields {
		if f.IsAttachment() {
			attachments++
		} else {
			scalars++
		}
	}
	return scalars, attachments
}

// consumerSink writes the loop output to the consumer and starts
// attachment bodies through the producer.
type consumerSink struct {
	p *Producer
	w io.Writer
}

func (s *consumerSink) write(b []byte) error {
	_, err := s.w.Write(b)
	return err
}

func (s *consumerSink) writeBody(index int, f Field, a *Attachment) (*async.Signal, error) {
	return s.p.startAttachment(index, f, a, s.w)
}

type countingWriter struct {
	w       io.Writer
	n       *atomic.Int64
	metrics *metrics.Collector
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n.Add(int64(n))
	c.metrics.BytesWritten(n)
	return n, err
}
