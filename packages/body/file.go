package body

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/abdul-hamid-achik/formstream/packages/async"
	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
)

// DefaultChunkSize is the number of bytes read per scheduler step
const DefaultChunkSize = 64 * 1024

// FileProducer streams an io.Reader in chunks, one chunk per scheduler
// step. If the reader is an io.Closer it is closed on Stop, and also on
// completion when the producer was created by Open.
type FileProducer struct {
	mu          sync.Mutex
	r           io.Reader
	length      Length
	chunkSize   int
	scheduler   cooperate.Scheduler
	task        *cooperate.Task
	paused      bool
	stopped     bool
	closed      bool
	closeOnDone bool
}

// FileOption is a functional option for FileProducer
type FileOption func(*FileProducer)

// WithChunkSize sets the read size per step
func WithChunkSize(n int) FileOption {
	return func(p *FileProducer) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithScheduler sets the scheduler that drives the reads
func WithScheduler(s cooperate.Scheduler) FileOption {
	return func(p *FileProducer) {
		p.scheduler = s
	}
}

// WithUnknownLength hides the length even when it could be determined.
func WithUnknownLength() FileOption {
	return func(p *FileProducer) {
		p.length = UnknownLength
	}
}

// NewFileProducer creates a producer reading from r. The length is taken
// from the bytes remaining in r when that can be found without consuming
// it (Len method, or seeking), and is unknown otherwise.
func NewFileProducer(r io.Reader, opts ...FileOption) *FileProducer {
	p := &FileProducer{
		r:         r,
		length:    remainingLength(r),
		chunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.scheduler == nil {
		p.scheduler = cooperate.Default()
	}
	return p
}

// Open opens the file at path for streaming. The file is closed when
// production completes, fails or is stopped.
func Open(path string, opts ...FileOption) (*FileProducer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open body file: %w", err)
	}
	p := NewFileProducer(f, opts...)
	p.closeOnDone = true
	return p, nil
}

func remainingLength(r io.Reader) Length {
	switch v := r.(type) {
	case interface{ Len() int }:
		return Known(int64(v.Len()))
	case io.Seeker:
		cur, err := v.Seek(0, io.SeekCurrent)
		if err != nil {
			return UnknownLength
		}
		end, err := v.Seek(0, io.SeekEnd)
		if err != nil {
			return UnknownLength
		}
		if _, err := v.Seek(cur, io.SeekStart); err != nil {
			return UnknownLength
		}
		return Known(end - cur)
	default:
		return UnknownLength
	}
}

func (p *FileProducer) Length() Length {
	return p.length
}

// Start schedules the chunked copy into w.
func (p *FileProducer) Start(w io.Writer) *async.Signal {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return async.Resolved(ErrStopped)
	}
	if p.task != nil {
		p.mu.Unlock()
		return async.Resolved(ErrAlreadyStarted)
	}
	var opts []cooperate.TaskOption
	if p.paused {
		opts = append(opts, cooperate.Paused())
	}
	task := p.scheduler.Cooperate(p.copier(w), opts...)
	p.task = task
	p.mu.Unlock()

	result := async.NewSignal()
	task.Done().OnDone(func(err error) {
		if errors.Is(err, cooperate.ErrTaskStopped) {
			return
		}
		if p.closeOnDone {
			p.close()
		}
		result.Resolve(err)
	})
	return result
}

func (p *FileProducer) copier(w io.Writer) cooperate.Iterator {
	buf := make([]byte, p.chunkSize)
	return cooperate.IteratorFunc(func() (*async.Signal, error) {
		n, err := p.r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return nil, werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil, cooperate.ErrDone
		}
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return nil, nil
	})
}

// Pause suspends reading after the current chunk.
func (p *FileProducer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.paused || p.stopped {
		return
	}
	p.paused = true
	if p.task != nil {
		p.task.Pause()
	}
}

// Resume continues reading.
func (p *FileProducer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.paused || p.stopped {
		return
	}
	p.paused = false
	if p.task != nil {
		p.task.Resume()
	}
}

// Stop cancels reading and closes the reader. The signal returned by Start
// never resolves afterwards.
func (p *FileProducer) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	task := p.task
	p.mu.Unlock()

	if task != nil {
		task.Stop()
	}
	p.close()
}

// Closed reports whether the underlying reader has been closed.
func (p *FileProducer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FileProducer) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if c, ok := p.r.(io.Closer); ok {
		_ = c.Close()
	}
}
