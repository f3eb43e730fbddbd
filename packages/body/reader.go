package body

import (
	"bytes"
	"io"
	"sync"
)

const (
	// DefaultHighWater is the buffered byte count at which the producer is paused
	DefaultHighWater = 256 * 1024
	// DefaultLowWater is the buffered byte count at which it is resumed
	DefaultLowWater = 64 * 1024
)

// Reader exposes a Producer as an io.ReadCloser so it can be handed to
// net/http. The producer is started by the first Read. Writes are buffered;
// the producer is paused while the buffer holds at least the high-water
// mark and resumed once reads drain it to the low-water mark.
type Reader struct {
	mu      sync.Mutex
	cond    *sync.Cond
	p       Producer
	buf     bytes.Buffer
	high    int
	low     int
	started bool
	paused  bool
	done    bool
	closed  bool
	err     error
}

// ReaderOption is a functional option for Reader
type ReaderOption func(*Reader)

// WithWatermarks sets the pause and resume thresholds
func WithWatermarks(high, low int) ReaderOption {
	return func(r *Reader) {
		if high > 0 {
			r.high = high
		}
		if low >= 0 && low < r.high {
			r.low = low
		}
	}
}

// NewReader wraps p.
func NewReader(p Producer, opts ...ReaderOption) *Reader {
	r := &Reader{
		p:    p,
		high: DefaultHighWater,
		low:  DefaultLowWater,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.low >= r.high {
		r.low = r.high / 2
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Write is the consumer side used by the producer.
func (r *Reader) Write(b []byte) (int, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	r.buf.Write(b)
	pause := !r.paused && r.buf.Len() >= r.high
	if pause {
		r.paused = true
	}
	r.cond.Broadcast()
	r.mu.Unlock()

	if pause {
		r.p.Pause()
	}
	return len(b), nil
}

// Read blocks until bytes are buffered or production ends.
func (r *Reader) Read(b []byte) (int, error) {
	r.mu.Lock()
	if !r.started && !r.closed {
		r.started = true
		r.mu.Unlock()
		r.p.Start(r).OnDone(r.finish)
		r.mu.Lock()
	}

	for r.buf.Len() == 0 && !r.done && !r.closed {
		r.cond.Wait()
	}
	if r.closed {
		r.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	if r.buf.Len() == 0 {
		err := r.err
		r.mu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return 0, err
	}

	n, _ := r.buf.Read(b)
	resume := r.paused && r.buf.Len() <= r.low
	if resume {
		r.paused = false
	}
	r.mu.Unlock()

	if resume {
		r.p.Resume()
	}
	return n, nil
}

// Close stops the producer if it has not finished.
func (r *Reader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	done := r.done
	r.buf.Reset()
	r.cond.Broadcast()
	r.mu.Unlock()

	if !done {
		r.p.Stop()
	}
	return nil
}

// Len returns the producer's length, or -1 when unknown.
func (r *Reader) Len() int64 {
	return r.p.Length().Int64()
}

func (r *Reader) finish(err error) {
	r.mu.Lock()
	r.done = true
	r.err = err
	r.cond.Broadcast()
	r.mu.Unlock()
}
