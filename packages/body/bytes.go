package body

import (
	"io"
	"sync"

	"github.com/abdul-hamid-achik/formstream/packages/async"
)

// BytesProducer writes an in-memory payload in a single write.
type BytesProducer struct {
	mu      sync.Mutex
	data    []byte
	started bool
	stopped bool
}

// Bytes returns a producer for data. The slice is not copied.
func Bytes(data []byte) *BytesProducer {
	return &BytesProducer{data: data}
}

// String returns a producer for s.
func String(s string) *BytesProducer {
	return Bytes([]byte(s))
}

func (p *BytesProducer) Length() Length {
	return Known(int64(len(p.data)))
}

// Start writes the whole payload before returning. It is refused after
// Stop.
func (p *BytesProducer) Start(w io.Writer) *async.Signal {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return async.Resolved(ErrStopped)
	}
	if p.started {
		p.mu.Unlock()
		return async.Resolved(ErrAlreadyStarted)
	}
	p.started = true
	p.mu.Unlock()

	if len(p.data) == 0 {
		return async.Resolved(nil)
	}
	_, err := w.Write(p.data)
	return async.Resolved(err)
}

func (p *BytesProducer) Pause()  {}
func (p *BytesProducer) Resume() {}

func (p *BytesProducer) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}
