// Package body defines the streaming request body capability and its
// standard implementations.
//
// A Producer pushes bytes into an io.Writer when started and supports
// pause, resume and stop flow control. Its length is known up front when
// possible so that requests can carry a Content-Length header.
package body

import (
	"errors"
	"io"
	"strconv"

	"github.com/abdul-hamid-achik/formstream/packages/async"
)

var (
	// ErrAlreadyStarted is reported by producers started more than once.
	ErrAlreadyStarted = errors.New("body: producer already started")
	// ErrStopped is reported when starting a producer that was stopped.
	ErrStopped = errors.New("body: producer stopped")
)

// Length is the byte length of a body, or UnknownLength.
type Length int64

// UnknownLength marks a body whose size cannot be determined without
// reading it.
const UnknownLength Length = -1

// Known returns the Length for n bytes.
func Known(n int64) Length {
	if n < 0 {
		return UnknownLength
	}
	return Length(n)
}

// IsKnown reports whether l is a concrete byte count.
func (l Length) IsKnown() bool {
	return l >= 0
}

// Int64 returns the byte count, or -1 when unknown. The value matches the
// net/http ContentLength convention.
func (l Length) Int64() int64 {
	if !l.IsKnown() {
		return -1
	}
	return int64(l)
}

func (l Length) String() string {
	if !l.IsKnown() {
		return "unknown"
	}
	return strconv.FormatInt(int64(l), 10)
}

// Producer is a streaming body source.
//
// Start begins writing to w and returns a signal resolved with nil once all
// bytes are written, or with the first read or write error. After Stop the
// signal never resolves. Pause, Resume and Stop must not write to w.
// Pause before Start takes effect at Start: nothing is written until
// Resume. A source that writes its payload in a single Write, such as
// BytesProducer, may ignore Pause.
type Producer interface {
	Length() Length
	Start(w io.Writer) *async.Signal
	Pause()
	Resume()
	Stop()
}
