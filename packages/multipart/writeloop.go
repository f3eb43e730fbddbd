package multipart

import (
	"bytes"
	"strconv"

	"github.com/abdul-hamid-achik/formstream/packages/async"
	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
)

var crlf = []byte("\r\n")

// sink receives the output of a writeLoop. The length calculator and the
// real producer are both sinks, so they share one encoding algorithm.
type sink interface {
	write(p []byte) error
	// writeBody hands an attachment payload to the sink. A non-nil signal
	// suspends the loop until the payload is written.
	writeBody(index int, f Field, a *Attachment) (*async.Signal, error)
}

// writeLoop encodes one field per Next call and the closing delimiter
// after the last one.
type writeLoop struct {
	fields   []Field
	boundary string
	sink     sink
	index    int
	done     bool
}

func newWriteLoop(fields []Field, boundary string, s sink) *writeLoop {
	return &writeLoop{fields: fields, boundary: boundary, sink: s}
}

func (l *writeLoop) Next() (*async.Signal, error) {
	if l.done {
		return nil, cooperate.ErrDone
	}

	if l.index == len(l.fields) {
		l.done = true
		if err := l.sink.write(l.closing()); err != nil {
			return nil, &ProductionError{Err: err}
		}
		return nil, cooperate.ErrDone
	}

	index := l.index
	f := l.fields[index]
	l.index++

	if err := l.sink.write(l.header(f, index == 0)); err != nil {
		return nil, &ProductionError{Field: f.Name, Err: err}
	}

	switch v := f.Value.(type) {
	case Scalar:
		if len(v) == 0 {
			return nil, nil
		}
		if err := l.sink.write(v); err != nil {
			return nil, &ProductionError{Field: f.Name, Err: err}
		}
		return nil, nil
	case *Attachment:
		return l.sink.writeBody(index, f, v)
	default:
		return nil, &ProductionError{Field: f.Name, Err: errUnknownValue}
	}
}

// header renders the delimiter and part headers for f, up to and
// including the blank line that precedes the payload.
func (l *writeLoop) header(f Field, first bool) []byte {
	var b bytes.Buffer
	if !first {
		b.Write(crlf)
	}
	b.WriteString("--")
	b.WriteString(l.boundary)
	b.Write(crlf)

	b.WriteString(`Content-Disposition: form-data; name="`)
	b.WriteString(escape(f.Name))
	b.WriteByte('"')

	if a, ok := f.Value.(*Attachment); ok {
		if a.HasFilename() {
			b.WriteString(`; filename="`)
			b.WriteString(escape(a.Filename))
			b.WriteByte('"')
		}
		b.Write(crlf)

		b.WriteString("Content-Type: ")
		b.WriteString(a.ContentType)
		b.Write(crlf)

		if n := a.Body.Length(); n.IsKnown() {
			b.WriteString("Content-Length: ")
			b.WriteString(strconv.FormatInt(n.Int64(), 10))
			b.Write(crlf)
		}
	} else {
		b.Write(crlf)
	}

	b.Write(crlf)
	return b.Bytes()
}

func (l *writeLoop) closing() []byte {
	var b bytes.Buffer
	b.Write(crlf)
	b.WriteString("--")
	b.WriteString(l.boundary)
	b.WriteString("--")
	b.Write(crlf)
	return b.Bytes()
}
