package multipart

import (
	"github.com/abdul-hamid-achik/formstream/packages/async"
	"github.com/abdul-hamid-achik/formstream/packages/body"
)

// lengthSink counts bytes without writing them. Once an attachment of
// unknown length is seen the total stays unknown.
type lengthSink struct {
	total body.Length
}

func (s *lengthSink) write(p []byte) error {
	if s.total.IsKnown() {
		s.total += body.Length(len(p))
	}
	return nil
}

func (s *lengthSink) writeBody(_ int, _ Field, a *Attachment) (*async.Signal, error) {
	n := a.Body.Length()
	switch {
	case !n.IsKnown():
		s.total = body.UnknownLength
	case s.total.IsKnown():
		s.total += n
	}
	return nil, nil
}

// calculateLength runs the write loop against a counting sink. Attachment
// bodies are never started.
func calculateLength(fields []Field, boundary string) body.Length {
	s := &lengthSink{}
	loop := newWriteLoop(fields, boundary, s)
	for {
		if _, err := loop.Next(); err != nil {
			return s.total
		}
	}
}
