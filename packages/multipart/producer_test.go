package multipart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	stdmultipart "mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/formstream/packages/body"
	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/metrics"
)

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

// produce runs p to completion on a manually ticked cooperator.
func produce(t *testing.T, p *Producer, c *cooperate.Cooperator) string {
	t.Helper()
	var buf bytes.Buffer
	sig := p.Start(&buf)
	c.Drain()
	require.True(t, sig.IsResolved(), "production did not finish")
	require.NoError(t, sig.Err())
	return buf.String()
}

func TestProducerWireFormat(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(map[string]any{
		"b": "hi",
		"a": []any{"f.txt", "text/plain", body.String("DATA")},
	}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	want := "--B\r\n" +
		"Content-Disposition: form-data; name=\"b\"\r\n" +
		"\r\n" +
		"hi\r\n" +
		"--B\r\n" +
		"Content-Disposition: form-data; name=\"a\"; filename=\"f.txt\"\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 4\r\n" +
		"\r\n" +
		"DATA\r\n" +
		"--B--\r\n"

	got := produce(t, p, c)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wire output mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, body.Known(int64(len(want))), p.Length())
	assert.Equal(t, int64(len(want)), p.Written())
	assert.Equal(t, StateFinished, p.State())
}

func TestProducerEmptyFields(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(nil, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	assert.Equal(t, "\r\n--B--\r\n", produce(t, p, c))
	assert.Equal(t, body.Known(9), p.Length())
}

func TestProducerOrdersScalarsBeforeAttachments(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer([]Pair{
		{Name: "zeta", Value: File("z.bin", body.String("z"))},
		{Name: "beta", Value: "2"},
		{Name: "alpha", Value: File("a.bin", body.String("a"))},
		{Name: "gamma", Value: []byte("3")},
		{Name: "beta", Value: "second beta"},
	}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	var names []string
	for _, f := range p.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"beta", "beta", "gamma", "alpha", "zeta"}, names)

	// Equal keys keep input order
	assert.Equal(t, Scalar("2"), p.Fields()[0].Value)
	assert.Equal(t, Scalar("second beta"), p.Fields()[1].Value)

	out := produce(t, p, c)
	assert.Less(t, strings.Index(out, `name="gamma"`), strings.Index(out, `name="alpha"`))
	assert.Less(t, strings.Index(out, `name="alpha"`), strings.Index(out, `name="zeta"`))
}

func TestProducerLengthMatchesOutput(t *testing.T) {
	c := cooperate.NewCooperator()
	payload := strings.Repeat("x", 10_000)
	p, err := NewProducer(map[string]any{
		"title":  "ünïcödé",
		"empty":  "",
		"doc":    File("doc.pdf", body.NewFileProducer(strings.NewReader(payload), body.WithChunkSize(512), body.WithScheduler(c))),
		"blob":   Blob("", body.String("raw")),
		"nordic": File("å.txt", body.String("fjord")),
	}, WithScheduler(c))
	require.NoError(t, err)
	require.True(t, p.Length().IsKnown())

	out := produce(t, p, c)
	assert.Equal(t, p.Length().Int64(), int64(len(out)))
}

func TestProducerUnknownLengthPoisonsTotal(t *testing.T) {
	c := cooperate.NewCooperator()
	unknown := body.NewFileProducer(io.LimitReader(strings.NewReader("abc"), 3), body.WithScheduler(c))
	p, err := NewProducer(map[string]any{
		"a":      "short",
		"stream": File("s.bin", unknown),
		"z":      File("z.bin", body.String("known")),
	}, WithScheduler(c))
	require.NoError(t, err)

	assert.Equal(t, body.UnknownLength, p.Length())

	// The length query must not consume the stream
	out := produce(t, p, c)
	assert.Contains(t, out, "\r\n\r\nabc\r\n")
	assert.NotContains(t, out, "Content-Length: 3")
	assert.Contains(t, out, "Content-Length: 5")
}

func TestProducerRoundTrip(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(map[string]any{
		"greeting": "hello world",
		"raw":      []byte("bytes\r\nwith breaks"),
		"photo":    FileWithType("me.png", "image/png", body.String("\x89PNG fake")),
		"notes":    File("notes", body.String("no extension")),
		"anon":     Blob("application/json", body.String(`{"a":1}`)),
	}, WithScheduler(c))
	require.NoError(t, err)

	out := produce(t, p, c)

	mediaType, params, err := mime.ParseMediaType(p.ContentType())
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)

	type part struct {
		filename    string
		contentType string
		data        string
	}
	parts := map[string]part{}
	r := stdmultipart.NewReader(strings.NewReader(out), params["boundary"])
	for {
		pt, err := r.NextRawPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(pt)
		require.NoError(t, err)
		parts[pt.FormName()] = part{
			filename:    pt.FileName(),
			contentType: pt.Header.Get("Content-Type"),
			data:        string(data),
		}
	}

	assert.Equal(t, part{data: "hello world"}, parts["greeting"])
	assert.Equal(t, part{data: "bytes\r\nwith breaks"}, parts["raw"])
	assert.Equal(t, part{filename: "me.png", contentType: "image/png", data: "\x89PNG fake"}, parts["photo"])
	assert.Equal(t, part{filename: "notes", contentType: "application/octet-stream", data: "no extension"}, parts["notes"])
	assert.Equal(t, part{contentType: "application/json", data: `{"a":1}`}, parts["anon"])
}

func TestProducerEscapesHeaderValues(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer([]Pair{
		{Name: "evil\r\nX-Injected: 1", Value: "v"},
		{Name: "up", Value: File("a\"b\n.txt", body.String("x"))},
	}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	out := produce(t, p, c)
	assert.Contains(t, out, `name="evilX-Injected: 1"`)
	assert.Contains(t, out, `filename="a\"b.txt"`)
	assert.NotContains(t, out, "\r\nX-Injected")
}

func TestProducerPauseResumeIsByteIdentical(t *testing.T) {
	build := func(c *cooperate.Cooperator) *Producer {
		p, err := NewProducer(map[string]any{
			"a":    "first",
			"b":    "second",
			"file": File("f.txt", body.NewFileProducer(strings.NewReader("0123456789"), body.WithChunkSize(3), body.WithScheduler(c))),
			"more": File("m.txt", body.NewFileProducer(strings.NewReader("abcdefg"), body.WithChunkSize(2), body.WithScheduler(c))),
		}, WithBoundary("B"), WithScheduler(c))
		require.NoError(t, err)
		return p
	}

	ref := cooperate.NewCooperator()
	want := produce(t, build(ref), ref)

	c := cooperate.NewCooperator()
	p := build(c)
	var buf bytes.Buffer
	sig := p.Start(&buf)

	for !sig.IsResolved() {
		p.Pause()
		assert.Equal(t, StatePaused, p.State())

		before := buf.Len()
		c.Drain()
		assert.Equal(t, before, buf.Len(), "bytes written while paused")

		p.Resume()
		c.Tick()
	}

	require.NoError(t, sig.Err())
	assert.Equal(t, want, buf.String())
}

// pausingWriter pauses the producer from inside Write, the way a slow
// consumer applies backpressure.
type pausingWriter struct {
	buf    bytes.Buffer
	p      *Producer
	writes int
}

func (w *pausingWriter) Write(b []byte) (int, error) {
	w.writes++
	w.p.Pause()
	return w.buf.Write(b)
}

func TestProducerPauseFromConsumerWrite(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(map[string]any{
		"a":    "scalar",
		"file": File("f.txt", body.NewFileProducer(strings.NewReader("abcdef"), body.WithChunkSize(2), body.WithScheduler(c))),
		"mem":  File("m.txt", body.String("memory")),
	}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	ref := cooperate.NewCooperator()
	refProducer, err := NewProducer(map[string]any{
		"a":    "scalar",
		"file": File("f.txt", body.NewFileProducer(strings.NewReader("abcdef"), body.WithChunkSize(2), body.WithScheduler(ref))),
		"mem":  File("m.txt", body.String("memory")),
	}, WithBoundary("B"), WithScheduler(ref))
	require.NoError(t, err)
	want := produce(t, refProducer, ref)

	w := &pausingWriter{p: p}
	sig := p.Start(w)

	for i := 0; i < 100 && !sig.IsResolved(); i++ {
		c.Drain()
		p.Resume()
	}

	require.True(t, sig.IsResolved())
	require.NoError(t, sig.Err())
	assert.Equal(t, want, w.buf.String())
	assert.Greater(t, w.writes, 5)
}

func TestProducerStopClosesActiveAttachment(t *testing.T) {
	c := cooperate.NewCooperator()
	active := &closeRecorder{Reader: strings.NewReader("0123456789")}
	later := &closeRecorder{Reader: strings.NewReader("later")}
	p, err := NewProducer(map[string]any{
		"a": "scalar",
		"b": File("b.txt", body.NewFileProducer(active, body.WithChunkSize(2), body.WithScheduler(c))),
		"c": File("c.txt", body.NewFileProducer(later, body.WithScheduler(c))),
	}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	var buf bytes.Buffer
	sig := p.Start(&buf)
	c.Tick() // scalar
	c.Tick() // b header, body started
	c.Tick() // first chunk of b
	require.Equal(t, StateProducingAttachment, p.State())

	p.Stop()
	assert.Equal(t, StateStopped, p.State())
	assert.True(t, active.closed)
	assert.True(t, later.closed)

	written := buf.Len()
	c.Drain()
	assert.Equal(t, written, buf.Len())
	assert.False(t, sig.IsResolved(), "signal must never fire after Stop")
	assert.Equal(t, 0, c.Pending())

	// Stop is idempotent and Start is refused
	p.Stop()
	assert.ErrorIs(t, p.Start(&buf).Err(), body.ErrStopped)
}

func TestProducerStopBetweenFields(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(map[string]any{"a": "1", "b": "2"}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	var buf bytes.Buffer
	sig := p.Start(&buf)
	c.Tick()
	p.Stop()
	c.Drain()

	assert.NotContains(t, buf.String(), `name="b"`)
	assert.False(t, sig.IsResolved())
}

func TestProducerStopWhileIdleReleasesAttachments(t *testing.T) {
	c := cooperate.NewCooperator()
	src := &closeRecorder{Reader: strings.NewReader("data")}
	p, err := NewProducer(map[string]any{
		"f": File("f.txt", body.NewFileProducer(src, body.WithScheduler(c))),
	}, WithScheduler(c))
	require.NoError(t, err)

	p.Stop()
	assert.True(t, src.closed)
	assert.Equal(t, StateStopped, p.State())
}

func TestProducerAttachmentFailure(t *testing.T) {
	c := cooperate.NewCooperator()
	boom := errors.New("disk gone")
	later := &closeRecorder{Reader: strings.NewReader("never read")}
	p, err := NewProducer(map[string]any{
		"a":   "ok",
		"bad": File("bad.bin", body.NewFileProducer(failingReader{err: boom}, body.WithScheduler(c))),
		"zz":  File("zz.bin", body.NewFileProducer(later, body.WithScheduler(c))),
	}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	var buf bytes.Buffer
	sig := p.Start(&buf)
	c.Drain()

	require.True(t, sig.IsResolved())
	var perr *ProductionError
	require.ErrorAs(t, sig.Err(), &perr)
	assert.Equal(t, "bad", perr.Field)
	assert.ErrorIs(t, sig.Err(), boom)

	assert.NotContains(t, buf.String(), `name="zz"`)
	assert.NotContains(t, buf.String(), "--B--")
	assert.True(t, later.closed)
	assert.Equal(t, StateFinished, p.State())
}

type brokenWriter struct{ after int }

func (w *brokenWriter) Write(b []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("connection reset")
	}
	w.after--
	return len(b), nil
}

func TestProducerConsumerWriteFailure(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(map[string]any{"a": "1", "b": "2"}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	sig := p.Start(&brokenWriter{after: 2})
	c.Drain()

	var perr *ProductionError
	require.ErrorAs(t, sig.Err(), &perr)
	assert.Equal(t, "b", perr.Field)
	assert.EqualError(t, perr.Err, "connection reset")
}

func TestProducerStartTwice(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(map[string]any{"a": "1"}, WithScheduler(c))
	require.NoError(t, err)

	p.Start(io.Discard)
	assert.ErrorIs(t, p.Start(io.Discard).Err(), body.ErrAlreadyStarted)
}

func TestProducerStateTransitions(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(map[string]any{
		"a": "1",
		"f": File("f.txt", body.NewFileProducer(strings.NewReader("abcd"), body.WithChunkSize(2), body.WithScheduler(c))),
	}, WithScheduler(c))
	require.NoError(t, err)

	assert.Equal(t, StateIdle, p.State())

	// Flow control before Start has nothing to act on
	p.Pause()
	p.Resume()
	assert.Equal(t, StateIdle, p.State())

	p.Start(io.Discard)
	assert.Equal(t, StateProducing, p.State())

	c.Tick()
	assert.Equal(t, StateProducing, p.State())
	c.Tick()
	assert.Equal(t, StateProducingAttachment, p.State())

	c.Drain()
	assert.Equal(t, StateFinished, p.State())

	// Flow control after completion is a no-op
	p.Pause()
	p.Stop()
	assert.Equal(t, StateFinished, p.State())
}

// scrape returns the collector's metrics in the Prometheus text format.
func scrape(t *testing.T, c *metrics.Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestProducerMetrics(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		c := cooperate.NewCooperator()
		collector := metrics.NewCollector()
		p, err := NewProducer(map[string]any{
			"a": "1",
			"b": "2",
			"f": File("f.txt", body.String("data")),
		}, WithScheduler(c), WithMetrics(collector))
		require.NoError(t, err)

		out := produce(t, p, c)
		assert.Equal(t, int64(len(out)), p.Written())

		text := scrape(t, collector)
		assert.Contains(t, text, "formstream_productions_started_total 1\n")
		assert.Contains(t, text, `formstream_productions_finished_total{outcome="success"} 1`)
		assert.Contains(t, text, `formstream_fields_encoded_total{kind="scalar"} 2`)
		assert.Contains(t, text, `formstream_fields_encoded_total{kind="attachment"} 1`)
		assert.Contains(t, text, fmt.Sprintf("formstream_bytes_written_total %d\n", len(out)))
		assert.NotContains(t, text, `outcome="failure"`)
	})

	t.Run("attachment failure", func(t *testing.T) {
		c := cooperate.NewCooperator()
		collector := metrics.NewCollector()
		p, err := NewProducer(map[string]any{
			"bad": File("bad.bin", body.NewFileProducer(failingReader{err: errors.New("disk gone")}, body.WithScheduler(c))),
		}, WithScheduler(c), WithMetrics(collector))
		require.NoError(t, err)

		sig := p.Start(io.Discard)
		c.Drain()
		require.Error(t, sig.Err())

		text := scrape(t, collector)
		assert.Contains(t, text, "formstream_productions_started_total 1\n")
		assert.Contains(t, text, `formstream_productions_finished_total{outcome="failure"} 1`)
		assert.NotContains(t, text, `outcome="success"`)
		assert.NotContains(t, text, "formstream_fields_encoded_total{")
	})

	t.Run("stopped", func(t *testing.T) {
		c := cooperate.NewCooperator()
		collector := metrics.NewCollector()
		running, err := NewProducer(map[string]any{"a": "1", "b": "2"}, WithScheduler(c), WithMetrics(collector))
		require.NoError(t, err)
		idle, err := NewProducer(map[string]any{"a": "1"}, WithScheduler(c), WithMetrics(collector))
		require.NoError(t, err)

		running.Start(io.Discard)
		c.Tick()
		running.Stop()
		idle.Stop()

		text := scrape(t, collector)
		assert.Contains(t, text, "formstream_productions_started_total 1\n")
		assert.Contains(t, text, `formstream_productions_finished_total{outcome="stopped"} 1`)
		assert.NotContains(t, text, `outcome="success"`)
	})
}

func TestProducerNestedProducer(t *testing.T) {
	c := cooperate.NewCooperator()
	inner, err := NewProducer(map[string]any{"x": "1"}, WithBoundary("inner"), WithScheduler(c))
	require.NoError(t, err)

	outer, err := NewProducer(map[string]any{
		"mixed": FileWithType("", inner.ContentType(), inner),
	}, WithBoundary("outer"), WithScheduler(c))
	require.NoError(t, err)

	out := produce(t, outer, c)
	assert.Equal(t, outer.Length().Int64(), int64(len(out)))
	assert.Contains(t, out, "--inner--")
	assert.NotContains(t, out, "filename=")
	assert.Equal(t, StateFinished, inner.State())
}

// headerPauser pauses the producer once, right after a write containing
// marker.
type headerPauser struct {
	buf    bytes.Buffer
	p      *Producer
	marker []byte
	paused bool
}

func (w *headerPauser) Write(b []byte) (int, error) {
	n, err := w.buf.Write(b)
	if !w.paused && bytes.Contains(b, w.marker) {
		w.paused = true
		w.p.Pause()
	}
	return n, err
}

func TestProducerNestedProducerHonorsPause(t *testing.T) {
	build := func(c *cooperate.Cooperator) (inner, outer *Producer) {
		inner, err := NewProducer(map[string]any{"x": "1", "y": "2"}, WithBoundary("inner"), WithScheduler(c))
		require.NoError(t, err)
		outer, err = NewProducer(map[string]any{
			"a":     "scalar",
			"mixed": Blob(inner.ContentType(), inner),
		}, WithBoundary("outer"), WithScheduler(c))
		require.NoError(t, err)
		return inner, outer
	}

	ref := cooperate.NewCooperator()
	_, refOuter := build(ref)
	want := produce(t, refOuter, ref)

	c := cooperate.NewCooperator()
	inner, outer := build(c)
	w := &headerPauser{p: outer, marker: []byte(`name="mixed"`)}
	sig := outer.Start(w)

	c.Drain()
	require.True(t, w.paused)
	assert.Equal(t, StatePaused, outer.State())
	assert.Equal(t, StatePaused, inner.State())

	written := w.buf.Len()
	c.Drain()
	assert.Equal(t, written, w.buf.Len(), "bytes written while paused")
	assert.False(t, sig.IsResolved())

	outer.Resume()
	c.Drain()
	require.True(t, sig.IsResolved())
	require.NoError(t, sig.Err())
	assert.Equal(t, want, w.buf.String())
	assert.Equal(t, StateFinished, inner.State())
}

func TestProducerPauseBeforeStart(t *testing.T) {
	c := cooperate.NewCooperator()
	p, err := NewProducer(map[string]any{"a": "1"}, WithBoundary("B"), WithScheduler(c))
	require.NoError(t, err)

	p.Pause()
	assert.Equal(t, StateIdle, p.State())

	var buf bytes.Buffer
	sig := p.Start(&buf)
	assert.Equal(t, StatePaused, p.State())
	c.Drain()
	assert.Empty(t, buf.String())

	p.Resume()
	c.Drain()
	require.True(t, sig.IsResolved())
	require.NoError(t, sig.Err())
	assert.Equal(t, "--B\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n--B--\r\n", buf.String())
}

func TestNewProducerValidation(t *testing.T) {
	tests := []struct {
		name   string
		fields any
		opts   []Option
		reason string
	}{
		{
			name:   "invalid utf8 bytes",
			fields: map[string]any{"a": []byte{0xff, 0xfe}},
			reason: "not valid UTF-8",
		},
		{
			name:   "invalid utf8 string",
			fields: map[string]any{"a": "\xc3\x28"},
			reason: "not valid UTF-8",
		},
		{
			name:   "tuple arity",
			fields: map[string]any{"a": []any{"f.txt"}},
			reason: "2 or 3 elements, got 1",
		},
		{
			name:   "tuple too long",
			fields: map[string]any{"a": []any{"f", "t", body.String(""), "extra"}},
			reason: "2 or 3 elements, got 4",
		},
		{
			name:   "tuple body type",
			fields: map[string]any{"a": []any{"f.txt", "not a producer"}},
			reason: "must be a body.Producer",
		},
		{
			name:   "unsupported value",
			fields: map[string]any{"a": 42},
			reason: "unsupported value type int",
		},
		{
			name:   "nil attachment body",
			fields: map[string]any{"a": &Attachment{Filename: "x"}},
			reason: "no body",
		},
		{
			name:   "content type with line break",
			fields: map[string]any{"a": FileWithType("a.txt", "text/plain\r\nX-Injected: 1", body.String("x"))},
			reason: "content type contains a line break",
		},
		{
			name:   "unsupported collection",
			fields: []string{"a"},
			reason: "unsupported field collection",
		},
		{
			name:   "boundary with newline",
			fields: map[string]any{},
			opts:   []Option{WithBoundary("a\nb")},
			reason: "line break",
		},
		{
			name:   "boundary too long",
			fields: map[string]any{},
			opts:   []Option{WithBoundary(strings.Repeat("b", 71))},
			reason: "longer than 70",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithScheduler(cooperate.NewCooperator())}, tt.opts...)
			_, err := NewProducer(tt.fields, opts...)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Error(), tt.reason)
		})
	}
}

func TestRandomBoundary(t *testing.T) {
	a, err := NewProducer(nil, WithScheduler(cooperate.NewCooperator()))
	require.NoError(t, err)
	b, err := NewProducer(nil, WithScheduler(cooperate.NewCooperator()))
	require.NoError(t, err)

	assert.Len(t, a.Boundary(), 32)
	assert.NotEqual(t, a.Boundary(), b.Boundary())
	assert.Equal(t, "multipart/form-data; boundary="+a.Boundary(), a.ContentType())
}
