package output

import (
	"encoding/json"
	"io"
	"os"

	"github.com/abdul-hamid-achik/formstream/packages/multipart"
)

// JSONField describes one encoded field
type JSONField struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Length      int64  `json:"length"`
}

// JSONEncode is the JSON form of an EncodeResult
type JSONEncode struct {
	Form        string      `json:"form"`
	ContentType string      `json:"contentType"`
	Length      int64       `json:"length"`
	Written     int64       `json:"written,omitempty"`
	Fields      []JSONField `json:"fields"`
}

// JSONUpload is the JSON form of an UploadResult
type JSONUpload struct {
	Form       string         `json:"form"`
	URL        string         `json:"url"`
	StatusCode int            `json:"statusCode"`
	Status     string         `json:"status"`
	Duration   float64        `json:"duration"`
	Sent       int64          `json:"sent"`
	Captures   map[string]any `json:"captures,omitempty"`
	Missing    []string       `json:"missing,omitempty"`
}

// JSONThreshold is the JSON form of a threshold check
type JSONThreshold struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// JSONBench is the JSON form of a BenchResult. Durations are milliseconds.
type JSONBench struct {
	Form                string          `json:"form"`
	Iterations          int64           `json:"iterations"`
	Errors              int64           `json:"errors"`
	Bytes               int64           `json:"bytes"`
	Duration            float64         `json:"duration"`
	IterationsPerSecond float64         `json:"iterationsPerSecond"`
	BytesPerSecond      float64         `json:"bytesPerSecond"`
	P50                 float64         `json:"p50"`
	P95                 float64         `json:"p95"`
	P99                 float64         `json:"p99"`
	Min                 float64         `json:"min"`
	Max                 float64         `json:"max"`
	Mean                float64         `json:"mean"`
	Thresholds          []JSONThreshold `json:"thresholds,omitempty"`
	Passed              bool            `json:"passed"`
}

// JSONFormatter writes each result as an indented JSON document
type JSONFormatter struct {
	writer io.Writer
}

var _ Formatter = (*JSONFormatter)(nil)

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func WithJSONWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) FormatEncode(r *EncodeResult) {
	out := JSONEncode{
		Form:        r.Form,
		ContentType: r.ContentType,
		Length:      r.Length,
		Written:     r.Written,
		Fields:      make([]JSONField, 0, len(r.Fields)),
	}
	for _, field := range r.Fields {
		jf := JSONField{Name: field.Name, Kind: "scalar"}
		switch v := field.Value.(type) {
		case multipart.Scalar:
			jf.Length = int64(len(v))
		case *multipart.Attachment:
			jf.Kind = "attachment"
			jf.Filename = v.Filename
			jf.ContentType = v.ContentType
			jf.Length = v.Body.Length().Int64()
		}
		out.Fields = append(out.Fields, jf)
	}
	f.encode(out)
}

func (f *JSONFormatter) FormatUpload(r *UploadResult) {
	f.encode(JSONUpload{
		Form:       r.Form,
		URL:        r.URL,
		StatusCode: r.StatusCode,
		Status:     r.Status,
		Duration:   float64(r.Duration.Milliseconds()),
		Sent:       r.Sent,
		Captures:   r.Captures,
		Missing:    r.Missing,
	})
}

func (f *JSONFormatter) FormatBench(r *BenchResult) {
	s := r.Summary
	ms := func(d interface{ Seconds() float64 }) float64 { return d.Seconds() * 1000 }

	out := JSONBench{
		Form:                r.Form,
		Iterations:          s.Iterations,
		Errors:              s.Errors,
		Bytes:               s.Bytes,
		Duration:            ms(s.Duration),
		IterationsPerSecond: s.IterationsPerSecond,
		BytesPerSecond:      s.BytesPerSecond,
		P50:                 ms(s.P50),
		P95:                 ms(s.P95),
		P99:                 ms(s.P99),
		Min:                 ms(s.Min),
		Max:                 ms(s.Max),
		Mean:                ms(s.Mean),
		Passed:              r.Passed(),
	}
	for _, t := range r.Thresholds {
		out.Thresholds = append(out.Thresholds, JSONThreshold(t))
	}
	f.encode(out)
}

func (f *JSONFormatter) FormatError(err error) {
	f.encode(map[string]string{"error": err.Error()})
}

func (f *JSONFormatter) encode(v any) {
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(v)
}
