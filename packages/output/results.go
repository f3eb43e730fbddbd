package output

import (
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/formstream/packages/bench"
	"github.com/abdul-hamid-achik/formstream/packages/multipart"
)

// EncodeResult describes a body written by encode or measured by length
type EncodeResult struct {
	Form        string
	ContentType string
	Length      int64 // -1 when unknown
	Written     int64
	Fields      []multipart.Field
}

// UploadResult describes one post of a form
type UploadResult struct {
	Form       string
	URL        string
	StatusCode int
	Status     string
	Duration   time.Duration
	Sent       int64
	Body       []byte
	Captures   map[string]any
	Missing    []string
}

// BenchResult describes a bench run
type BenchResult struct {
	Form       string
	Summary    *bench.Summary
	Thresholds []bench.ThresholdResult
}

// Passed reports whether every threshold passed
func (r *BenchResult) Passed() bool {
	for _, t := range r.Thresholds {
		if !t.Passed {
			return false
		}
	}
	return true
}

// Formatter renders CLI results
type Formatter interface {
	FormatEncode(r *EncodeResult)
	FormatUpload(r *UploadResult)
	FormatBench(r *BenchResult)
	FormatError(err error)
}

// New returns the formatter for format, which is "console" or "json".
// Console options are ignored by the JSON formatter.
func New(format string, w io.Writer, opts ...ConsoleOption) (Formatter, error) {
	switch format {
	case "", "console":
		return NewConsoleFormatter(append([]ConsoleOption{WithWriter(w)}, opts...)...), nil
	case "json":
		return NewJSONFormatter(WithJSONWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (expected console or json)", format)
	}
}
