package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/formstream/packages/multipart"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func formatLength(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", n)
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

var _ Formatter = (*ConsoleFormatter)(nil)

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) FormatEncode(r *EncodeResult) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(f.writer, "%s\n", bold(r.Form))
	fmt.Fprintf(f.writer, "  Content-Type:   %s\n", r.ContentType)
	if r.Length < 0 {
		fmt.Fprintf(f.writer, "  Content-Length: %s\n", yellow("unknown"))
	} else {
		fmt.Fprintf(f.writer, "  Content-Length: %s\n", cyan(formatLength(r.Length)))
	}
	if r.Written > 0 {
		fmt.Fprintf(f.writer, "  Written:        %s\n", formatBytes(r.Written))
	}

	if f.verbose {
		for _, field := range r.Fields {
			f.formatField(field)
		}
	}
}

func (f *ConsoleFormatter) formatField(field multipart.Field) {
	dim := color.New(color.Faint).SprintFunc()

	a, ok := field.Value.(*multipart.Attachment)
	if !ok {
		fmt.Fprintf(f.writer, "    %s = %s\n", field.Name, formatValue(string(field.Value.(multipart.Scalar)), 60))
		return
	}

	name := a.Filename
	if !a.HasFilename() {
		name = "(no filename)"
	}
	fmt.Fprintf(f.writer, "    %s ← %s %s\n", field.Name, name,
		dim(fmt.Sprintf("[%s, %s bytes]", a.ContentType, a.Body.Length())))
}

func (f *ConsoleFormatter) FormatUpload(r *UploadResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	symbol := green("✓")
	status := green(r.Status)
	if r.StatusCode >= 400 {
		symbol = red("✗")
		status = red(r.Status)
	}

	fmt.Fprintf(f.writer, "%s %s → %s %s %s\n", symbol, r.Form, r.URL, status,
		cyan(fmt.Sprintf("(%dms, %s sent)", r.Duration.Milliseconds(), formatBytes(r.Sent))))

	if len(r.Captures) > 0 {
		names := make([]string, 0, len(r.Captures))
		for name := range r.Captures {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(f.writer, "  Captures:\n")
		for _, name := range names {
			fmt.Fprintf(f.writer, "    %s = %s\n", name, formatValue(r.Captures[name], 100))
		}
	}
	for _, name := range r.Missing {
		fmt.Fprintf(f.writer, "    %s %s\n", yellow("?"), name+" not found in response")
	}

	if f.verbose && len(r.Body) > 0 {
		fmt.Fprintf(f.writer, "  Body: %s\n", formatValue(string(r.Body), 500))
	}
}

func (f *ConsoleFormatter) FormatBench(r *BenchResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()
	s := r.Summary

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Bench: "+r.Form))
	fmt.Fprintf(f.writer, "  Iterations: %d", s.Iterations)
	if s.Errors > 0 {
		fmt.Fprintf(f.writer, " (%s)", red(fmt.Sprintf("%d failed", s.Errors)))
	}
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "  Duration:   %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(f.writer, "  Rate:       %.1f/s\n", s.IterationsPerSecond)
	fmt.Fprintf(f.writer, "  Throughput: %s/s\n", formatBytes(int64(s.BytesPerSecond)))
	fmt.Fprintf(f.writer, "\n  Encode time:\n")
	fmt.Fprintf(f.writer, "    p50 %-10s p95 %-10s p99 %s\n", s.P50, s.P95, s.P99)
	fmt.Fprintf(f.writer, "    min %-10s max %-10s mean %s\n", s.Min, s.Max, s.Mean)

	if len(r.Thresholds) > 0 {
		fmt.Fprintf(f.writer, "\n  Thresholds:\n")
		for _, t := range r.Thresholds {
			symbol := green("✓")
			if !t.Passed {
				symbol = red("✗")
			}
			fmt.Fprintf(f.writer, "    %s %s: %s (expected %s)\n", symbol, t.Name, t.Actual, t.Expected)
		}
	}
	fmt.Fprintf(f.writer, "\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("formstream"), version)
}
