package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/formstream/packages/bench"
	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/form"
	"github.com/abdul-hamid-achik/formstream/packages/metrics"
	"github.com/abdul-hamid-achik/formstream/packages/multipart"
	"github.com/abdul-hamid-achik/formstream/packages/output"
)

var (
	benchIterationsFlag   int
	benchConcurrencyFlag  int
	benchRateFlag         float64
	benchFailFastFlag     bool
	benchMetricsAddrFlag  string
	benchMaxP99Flag       string
	benchMaxErrorRateFlag float64
	benchMinRateFlag      float64
)

var benchCmd = &cobra.Command{
	Use:   "bench <form.yaml>",
	Short: "Encode a form repeatedly and report timings",
	Long: `Encode a form many times into a discarding sink and report latency
percentiles and throughput. Files are re-read on every iteration.

Thresholds turn the report into a pass/fail check:
  --max-p99 50ms --max-error-rate 0.01 --min-rate 100

Examples:
  formstream bench upload.yaml -n 1000 -c 8
  formstream bench upload.yaml --rate 20 --metrics-addr :9090`,
	Args: usageArgs(cobra.ExactArgs(1)),
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVarP(&benchIterationsFlag, "iterations", "n", getEnvInt("FORMSTREAM_BENCH_ITERATIONS", bench.DefaultIterations), "Number of encodes (env: FORMSTREAM_BENCH_ITERATIONS)")
	benchCmd.Flags().IntVarP(&benchConcurrencyFlag, "concurrency", "c", getEnvInt("FORMSTREAM_BENCH_CONCURRENCY", bench.DefaultConcurrency), "Encodes in flight (env: FORMSTREAM_BENCH_CONCURRENCY)")
	benchCmd.Flags().Float64VarP(&benchRateFlag, "rate", "r", 0, "Encodes started per second (0 for unlimited)")
	benchCmd.Flags().BoolVar(&benchFailFastFlag, "fail-fast", false, "Stop on the first failed encode")
	benchCmd.Flags().StringVar(&benchMetricsAddrFlag, "metrics-addr", getEnvString("FORMSTREAM_METRICS_ADDR", ""), "Serve Prometheus metrics on this address while running (env: FORMSTREAM_METRICS_ADDR)")
	benchCmd.Flags().StringVar(&benchMaxP99Flag, "max-p99", "", "Fail when p99 encode time exceeds this duration")
	benchCmd.Flags().Float64Var(&benchMaxErrorRateFlag, "max-error-rate", 0, "Fail when the error rate exceeds this fraction")
	benchCmd.Flags().Float64Var(&benchMinRateFlag, "min-rate", 0, "Fail when fewer encodes per second complete")
}

func benchThresholds() (bench.Thresholds, error) {
	t := bench.Thresholds{
		ErrorRate: benchMaxErrorRateFlag,
		MinRate:   benchMinRateFlag,
	}
	if benchMaxP99Flag != "" {
		d, err := time.ParseDuration(benchMaxP99Flag)
		if err != nil {
			return t, fmt.Errorf("invalid --max-p99 %q: %w", benchMaxP99Flag, err)
		}
		t.P99 = d
	}
	return t, nil
}

func runBench(cmd *cobra.Command, args []string) error {
	formPath := args[0]

	thresholds, err := benchThresholds()
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	def, err := loadForm(formPath)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext(cmd.ErrOrStderr())
	defer cancel()

	var collector *metrics.Collector
	if benchMetricsAddrFlag != "" {
		collector = metrics.NewCollector()
		if err := collector.Serve(benchMetricsAddrFlag, formatter.FormatError); err != nil {
			return withExitCode(ExitNetworkError, err)
		}
		defer collector.Close()
	}

	factory := func(s cooperate.Scheduler) (*multipart.Producer, error) {
		return def.Build(
			form.WithScheduler(s),
			form.WithChunkSize(cfg.ChunkSize),
			form.WithProducerOptions(multipart.WithMetrics(collector), multipart.WithLogger(logger)),
			form.WithResolver(resolver),
		)
	}

	runner := bench.NewRunner(bench.Config{
		Iterations:  benchIterationsFlag,
		Concurrency: benchConcurrencyFlag,
		Rate:        benchRateFlag,
		FailFast:    benchFailFastFlag,
	}, factory, bench.WithCooperator(newCooperator(ctx)), bench.WithLogger(logger))

	summary, err := runner.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bench %s: %w", formPath, err)
	}

	result := &output.BenchResult{
		Form:       formPath,
		Summary:    summary,
		Thresholds: summary.Evaluate(thresholds),
	}
	formatter.FormatBench(result)

	if !result.Passed() {
		return exitWith(ExitFailure)
	}
	return nil
}
