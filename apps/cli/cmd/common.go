package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/form"
	"github.com/abdul-hamid-achik/formstream/packages/http"
	"github.com/abdul-hamid-achik/formstream/packages/multipart"
	"github.com/abdul-hamid-achik/formstream/packages/output"
)

// interruptContext is cancelled on SIGINT or SIGTERM
func interruptContext(w io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			fmt.Fprintln(w, "\nReceived interrupt, stopping gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func newFormatter(w io.Writer) (output.Formatter, error) {
	f, err := output.New(outputFlag, w,
		output.WithVerbose(verboseFlag),
		output.WithNoColor(noColorFlag),
	)
	return f, withExitCode(ExitUsageError, err)
}

// newCooperator returns a cooperator running until ctx is done, paced by
// the configured rate.
func newCooperator(ctx context.Context) *cooperate.Cooperator {
	c := cooperate.NewCooperator(
		cooperate.WithRate(cfg.Rate, 1),
		cooperate.WithLogger(logger),
	)
	c.Start(ctx)
	return c
}

func loadForm(path string) (*form.Definition, error) {
	def, err := form.Load(path)
	return def, withExitCode(ExitParseError, err)
}

// buildForm opens the definition's files on s using the configured chunk
// size.
func buildForm(def *form.Definition, s cooperate.Scheduler, opts ...multipart.Option) (*multipart.Producer, error) {
	opts = append([]multipart.Option{multipart.WithLogger(logger)}, opts...)
	p, err := def.Build(
		form.WithScheduler(s),
		form.WithChunkSize(cfg.ChunkSize),
		form.WithProducerOptions(opts...),
		form.WithResolver(resolver),
	)
	return p, withExitCode(ExitParseError, err)
}

// newClient builds an HTTP client from the resolved config
func newClient() *http.Client {
	opts := []http.ClientOption{
		http.WithTimeout(cfg.TimeoutDuration()),
		http.WithFollowRedirects(cfg.GetFollowRedirects()),
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithDefaultHeaders(cfg.Headers),
		http.WithLogger(logger),
	}
	if cfg.MaxRedirects > 0 {
		opts = append(opts, http.WithMaxRedirects(cfg.MaxRedirects))
	}
	if cfg.Proxy != "" {
		opts = append(opts, http.WithProxy(cfg.Proxy))
	}
	return http.NewClient(opts...)
}
