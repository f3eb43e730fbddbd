package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/formstream/packages/capture"
	"github.com/abdul-hamid-achik/formstream/packages/core/config"
	"github.com/abdul-hamid-achik/formstream/packages/http"
	"github.com/abdul-hamid-achik/formstream/packages/output"
)

// WatchDebounceDelay is the delay before re-posting after a file change
const WatchDebounceDelay = 300 * time.Millisecond

var (
	postHeaderFlags  []string
	postCaptureFlags []string
	postWatchFlag    bool
	postTimeoutFlag  string
	postProxyFlag    string
	postInsecureFlag bool
)

var postCmd = &cobra.Command{
	Use:   "post <form.yaml> <url>",
	Short: "Upload a form with a streamed multipart body",
	Long: `Upload a form definition to a URL. Files are streamed in chunks and
the request carries an exact Content-Length unless a field streams with an
unknown length, in which case chunked transfer encoding is used.

Captures extract values from the response:
  --capture id=body:data.id      gjson path into a JSON body
  --capture etag=header:ETag     response header
  --capture code=status          status code
  --capture url=data.url         bare path, read from the body

Examples:
  formstream post upload.yaml https://example.com/upload
  formstream post upload.yaml https://example.com/upload -H "Authorization: Bearer t" --capture id=body:id
  formstream post upload.yaml http://localhost:8080/upload --watch`,
	Args: usageArgs(cobra.ExactArgs(2)),
	RunE: runPost,
}

func init() {
	postCmd.Flags().StringArrayVarP(&postHeaderFlags, "header", "H", nil, "Request header as \"Key: Value\" (repeatable)")
	postCmd.Flags().StringArrayVar(&postCaptureFlags, "capture", nil, "Capture name=source[:path] from the response (repeatable)")
	postCmd.Flags().BoolVarP(&postWatchFlag, "watch", "w", false, "Watch the form and its files and re-post on change")
	postCmd.Flags().StringVar(&postTimeoutFlag, "timeout", getEnvString("FORMSTREAM_TIMEOUT", ""), "Request timeout (e.g., 30s, 1m) (env: FORMSTREAM_TIMEOUT)")
	postCmd.Flags().StringVar(&postProxyFlag, "proxy", getEnvString("FORMSTREAM_PROXY", ""), "Proxy URL for HTTP requests (env: FORMSTREAM_PROXY)")
	postCmd.Flags().BoolVarP(&postInsecureFlag, "insecure", "k", getEnvBool("FORMSTREAM_INSECURE", false), "Disable SSL certificate validation (env: FORMSTREAM_INSECURE)")
}

type uploadJob struct {
	formPath  string
	url       string
	headers   map[string]string
	captures  []capture.Spec
	client    *http.Client
	formatter output.Formatter
}

func runPost(cmd *cobra.Command, args []string) error {
	job := &uploadJob{formPath: args[0], url: args[1]}

	if err := http.ValidateURL(job.url); err != nil {
		return withExitCode(ExitUsageError, err)
	}

	job.headers = make(map[string]string, len(postHeaderFlags))
	for _, raw := range postHeaderFlags {
		key, value, err := http.ParseHeader(raw)
		if err != nil {
			return withExitCode(ExitUsageError, err)
		}
		job.headers[key] = value
	}

	for _, raw := range postCaptureFlags {
		spec, err := capture.ParseSpec(raw)
		if err != nil {
			return withExitCode(ExitUsageError, err)
		}
		job.captures = append(job.captures, spec)
	}

	if err := applyPostOverrides(); err != nil {
		return err
	}
	job.client = newClient()

	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	job.formatter = formatter

	ctx, cancel := interruptContext(cmd.ErrOrStderr())
	defer cancel()

	err = job.run(ctx)
	if !postWatchFlag {
		return err
	}
	job.report(err)
	return watchForm(ctx, cmd.OutOrStdout(), job)
}

func applyPostOverrides() error {
	if postTimeoutFlag != "" {
		d, err := time.ParseDuration(postTimeoutFlag)
		if err != nil {
			return withExitCode(ExitUsageError, fmt.Errorf("invalid timeout %q: %w", postTimeoutFlag, err))
		}
		cfg.Timeout = int(d.Milliseconds())
	}
	if postProxyFlag != "" {
		cfg.Proxy = postProxyFlag
	}
	if postInsecureFlag {
		cfg.ValidateSSL = config.BoolPtr(false)
	}
	return nil
}

// run uploads the form once. The form is reloaded on every call so watch
// mode picks up edits.
func (j *uploadJob) run(ctx context.Context) error {
	def, err := loadForm(j.formPath)
	if err != nil {
		return err
	}

	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p, err := buildForm(def, newCooperator(uploadCtx))
	if err != nil {
		return err
	}

	headers, err := resolver.ResolveAll(j.headers)
	if err != nil {
		p.Stop()
		return withExitCode(ExitParseError, fmt.Errorf("header %w", err))
	}

	resp, err := j.client.Upload(uploadCtx, j.url, p, headers)
	if err != nil {
		return withExitCode(ExitNetworkError, fmt.Errorf("upload %s: %w", j.formPath, err))
	}

	captured, missing := capture.ExtractAll(resp, j.captures)
	j.formatter.FormatUpload(&output.UploadResult{
		Form:       j.formPath,
		URL:        j.url,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Duration:   resp.Duration,
		Sent:       p.Written(),
		Body:       resp.Body,
		Captures:   captured,
		Missing:    missing,
	})

	if !resp.IsSuccess() {
		return exitWith(ExitFailure)
	}
	return nil
}

// report prints an error from a watched run. Rejected uploads were already
// printed as results.
func (j *uploadJob) report(err error) {
	var e *exitError
	if err == nil || (errors.As(err, &e) && e.err == nil) {
		return
	}
	j.formatter.FormatError(err)
}

// watchTargets returns the absolute paths that trigger a re-post and the
// directories holding them.
func watchTargets(formPath string) (map[string]bool, []string) {
	paths := []string{formPath}
	if def, err := loadForm(formPath); err == nil {
		paths = append(paths, def.Files()...)
	}

	targets := make(map[string]bool, len(paths))
	var dirs []string
	seen := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		targets[abs] = true
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return targets, dirs
}

func watchForm(ctx context.Context, w io.Writer, job *uploadJob) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	var targets map[string]bool
	refresh := func() {
		var dirs []string
		targets, dirs = watchTargets(job.formPath)
		for _, dir := range dirs {
			if watchedDirs[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				job.formatter.FormatError(fmt.Errorf("failed to watch %s: %w", dir, err))
				continue
			}
			watchedDirs[dir] = true
		}
	}
	refresh()

	fmt.Fprintf(w, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounced changes are delivered here so uploads never overlap
	changed := make(chan string, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || !targets[name] {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case changed <- name:
				default:
				}
			})

		case name := <-changed:
			fmt.Fprintf(w, "\nFile changed: %s\nRe-posting...\n\n", name)
			job.report(job.run(ctx))
			refresh()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			job.formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}
