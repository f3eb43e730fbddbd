package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/formstream/packages/cooperate"
	"github.com/abdul-hamid-achik/formstream/packages/core/config"
	"github.com/abdul-hamid-achik/formstream/packages/core/env"
	"github.com/abdul-hamid-achik/formstream/packages/multipart"
	"github.com/abdul-hamid-achik/formstream/packages/output"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configFlag  string
	verboseFlag bool
	noColorFlag bool
	outputFlag  string
	envFileFlag string
	varFlags    []string
)

// Resolved by the root command before any subcommand runs
var (
	cfg      = config.DefaultConfig()
	logger   = zap.NewNop()
	resolver = env.NewResolver()
)

var rootCmd = &cobra.Command{
	Use:   "formstream",
	Short: "Stream multipart/form-data bodies. Know the length up front.",
	Long: `formstream encodes multipart/form-data request bodies from form
definition files. Bodies are streamed in chunks with backpressure, and
the Content-Length is computed before a single byte is read.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	if err == nil {
		return ExitSuccess
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) && exitErr.err == nil {
		return exitErr.code
	}

	formatter, ferr := output.New(outputFlag, rootCmd.ErrOrStderr(), output.WithNoColor(noColorFlag))
	if ferr != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	} else {
		formatter.FormatError(err)
	}
	return exitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", getEnvString("FORMSTREAM_CONFIG", ""), "Path to config file (env: FORMSTREAM_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("FORMSTREAM_VERBOSE", false), "Verbose output and debug logging (env: FORMSTREAM_VERBOSE)")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", getEnvBool("FORMSTREAM_NO_COLOR", false), "Disable colored output (env: FORMSTREAM_NO_COLOR)")
	rootCmd.PersistentFlags().StringVar(&outputFlag, "output", getEnvString("FORMSTREAM_OUTPUT", "console"), "Output format: console, json (env: FORMSTREAM_OUTPUT)")
	rootCmd.PersistentFlags().StringVar(&envFileFlag, "env-file", getEnvString("FORMSTREAM_ENV_FILE", ""), "Path to .env file for {{name}} placeholders (env: FORMSTREAM_ENV_FILE)")
	rootCmd.PersistentFlags().StringArrayVar(&varFlags, "var", nil, "Set a placeholder variable as name=value (repeatable)")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExitCode(ExitUsageError, err)
	})

	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(lengthCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the config file, applies flag overrides and installs the
// debug logger when verbose output is on.
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.LoadConfig(configFlag)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	overrides := &config.Config{}
	if verboseFlag {
		overrides.Verbose = config.BoolPtr(true)
	}
	if noColorFlag {
		overrides.NoColor = config.BoolPtr(true)
	}
	cfg = loaded.Merge(overrides)
	noColorFlag = cfg.GetNoColor()
	verboseFlag = cfg.GetVerbose()

	if _, err := output.New(outputFlag, cmd.OutOrStdout()); err != nil {
		return withExitCode(ExitUsageError, err)
	}

	if err := setupResolver(); err != nil {
		return err
	}

	logger = zap.NewNop()
	if verboseFlag {
		l, err := zap.NewDevelopment()
		if err != nil {
			return withExitCode(ExitConfigError, fmt.Errorf("create logger: %w", err))
		}
		logger = l
	}
	cooperate.SetLogger(logger)
	multipart.SetLogger(logger)
	return nil
}

// setupResolver collects placeholder variables from the env file and --var
// flags, the latter taking precedence.
func setupResolver() error {
	var fromFile map[string]string
	if envFileFlag != "" {
		vars, err := env.LoadDotEnv(envFileFlag)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		fromFile = vars
	}

	fromFlags, err := env.ParseVariables(varFlags)
	if err != nil {
		return withExitCode(ExitUsageError, err)
	}

	resolver = env.NewResolver()
	resolver.SetVariables(env.MergeVariables(fromFile, fromFlags))
	return nil
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
