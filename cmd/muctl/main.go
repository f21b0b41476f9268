package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/mupipe/client"
	"github.com/danmuck/mupipe/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type options struct {
	configPath string
	home       string
	mailDir    string
	timeout    time.Duration
	output     string
	verbose    bool
}

var opts options

var rootCmd = &cobra.Command{
	Use:   "muctl",
	Short: "Run commands against a mu server worker",
	Long: `muctl launches a mu server worker, sends one command and prints the
result as JSON or YAML.

The mail store comes from --maildir, then $MAILDIR, then the config file.
The worker home comes from --home, then $MUPIPE_HOME, then the config file.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a muctl TOML config")
	flags.StringVar(&opts.home, "home", "", "worker home directory")
	flags.StringVar(&opts.mailDir, "maildir", "", "mail store location")
	flags.DurationVar(&opts.timeout, "timeout", 0, "read timeout per worker response")
	flags.StringVarP(&opts.output, "output", "o", "", "output format: json|yaml")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log worker lifecycle to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfig layers defaults, the config file, the environment and flags.
func resolveConfig() (cliConfig, error) {
	cfg, err := loadCLIConfig(opts.configPath)
	if err != nil {
		return cliConfig{}, err
	}
	cfg.applyEnv(os.Getenv)
	if opts.home != "" {
		cfg.Client.HomeDir = opts.home
	}
	if opts.mailDir != "" {
		cfg.Client.MailDir = opts.mailDir
	}
	if opts.timeout > 0 {
		cfg.Client.Timeout = opts.timeout
	}
	if opts.output != "" {
		cfg.Output = strings.ToLower(opts.output)
	}
	if err := cfg.validate(); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func setupLogging() zerolog.Logger {
	logging.ConfigureRuntime()
	if !opts.verbose && os.Getenv(logging.EnvLogLevel) == "" {
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
	return log.Logger.With().Str("app", "muctl").Logger()
}

// withEngine starts an engine, runs fn and shuts the worker down.
func withEngine(cmd *cobra.Command, progress client.ProgressFunc, fn func(context.Context, *client.Engine) (any, error)) error {
	cfg, err := resolveConfig()
	if err != nil {
		return err
	}
	logger := setupLogging()
	cfg.Client.Logger = &logger
	cfg.Client.Progress = progress

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := client.New(ctx, cfg.Client)
	if err != nil {
		return err
	}
	defer func() {
		if ferr := engine.Finish(context.Background()); ferr != nil {
			logger.Warn().Err(ferr).Msg("worker shutdown")
		}
	}()

	result, err := fn(ctx, engine)
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), cfg.Output, result)
}

func writeResult(w io.Writer, format string, v any) error {
	switch format {
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// parseArgs turns key=value words into call arguments. Values that read as
// booleans or numbers are passed as such.
func parseArgs(words []string) (client.Args, error) {
	args := make(client.Args, len(words))
	for _, word := range words {
		key, value, ok := strings.Cut(word, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", word)
		}
		args[key] = parseValue(value)
	}
	return args, nil
}

func parseValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !strings.ContainsAny(s, "xXpP_") {
		return f
	}
	return s
}
