// Package cli implements the uiwalk command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opencode-ai/uiwalk/internal/config"
	"github.com/opencode-ai/uiwalk/internal/db"
	"github.com/opencode-ai/uiwalk/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile        string
	jsonOutput     bool
	jsonlOutput    bool
	logLevel       string
	logFormat      string
	debugLogging   bool
	noProgress     bool
	nonInteractive bool
	browserHost    string
	browserPort    int
	runTimeout     time.Duration
	themeName      string

	appConfig *config.Config
)

// Build metadata, set from main.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// ErrRunFailed is returned after a failed run has already been reported.
var ErrRunFailed = errors.New("run failed")

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ~/.config/uiwalk/config.yaml)")
	flags.BoolVar(&jsonOutput, "json", false, "output JSON")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "output JSON lines (run events are streamed)")
	flags.StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "", "log format (console, json)")
	flags.BoolVar(&debugLogging, "debug", false, "shorthand for --log-level debug")
	flags.BoolVar(&noProgress, "no-progress", false, "disable progress output")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "never prompt, use defaults")
	flags.StringVar(&browserHost, "host", "", "Chrome remote debugging host (default 127.0.0.1)")
	flags.IntVar(&browserPort, "port", 0, "Chrome remote debugging port (default 9222)")
	flags.DurationVar(&runTimeout, "timeout", 0, "overall run timeout (default 30s)")
	flags.StringVar(&themeName, "theme", "default", "report color theme (default, high-contrast)")
}

var rootCmd = &cobra.Command{
	Use:   "uiwalk",
	Short: "Drive web UIs through declarative step recipes",
	Long: `uiwalk drives a Chrome tab through an ordered list of UI steps.

Each step waits for its target to appear, acts on it once, and settles
before the next step starts. The first step that cannot be satisfied ends
the run and is reported by label.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func initConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return &PreflightError{
			Message:  err.Error(),
			Hint:     "Check the config file and UIWALK_* environment variables",
			NextStep: "uiwalk --config <path> ...",
		}
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Browser.Host = browserHost
	}
	if flags.Changed("port") {
		cfg.Browser.Port = browserPort
	}
	if flags.Changed("timeout") {
		cfg.Run.Timeout = runTimeout
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if debugLogging {
		cfg.Logging.Level = "debug"
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	appConfig = cfg
	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.DefaultConfig()
	}
	return appConfig
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// WriteOutput encodes v as indented JSON, or as one line with --jsonl.
func WriteOutput(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	if !IsJSONLOutput() {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

// PreflightError is a user-facing error with a suggested fix.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Hint != "" {
		fmt.Fprintf(&b, "\nHint: %s", e.Hint)
	}
	if e.NextStep != "" {
		fmt.Fprintf(&b, "\nNext: %s", e.NextStep)
	}
	return b.String()
}

func openDatabase() (*db.DB, error) {
	cfg := GetConfig()
	database, err := db.Open(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if _, err := database.MigrateUp(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return database, nil
}
