package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/opencode-ai/uiwalk/internal/browser"
	"github.com/opencode-ai/uiwalk/internal/db"
	"github.com/opencode-ai/uiwalk/internal/events"
	"github.com/opencode-ai/uiwalk/internal/logging"
	"github.com/opencode-ai/uiwalk/internal/recipes"
	"github.com/opencode-ai/uiwalk/internal/runner"
	"github.com/spf13/cobra"
)

var (
	runVars       []string
	runOutput     string
	runOutputFile string
	runAttachURL  string
)

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayVar(&runVars, "var", nil, "recipe variable as key=value (repeatable)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", string(recipes.OutputStdout), "output target (stdout, file, clipboard)")
	runCmd.Flags().StringVar(&runOutputFile, "output-file", "", "file to write the result to (with --output file)")
	runCmd.Flags().StringVar(&runAttachURL, "attach-url", "", "attach to the tab whose URL contains this text")
}

var runCmd = &cobra.Command{
	Use:   "run <recipe>",
	Short: "Run a recipe against the browser",
	Long: `Run a recipe against a Chrome tab reachable over remote debugging.

Start Chrome with --remote-debugging-port=9222 and log in first; uiwalk
attaches to the running browser and never submits forms on its own.`,
	Example: `  # Open the ONES Epic dialog and print the form fields
  uiwalk run ones_create_epic

  # Override recipe variables and copy the JSON result
  uiwalk run ones_create_epic --var owner=Lin --output clipboard`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		name := args[0]

		vars, err := parseVars(runVars)
		if err != nil {
			return err
		}

		target := recipes.OutputTarget(strings.ToLower(strings.TrimSpace(runOutput)))
		switch target {
		case recipes.OutputStdout, recipes.OutputClipboard:
		case recipes.OutputFile:
			if strings.TrimSpace(runOutputFile) == "" {
				return &PreflightError{
					Message:  "--output file requires --output-file",
					NextStep: fmt.Sprintf("uiwalk run %s --output file --output-file result.json", name),
				}
			}
		default:
			return fmt.Errorf("unknown output target %q (stdout, file, clipboard)", runOutput)
		}

		recipe, err := recipes.Library{ProjectDir: cfg.Run.ProjectDir}.Find(name)
		if err != nil {
			if errors.Is(err, recipes.ErrRecipeNotFound) {
				return &PreflightError{
					Message:  fmt.Sprintf("recipe %q not found", name),
					Hint:     "Recipes are loaded from .uiwalk/recipes, ~/.config/uiwalk/recipes and the builtins",
					NextStep: "uiwalk recipes list",
				}
			}
			return err
		}
		if !recipe.SupportsOutput(target) {
			return fmt.Errorf("recipe %q does not support output target %q", recipe.Name, target)
		}
		if IsInteractive() {
			if err := promptMissingVars(os.Stdin, os.Stderr, recipe, vars); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if cfg.Run.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Run.Timeout)
			defer cancel()
		}

		attach := cfg.Browser.AttachURL
		if cmd.Flags().Changed("attach-url") {
			attach = runAttachURL
		}

		progress := startProgress(fmt.Sprintf("Connecting to Chrome at %s:%d", cfg.Browser.Host, cfg.Browser.Port))
		env, err := browser.Connect(ctx, browser.Config{
			URL:            cfg.BrowserURL(),
			AttachURL:      attach,
			ConnectTimeout: cfg.Browser.ConnectTimeout,
		})
		if err != nil {
			progress.Fail(err)
			return &PreflightError{
				Message:  err.Error(),
				Hint:     "Start Chrome with --remote-debugging-port and check --host/--port",
				NextStep: fmt.Sprintf("chrome --remote-debugging-port=%d", cfg.Browser.Port),
			}
		}
		progress.Done()
		defer env.Close()

		opts := []runner.Option{runner.WithInterval(cfg.Poll.Interval)}
		var sinks events.MultiSink
		if progressEnabled() {
			sinks = append(sinks, newStepProgress(os.Stderr))
		}
		if IsJSONLOutput() && target == recipes.OutputStdout {
			sinks = append(sinks, events.NewJSONLSink(os.Stdout))
		}
		if cfg.History.Enabled {
			database, err := openDatabase()
			if err != nil {
				logger := logging.Component("cli")
				logger.Warn().Err(err).Msg("run history disabled")
			} else {
				defer database.Close()
				opts = append(opts, runner.WithStore(db.NewRunRepository(database)))
				sinks = append(sinks, events.NewRepositorySink(db.NewEventRepository(database)))
			}
		}
		opts = append(opts, runner.WithSink(sinks))

		out, err := runner.New(opts...).Run(ctx, runner.Request{
			Recipe: recipe,
			Vars:   vars,
			Env:    env,
		})
		if err != nil {
			return err
		}

		if err := deliver(os.Stdout, out, target, runOutputFile); err != nil {
			return err
		}
		if !out.Success {
			return ErrRunFailed
		}
		return nil
	},
}

// parseVars turns key=value pairs into a map. Later pairs win.
func parseVars(pairs []string) (map[string]string, error) {
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --var %q: expected key=value", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// promptMissingVars asks for required inputs that have no value and no default.
func promptMissingVars(in io.Reader, out io.Writer, recipe *recipes.Recipe, vars map[string]string) error {
	reader := bufio.NewReader(in)
	for _, name := range recipe.InputNames() {
		input := recipe.Inputs[name]
		if !input.IsRequired() || input.Default != "" {
			continue
		}
		if _, ok := vars[name]; ok {
			continue
		}
		label := name
		if input.Description != "" {
			label = fmt.Sprintf("%s (%s)", name, input.Description)
		}
		fmt.Fprintf(out, "%s: ", label)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if value := strings.TrimSpace(line); value != "" {
			vars[name] = value
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
	}
	return nil
}

// deliver writes the envelope to its target. File and clipboard targets get
// the JSON envelope and a one-line note on stdout.
func deliver(stdout io.Writer, out *runner.Outcome, target recipes.OutputTarget, path string) error {
	switch target {
	case recipes.OutputFile:
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		fmt.Fprintf(stdout, "%s result written to %s\n", out.Status, path)
		return nil
	case recipes.OutputClipboard:
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		if err := writeClipboard(string(data)); err != nil {
			return fmt.Errorf("copy result to clipboard: %w", err)
		}
		fmt.Fprintf(stdout, "%s result copied to clipboard\n", out.Status)
		return nil
	default:
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(stdout, out)
		}
		_, err := io.WriteString(stdout, renderOutcome(outputStyles(stdoutIsTerminal()), out))
		return err
	}
}
