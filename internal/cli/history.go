package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/opencode-ai/uiwalk/internal/db"
	"github.com/opencode-ai/uiwalk/internal/models"
	"github.com/spf13/cobra"
)

var (
	historyRecipe string
	historyStatus string
	historyLimit  int
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyListCmd.Flags().StringVar(&historyRecipe, "recipe", "", "filter by recipe name")
	historyListCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status (running, success, failure, cancelled)")
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to show")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded runs",
	Long:  "List and inspect runs recorded in the local history database.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(cmd); err != nil {
			return err
		}
		if !GetConfig().History.Enabled {
			return &PreflightError{
				Message:  "run history is disabled",
				Hint:     "Set history.enabled: true in the config file",
				NextStep: "UIWALK_HISTORY_ENABLED=true uiwalk run <recipe>",
			}
		}
		return nil
	},
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		status := models.RunStatus(strings.ToLower(strings.TrimSpace(historyStatus)))
		switch status {
		case "", models.RunStatusRunning, models.RunStatusSuccess, models.RunStatusFailure, models.RunStatusCancelled:
		default:
			return fmt.Errorf("unknown status %q", historyStatus)
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		runs, err := db.NewRunRepository(database).List(context.Background(), db.RunQuery{
			Recipe: strings.TrimSpace(historyRecipe),
			Status: status,
			Limit:  historyLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stdout, "No runs recorded.")
			return nil
		}

		s := outputStyles(stdoutIsTerminal())
		rows := make([][]string, 0, len(runs))
		for _, run := range runs {
			rows = append(rows, []string{
				shortID(run.ID),
				run.Recipe,
				formatRunStatus(s, run.Status),
				fmt.Sprintf("%d/%d", run.StepsCompleted, run.StepsTotal),
				formatDuration(run.Duration()),
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				run.FailedStep,
			})
		}
		return writeTable(os.Stdout, []string{"ID", "RECIPE", "STATUS", "STEPS", "DURATION", "STARTED", "FAILED STEP"}, rows)
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run and its events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		runs := db.NewRunRepository(database)
		run, err := runs.Get(ctx, args[0])
		if errors.Is(err, db.ErrRunNotFound) {
			run, err = findRunByPrefix(ctx, runs, args[0])
		}
		if err != nil {
			if errors.Is(err, db.ErrRunNotFound) {
				return &PreflightError{
					Message:  fmt.Sprintf("run %q not found", args[0]),
					NextStep: "uiwalk history list",
				}
			}
			return err
		}

		events, err := db.NewEventRepository(database).ListByRun(ctx, run.ID, 0)
		if err != nil {
			return fmt.Errorf("failed to list run events: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, RunHistory{Run: run, Events: events})
		}

		s := outputStyles(stdoutIsTerminal())
		writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintf(writer, "Run:\t%s\n", run.ID)
		fmt.Fprintf(writer, "Recipe:\t%s (%s)\n", run.Recipe, run.Runtime)
		fmt.Fprintf(writer, "Status:\t%s\n", formatRunStatus(s, run.Status))
		fmt.Fprintf(writer, "Steps:\t%d/%d\n", run.StepsCompleted, run.StepsTotal)
		fmt.Fprintf(writer, "Started:\t%s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
		if run.FinishedAt != nil {
			fmt.Fprintf(writer, "Duration:\t%s\n", formatDuration(run.Duration()))
		}
		if run.FailedStep != "" {
			fmt.Fprintf(writer, "Failed step:\t%s\n", run.FailedStep)
			fmt.Fprintf(writer, "Reason:\t%s\n", run.Reason)
		}
		if err := writer.Flush(); err != nil {
			return err
		}

		if len(events) == 0 {
			return nil
		}
		fmt.Fprintln(os.Stdout)
		rows := make([][]string, 0, len(events))
		for _, event := range events {
			rows = append(rows, []string{
				event.Timestamp.Local().Format("15:04:05.000"),
				string(event.Type),
				string(event.Payload),
			})
		}
		return writeTable(os.Stdout, []string{"TIME", "EVENT", "PAYLOAD"}, rows)
	},
}

// RunHistory is the payload returned by `uiwalk history show`.
type RunHistory struct {
	Run    *models.Run     `json:"run"`
	Events []*models.Event `json:"events"`
}

// findRunByPrefix resolves the short IDs printed by `history list`.
func findRunByPrefix(ctx context.Context, runs *db.RunRepository, prefix string) (*models.Run, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < 4 {
		return nil, db.ErrRunNotFound
	}
	recent, err := runs.List(ctx, db.RunQuery{Limit: 500})
	if err != nil {
		return nil, err
	}
	var match *models.Run
	for _, run := range recent {
		if !strings.HasPrefix(run.ID, prefix) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("run id %q is ambiguous", prefix)
		}
		match = run
	}
	if match == nil {
		return nil, db.ErrRunNotFound
	}
	return match, nil
}
