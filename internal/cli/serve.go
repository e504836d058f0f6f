package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencode-ai/uiwalk/internal/browser"
	"github.com/opencode-ai/uiwalk/internal/db"
	"github.com/opencode-ai/uiwalk/internal/events"
	"github.com/opencode-ai/uiwalk/internal/logging"
	"github.com/opencode-ai/uiwalk/internal/recipes"
	"github.com/opencode-ai/uiwalk/internal/runner"
	"github.com/opencode-ai/uiwalk/internal/server"
	"github.com/opencode-ai/uiwalk/internal/uienv"
	"github.com/spf13/cobra"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, 127.0.0.1:8087)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recipe runs over HTTP",
	Long: `Serve recipe runs over HTTP.

Each POST /recipes/{name}/run attaches to Chrome, runs the recipe and
returns the result envelope. One run executes at a time; concurrent
requests get 409 Conflict.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		logger := logging.Component("serve")

		addr := cfg.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := []runner.Option{runner.WithInterval(cfg.Poll.Interval)}
		deps := server.Deps{
			Recipes:    recipes.Library{ProjectDir: cfg.Run.ProjectDir},
			RunTimeout: cfg.Run.Timeout,
			Version:    Version,
			Commit:     Commit,
			BuildDate:  BuildDate,
			Logger:     &logger,
		}

		if cfg.History.Enabled {
			database, err := openDatabase()
			if err != nil {
				return err
			}
			defer database.Close()

			runs := db.NewRunRepository(database)
			eventRepo := db.NewEventRepository(database)
			opts = append(opts,
				runner.WithStore(runs),
				runner.WithSink(events.NewRepositorySink(eventRepo)),
			)
			deps.Runs = runs
			deps.Events = eventRepo
		}

		deps.Runner = runner.New(opts...)
		deps.Environment = func(ctx context.Context) (uienv.Environment, func(), error) {
			env, err := browser.Connect(ctx, browser.Config{
				URL:            cfg.BrowserURL(),
				AttachURL:      cfg.Browser.AttachURL,
				ConnectTimeout: cfg.Browser.ConnectTimeout,
				Logger:         &logger,
			})
			if err != nil {
				return nil, nil, err
			}
			return env, env.Close, nil
		}

		if !IsJSONOutput() && !IsJSONLOutput() {
			fmt.Fprintf(os.Stderr, "Serving on http://%s (Chrome at %s:%d)\n", addr, cfg.Browser.Host, cfg.Browser.Port)
		}
		return server.ListenAndServe(ctx, addr, server.NewRouter(deps), logger)
	},
}
