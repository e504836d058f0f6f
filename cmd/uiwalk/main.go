// Command uiwalk drives web UIs through declarative step recipes.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/opencode-ai/uiwalk/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.BuildDate = date

	if err := cli.Execute(); err != nil {
		if !errors.Is(err, cli.ErrRunFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
