package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

// VersionInfo is the payload returned by `uiwalk version`.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := VersionInfo{
			Version:   Version,
			Commit:    Commit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, info)
		}
		fmt.Fprintf(os.Stdout, "uiwalk %s (commit %s, built %s, %s %s)\n",
			info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
		return nil
	},
}
