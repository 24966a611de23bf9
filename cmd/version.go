package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/abhisek/cohortwatch/cmd.version=... -X ...cmd.commit=...".
var (
	version string
	commit  string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cohortwatch build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), versionString())
	},
}

// versionString reports the release, falling back to the module version
// recorded by `go install`, then to "dev".
func versionString() string {
	v := version
	if v == "" {
		v = "dev"
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v = bi.Main.Version
		}
	}
	s := "cohortwatch " + v
	if commit != "" {
		s += " (" + commit + ")"
	}
	return fmt.Sprintf("%s %s %s/%s", s, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
