// Package main provides the entry point for the justbuild CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/cmd/justbuild/commands"
	"github.com/Sumatoshi-tech/codefang/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "justbuild",
		Short: "A content-addressed, multi-repository build tool",
		Long: `justbuild analyses, builds, and installs targets described by
TARGETS files against a content-addressed store, with a generational
garbage collector and an export cache for shared, already-built targets.

Commands:
  analyse      Analyse a target without building it
  build        Analyse and build a target
  rebuild      Build a target ignoring the export cache
  install      Build a target and materialise its artifacts on disk
  install-cas  Store a local file or directory in the CAS
  traverse     List the actions a target's build would run, without building it
  gc           Rotate the generational cache
  execute      Dispatch an action to a remote execution service (not implemented)
  describe     Print a target's rule description
  version      Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewAnalyseCommand())
	rootCmd.AddCommand(commands.NewBuildCommand())
	rootCmd.AddCommand(commands.NewRebuildCommand())
	rootCmd.AddCommand(commands.NewInstallCommand())
	rootCmd.AddCommand(commands.NewInstallCASCommand())
	rootCmd.AddCommand(commands.NewTraverseCommand())
	rootCmd.AddCommand(commands.NewGCCommand())
	rootCmd.AddCommand(commands.NewExecuteCommand())
	rootCmd.AddCommand(commands.NewDescribeCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(commands.ExitCode(err))
	}
}
