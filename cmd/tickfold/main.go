// Package main provides the entry point for the tickfold CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tickfold/tickfold/cmd/tickfold/commands"
	"github.com/tickfold/tickfold/internal/version"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "tickfold",
		Short: "Tickfold - resumable per-tick commit history aggregation",
		Long: `Tickfold streams a git repository's history through fact extraction
and aggregates results per time tick, with checkpoint resume, memory-bounded
hibernation, and parallel fork/merge execution.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewRunCommand(&verbose))
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "tickfold %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
