// Package commands implements the nodeflow command line.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nodeflow",
		Short: "nodeflow - typed dataflow graph engine",
		Long: `nodeflow evaluates visual dataflow documents: graphs of typed nodes whose values
and types are resolved on demand.

Features:
  - Bidirectional type inference with per-call instantiation
  - Incremental, dependency-tracked caching
  - Documents in JSON or CUE, validated against CUE schemas
  - Lint rules in Rego (OPA)
  - A SQLite snapshot store with revision history`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "settings file (YAML or CUE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newEvalCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDotCommand())
	rootCmd.AddCommand(newModulesCommand())
	rootCmd.AddCommand(newConnectCommand())
	rootCmd.AddCommand(newSetCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newStoreCommand())

	return rootCmd
}
