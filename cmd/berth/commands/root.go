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
		Use:   "berth",
		Short: "Berth - Remote Server Deployment Coordinator",
		Long: `Berth manages connections to remote servers and coordinates artifact
deployments over SSH.

Features:
  - Server registry persisted in SQLite
  - Asynchronous connection handling with observable status
  - Atomic artifact deployment (staged upload, then activation)
  - Remote deployment inventory with local/remote provenance tracking
  - Policy-gated deploys via OPA/Rego
  - Operation audit log`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newServerCommand())
	rootCmd.AddCommand(newConnectCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newUndeployCommand())
	rootCmd.AddCommand(newDeploymentsCommand())
	rootCmd.AddCommand(newOperationsCommand())
	rootCmd.AddCommand(newPolicyCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}
