package cli

import (
	"github.com/spf13/cobra"

	"github.com/subforge-io/subforge/internal/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "subforge",
	Short: "Factory for deploying resource contracts",
	Long: `Subforge deploys resource contracts to fresh sub-addresses of a factory
account and tracks each deployment through an asynchronous protocol: the
deploy call and its outcome are separate transactions, bridged by a durable
ledger record. 'deploy' issues calls, 'reconcile' applies the outcomes that
have arrived, and 'sweep' retires deployments whose outcome never will.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "subforge.pkl", "Path to the workspace configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(ownerCmd)
	rootCmd.AddCommand(versionCmd)
}
