package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/G-Research/chimp/internal/chimpctl"
	"github.com/G-Research/chimp/pkg/client"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chimpctl",
		Short: "chimpctl drives CPU and memory load experiments on a chimp agent.",
	}

	client.AddAgentApiConnectionCommandlineArgs(cmd)
	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.chimpctl.yaml)")

	cmd.AddCommand(
		startCmd(),
		stopCmd(),
		statusCmd(),
		metricsCmd(),
		healthCmd(),
	)

	return cmd
}

// Execute runs the root command and exits non-zero if it fails.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// initParams loads connection details from config files and flags into params.
func initParams(cmd *cobra.Command, params *chimpctl.Params) error {
	cfgFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if err := client.LoadCommandlineArgsFromConfigFile(cfgFile); err != nil {
		return err
	}
	params.ApiConnectionDetails = client.ExtractCommandlineAgentApiConnectionDetails()
	return nil
}
