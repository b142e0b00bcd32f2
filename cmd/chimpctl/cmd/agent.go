package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/G-Research/chimp/internal/chimpctl"
)

func metricsCmd() *cobra.Command {
	a := chimpctl.New()
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Print the agent's metrics in Prometheus text format",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Metrics()
		},
	}
	return cmd
}

func healthCmd() *cobra.Command {
	return healthCmdWithApp(chimpctl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func healthCmdWithApp(a *chimpctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the health of the agent",
		Long:  "Reports the agent's health and exits non-zero if it is degraded, optionally waiting for it to become healthy.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			retries, err := cmd.Flags().GetUint("retries")
			if err != nil {
				return fmt.Errorf("error reading retries: %s", err)
			}
			delay, err := cmd.Flags().GetDuration("retry-delay")
			if err != nil {
				return fmt.Errorf("error reading retry-delay: %s", err)
			}
			return a.Health(retries+1, delay)
		},
	}
	cmd.Flags().Uint("retries", 0, "Check again this many times while the agent is unhealthy or unreachable.")
	cmd.Flags().Duration("retry-delay", time.Second, "Wait between health checks.")
	return cmd
}
