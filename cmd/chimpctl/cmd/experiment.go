package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/G-Research/chimp/internal/chimpctl"
	"github.com/G-Research/chimp/pkg/api"
)

func startCmd() *cobra.Command {
	return startCmdWithApp(chimpctl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func startCmdWithApp(a *chimpctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <experiment-id>",
		Short: "Start a load experiment",
		Long: `Starts a CPU or memory load experiment on the agent.

Only one experiment may run at a time; starting a second one while the first is running is rejected.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := startRequestFromFlags(cmd, args[0])
			if err != nil {
				return err
			}
			return a.Start(req)
		},
	}
	cmd.Flags().String("kind", api.KindCpu, "Experiment kind, one of CPU or MEMORY.")
	cmd.Flags().Uint32("duration", 60, "Experiment duration in seconds.")
	cmd.Flags().Uint32("duty-percent", 50, "Share of each second spent busy, for CPU experiments.")
	cmd.Flags().Uint32("memory-mb", 128, "Megabytes to allocate and hold, for MEMORY experiments.")
	return cmd
}

func startRequestFromFlags(cmd *cobra.Command, experimentId string) (*api.StartRequest, error) {
	kind, err := cmd.Flags().GetString("kind")
	if err != nil {
		return nil, fmt.Errorf("error reading kind: %s", err)
	}
	duration, err := cmd.Flags().GetUint32("duration")
	if err != nil {
		return nil, fmt.Errorf("error reading duration: %s", err)
	}

	req := &api.StartRequest{
		ExperimentId:    experimentId,
		Kind:            strings.ToUpper(kind),
		DurationSeconds: duration,
	}
	switch req.Kind {
	case api.KindCpu:
		duty, err := cmd.Flags().GetUint32("duty-percent")
		if err != nil {
			return nil, fmt.Errorf("error reading duty-percent: %s", err)
		}
		req.Params = api.CpuParams(duty)
	case api.KindMemory:
		memoryMb, err := cmd.Flags().GetUint32("memory-mb")
		if err != nil {
			return nil, fmt.Errorf("error reading memory-mb: %s", err)
		}
		req.Params = api.MemoryParams(memoryMb)
	default:
		// Left to the agent to reject.
	}
	return req, nil
}

func stopCmd() *cobra.Command {
	return stopCmdWithApp(chimpctl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func stopCmdWithApp(a *chimpctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <experiment-id>",
		Short: "Stop a running experiment",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.Stop(args[0])
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	return statusCmdWithApp(chimpctl.New())
}

// Takes a caller-supplied app struct; useful for testing.
func statusCmdWithApp(a *chimpctl.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <experiment-id>",
		Short: "Show the state of an experiment",
		Long:  "Shows whether an experiment is running and how long it has left. Finished experiments remain visible.",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, a.Params)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			output, err := cmd.Flags().GetString("output")
			if err != nil {
				return fmt.Errorf("error reading output: %s", err)
			}
			return a.Status(args[0], output)
		},
	}
	cmd.Flags().StringP("output", "o", chimpctl.OutputText, "Output format, one of text, json or yaml.")
	return cmd
}
