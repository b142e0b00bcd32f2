// Package chimpctl implements the commands of the chimpctl command-line client.
package chimpctl

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/avast/retry-go"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/G-Research/chimp/internal/common"
	"github.com/G-Research/chimp/pkg/api"
	"github.com/G-Research/chimp/pkg/client"
)

// App is the state shared by every chimpctl command.
type App struct {
	Params *Params
	Out    io.Writer
}

type Params struct {
	ApiConnectionDetails *client.ApiConnectionDetails
	// Opens a client to the agent for the duration of action.
	WithAgentClient func(*client.ApiConnectionDetails, func(api.AgentClient) error) error
}

func New() *App {
	return &App{
		Params: &Params{
			ApiConnectionDetails: &client.ApiConnectionDetails{},
			WithAgentClient:      client.WithAgentClient,
		},
		Out: os.Stdout,
	}
}

func (a *App) withClient(action func(api.AgentClient) error) error {
	return a.Params.WithAgentClient(a.Params.ApiConnectionDetails, action)
}

func (a *App) Start(req *api.StartRequest) error {
	fmt.Fprintf(a.Out, "Requesting %s experiment %s for %ds\n", req.Kind, req.ExperimentId, req.DurationSeconds)
	return a.withClient(func(c api.AgentClient) error {
		ctx, cancel := common.ContextWithDefaultTimeout()
		defer cancel()

		resp, err := c.Start(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "error starting experiment %s", req.ExperimentId)
		}
		fmt.Fprintf(
			a.Out,
			"Experiment %s started (run %s), ends at %s\n",
			resp.ExperimentId,
			resp.RunId,
			time.Unix(resp.EndsAt, 0).UTC().Format(time.RFC3339),
		)
		return nil
	})
}

func (a *App) Stop(experimentId string) error {
	return a.withClient(func(c api.AgentClient) error {
		ctx, cancel := common.ContextWithDefaultTimeout()
		defer cancel()

		if _, err := c.Stop(ctx, &api.StopRequest{ExperimentId: experimentId}); err != nil {
			return errors.Wrapf(err, "error stopping experiment %s", experimentId)
		}
		fmt.Fprintf(a.Out, "Requested stop of experiment %s\n", experimentId)
		return nil
	})
}

// Output formats accepted by Status.
const (
	OutputText = "text"
	OutputJson = "json"
	OutputYaml = "yaml"
)

func (a *App) Status(experimentId string, output string) error {
	return a.withClient(func(c api.AgentClient) error {
		ctx, cancel := common.ContextWithDefaultTimeout()
		defer cancel()

		state, err := c.Status(ctx, &api.StatusRequest{ExperimentId: experimentId})
		if err != nil {
			return errors.Wrapf(err, "error getting status of experiment %s", experimentId)
		}
		switch output {
		case OutputJson:
			out, err := json.MarshalIndent(state, "", "  ")
			if err != nil {
				return errors.WithStack(err)
			}
			fmt.Fprintln(a.Out, string(out))
			return nil
		case OutputYaml:
			out, err := yaml.Marshal(state)
			if err != nil {
				return errors.WithStack(err)
			}
			fmt.Fprint(a.Out, string(out))
			return nil
		case "", OutputText:
			return a.printState(experimentId, state)
		default:
			return errors.Errorf("unknown output format %q, expected one of %s, %s, %s", output, OutputText, OutputJson, OutputYaml)
		}
	})
}

func (a *App) printState(experimentId string, state *api.ExperimentState) error {
	phase := "finished"
	if state.Running {
		phase = "running"
	}
	fmt.Fprintf(a.Out, "Experiment %s: %s %s\n", experimentId, state.Kind, phase)
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	fmt.Fprintf(w, "  Started:\t%s\n", time.Unix(state.StartedAt, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Ends:\t%s\n", time.Unix(state.EndsAt, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "  Duration:\t%ds\n", state.TotalDurationSeconds)
	remaining := fmt.Sprintf("%ds", state.RemainingSeconds)
	if state.RemainingSeconds > 0 {
		remaining += fmt.Sprintf(" (%s)", units.HumanDuration(time.Duration(state.RemainingSeconds)*time.Second))
	}
	fmt.Fprintf(w, "  Remaining:\t%s\n", remaining)
	return w.Flush()
}

func (a *App) Metrics() error {
	return a.withClient(func(c api.AgentClient) error {
		ctx, cancel := common.ContextWithDefaultTimeout()
		defer cancel()

		resp, err := c.Metrics(ctx, &api.MetricsRequest{})
		if err != nil {
			return errors.Wrap(err, "error fetching metrics")
		}
		fmt.Fprint(a.Out, resp.Text)
		return nil
	})
}

// Health checks the agent up to attempts times, delay apart, until it reports ok.
// The last report received is printed.
func (a *App) Health(attempts uint, delay time.Duration) error {
	if attempts == 0 {
		attempts = 1
	}
	var resp *api.HealthResponse
	err := a.withClient(func(c api.AgentClient) error {
		return retry.Do(
			func() error {
				ctx, cancel := common.ContextWithDefaultTimeout()
				defer cancel()

				r, err := c.Health(ctx, &api.HealthRequest{})
				if err != nil {
					return errors.Wrap(err, "error checking agent health")
				}
				resp = r
				if r.Status != api.StatusOk {
					return errors.Errorf("agent is %s", r.Status)
				}
				return nil
			},
			retry.Attempts(attempts),
			retry.Delay(delay),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
		)
	})
	if resp != nil {
		a.printHealth(resp)
	}
	return err
}

func (a *App) printHealth(resp *api.HealthResponse) {
	fmt.Fprintf(a.Out, "Agent is %s\n", resp.Status)
	if resp.Running {
		fmt.Fprintf(a.Out, "  Running experiment: %s\n", resp.RunningId)
	}
	fmt.Fprintf(a.Out, "  Metrics ok: %t, invariants ok: %t\n", resp.MetricsOk, resp.InvariantsOk)
	if len(resp.Problems) > 0 {
		fmt.Fprintf(a.Out, "  Problems:\n    %s\n", strings.Join(resp.Problems, "\n    "))
	}
}
