package chimpctl

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/G-Research/chimp/pkg/api"
	"github.com/G-Research/chimp/pkg/client"
)

type fakeAgentClient struct {
	startReq  *api.StartRequest
	stopReq   *api.StopRequest
	state     *api.ExperimentState
	healths     []*api.HealthResponse
	healthCalls int
	metrics     string
	returnErr error
}

func (f *fakeAgentClient) Start(_ context.Context, in *api.StartRequest, _ ...grpc.CallOption) (*api.StartResponse, error) {
	f.startReq = in
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	return &api.StartResponse{Status: api.StatusOk, ExperimentId: in.ExperimentId, RunId: "run-1", StartedAt: 0, EndsAt: 60}, nil
}

func (f *fakeAgentClient) Stop(_ context.Context, in *api.StopRequest, _ ...grpc.CallOption) (*api.StopResponse, error) {
	f.stopReq = in
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	return &api.StopResponse{Status: api.StatusOk}, nil
}

func (f *fakeAgentClient) Status(context.Context, *api.StatusRequest, ...grpc.CallOption) (*api.ExperimentState, error) {
	return f.state, f.returnErr
}

func (f *fakeAgentClient) Metrics(context.Context, *api.MetricsRequest, ...grpc.CallOption) (*api.MetricsResponse, error) {
	return &api.MetricsResponse{Text: f.metrics}, f.returnErr
}

func (f *fakeAgentClient) Health(context.Context, *api.HealthRequest, ...grpc.CallOption) (*api.HealthResponse, error) {
	if f.returnErr != nil {
		return nil, f.returnErr
	}
	i := f.healthCalls
	if i >= len(f.healths) {
		i = len(f.healths) - 1
	}
	f.healthCalls++
	return f.healths[i], nil
}

func newTestApp(fake *fakeAgentClient) (*App, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	app := &App{
		Params: &Params{
			ApiConnectionDetails: &client.ApiConnectionDetails{AgentUrl: "localhost:50051"},
			WithAgentClient: func(_ *client.ApiConnectionDetails, action func(api.AgentClient) error) error {
				return action(fake)
			},
		},
		Out: buf,
	}
	return app, buf
}

func TestStart(t *testing.T) {
	fake := &fakeAgentClient{}
	app, out := newTestApp(fake)

	req := &api.StartRequest{ExperimentId: "e1", Kind: api.KindCpu, DurationSeconds: 60, Params: api.CpuParams(10)}
	require.NoError(t, app.Start(req))
	assert.Equal(t, req, fake.startReq)
	assert.Contains(t, out.String(), "Requesting CPU experiment e1 for 60s")
	assert.Contains(t, out.String(), "Experiment e1 started (run run-1), ends at 1970-01-01T00:01:00Z")
}

func TestStart_Conflict(t *testing.T) {
	fake := &fakeAgentClient{returnErr: status.Error(codes.AlreadyExists, "another experiment running: e0")}
	app, _ := newTestApp(fake)

	err := app.Start(&api.StartRequest{ExperimentId: "e1", Kind: api.KindCpu, DurationSeconds: 60, Params: api.CpuParams(10)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another experiment running: e0")
	assert.Equal(t, codes.AlreadyExists, status.Code(errors.Cause(err)))
}

func TestStop(t *testing.T) {
	fake := &fakeAgentClient{}
	app, out := newTestApp(fake)

	require.NoError(t, app.Stop("e1"))
	assert.Equal(t, "e1", fake.stopReq.ExperimentId)
	assert.Equal(t, "Requested stop of experiment e1\n", out.String())
}

func TestStatus(t *testing.T) {
	fake := &fakeAgentClient{state: &api.ExperimentState{
		Running:              true,
		Kind:                 api.KindMemory,
		TotalDurationSeconds: 120,
		RemainingSeconds:     90,
		StartedAt:            0,
		EndsAt:               120,
	}}
	app, out := newTestApp(fake)

	require.NoError(t, app.Status("m1", ""))
	assert.Contains(t, out.String(), "Experiment m1: MEMORY running")
	assert.Contains(t, out.String(), "90s (About a minute)")
}

func TestStatus_NotFound(t *testing.T) {
	fake := &fakeAgentClient{returnErr: status.Error(codes.NotFound, `experiment "m1" not found`)}
	app, _ := newTestApp(fake)

	err := app.Status("m1", OutputText)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMetrics(t *testing.T) {
	fake := &fakeAgentClient{metrics: "agent_experiment_active 0\n"}
	app, out := newTestApp(fake)

	require.NoError(t, app.Metrics())
	assert.Equal(t, "agent_experiment_active 0\n", out.String())
}

func TestStatus_Formats(t *testing.T) {
	state := &api.ExperimentState{Running: true, Kind: api.KindMemory, TotalDurationSeconds: 120, RemainingSeconds: 90, EndsAt: 120}

	tests := map[string]struct {
		output   string
		expected []string
	}{
		"json": {OutputJson, []string{`"kind": "MEMORY"`, `"remaining_seconds": 90`}},
		"yaml": {OutputYaml, []string{"kind: MEMORY", "remaining_seconds: 90", "running: true"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			app, out := newTestApp(&fakeAgentClient{state: state})
			require.NoError(t, app.Status("m1", tc.output))
			for _, s := range tc.expected {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestStatus_UnknownFormat(t *testing.T) {
	app, _ := newTestApp(&fakeAgentClient{state: &api.ExperimentState{}})
	assert.Error(t, app.Status("m1", "xml"))
}

func TestHealth(t *testing.T) {
	fake := &fakeAgentClient{healths: []*api.HealthResponse{{Status: "ok", Running: true, RunningId: "e1", MetricsOk: true, InvariantsOk: true}}}
	app, out := newTestApp(fake)

	require.NoError(t, app.Health(1, 0))
	assert.Contains(t, out.String(), "Agent is ok")
	assert.Contains(t, out.String(), "Running experiment: e1")
}

func TestHealth_Degraded(t *testing.T) {
	fake := &fakeAgentClient{healths: []*api.HealthResponse{{Status: "degraded", MetricsOk: true, Problems: []string{"2 experiments running at once"}}}}
	app, out := newTestApp(fake)

	assert.Error(t, app.Health(2, time.Millisecond))
	assert.Equal(t, 2, fake.healthCalls)
	assert.Contains(t, out.String(), "2 experiments running at once")
}

func TestHealth_RetriesUntilOk(t *testing.T) {
	fake := &fakeAgentClient{healths: []*api.HealthResponse{
		{Status: "degraded", Problems: []string{"startup is not complete"}},
		{Status: "ok", MetricsOk: true, InvariantsOk: true},
	}}
	app, out := newTestApp(fake)

	require.NoError(t, app.Health(5, time.Millisecond))
	assert.Equal(t, 2, fake.healthCalls)
	assert.Contains(t, out.String(), "Agent is ok")
	assert.NotContains(t, out.String(), "startup is not complete")
}

func TestHealth_Unreachable(t *testing.T) {
	fake := &fakeAgentClient{returnErr: status.Error(codes.Unavailable, "connection refused")}
	app, out := newTestApp(fake)

	err := app.Health(1, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error checking agent health")
	assert.Empty(t, out.String())
}
