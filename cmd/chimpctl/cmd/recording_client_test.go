package cmd

import (
	"context"

	"google.golang.org/grpc"

	"github.com/G-Research/chimp/pkg/api"
)

type recordingClient struct {
	started  **api.StartRequest
	statusId *string
	// Health reports degraded this many times before reporting ok.
	unhealthyChecks int
	healthChecks    int
}

func (c *recordingClient) Start(_ context.Context, in *api.StartRequest, _ ...grpc.CallOption) (*api.StartResponse, error) {
	if c.started != nil {
		*c.started = in
	}
	return &api.StartResponse{Status: api.StatusOk, ExperimentId: in.ExperimentId}, nil
}

func (c *recordingClient) Stop(context.Context, *api.StopRequest, ...grpc.CallOption) (*api.StopResponse, error) {
	return &api.StopResponse{Status: api.StatusOk}, nil
}

func (c *recordingClient) Status(_ context.Context, in *api.StatusRequest, _ ...grpc.CallOption) (*api.ExperimentState, error) {
	if c.statusId != nil {
		*c.statusId = in.ExperimentId
	}
	return &api.ExperimentState{Kind: api.KindCpu}, nil
}

func (c *recordingClient) Metrics(context.Context, *api.MetricsRequest, ...grpc.CallOption) (*api.MetricsResponse, error) {
	return &api.MetricsResponse{}, nil
}

func (c *recordingClient) Health(context.Context, *api.HealthRequest, ...grpc.CallOption) (*api.HealthResponse, error) {
	c.healthChecks++
	if c.healthChecks <= c.unhealthyChecks {
		return &api.HealthResponse{Status: "degraded"}, nil
	}
	return &api.HealthResponse{Status: "ok"}, nil
}
