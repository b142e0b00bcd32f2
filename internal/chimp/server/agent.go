package server

import (
	"context"

	"github.com/pkg/errors"

	"github.com/G-Research/chimp/pkg/api"
)

type AgentServer struct {
	controller ExperimentController
	api.UnimplementedAgentServer
}

func NewAgentServer(controller ExperimentController) *AgentServer {
	return &AgentServer{controller: controller}
}

func (s *AgentServer) Start(_ context.Context, req *api.StartRequest) (*api.StartResponse, error) {
	e, err := s.controller.Start(req)
	if err != nil {
		return nil, errors.WithMessagef(err, "[Start] experiment %q", req.ExperimentId)
	}
	return e.ToStartResponse(), nil
}

func (s *AgentServer) Stop(_ context.Context, req *api.StopRequest) (*api.StopResponse, error) {
	if err := s.controller.Stop(req.ExperimentId); err != nil {
		return nil, errors.WithMessage(err, "[Stop]")
	}
	return &api.StopResponse{Status: api.StatusOk}, nil
}

func (s *AgentServer) Status(_ context.Context, req *api.StatusRequest) (*api.ExperimentState, error) {
	state, err := s.controller.Status(req.ExperimentId)
	if err != nil {
		return nil, errors.WithMessage(err, "[Status]")
	}
	return state.ToApi(), nil
}

func (s *AgentServer) Metrics(context.Context, *api.MetricsRequest) (*api.MetricsResponse, error) {
	text, err := s.controller.Metrics()
	if err != nil {
		return nil, errors.WithMessage(err, "[Metrics]")
	}
	return &api.MetricsResponse{Text: string(text)}, nil
}

func (s *AgentServer) Health(context.Context, *api.HealthRequest) (*api.HealthResponse, error) {
	return s.controller.Health().ToApi(), nil
}
