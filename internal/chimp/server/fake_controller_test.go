package server

import (
	"github.com/G-Research/chimp/internal/chimp/controller"
	"github.com/G-Research/chimp/internal/chimp/domain"
	"github.com/G-Research/chimp/pkg/api"
)

type fakeController struct {
	startErr   error
	stopErr    error
	statusErr  error
	metricsErr error
	state      domain.ExperimentState
	health     controller.HealthReport

	started []*api.StartRequest
	stopped []string
}

func (f *fakeController) Start(req *api.StartRequest) (*domain.Experiment, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, req)
	return &domain.Experiment{
		Id:              req.ExperimentId,
		RunId:           "run-1",
		Kind:            req.Kind,
		DurationSeconds: req.DurationSeconds,
		StartedAtUnix:   100,
		EndsAtUnix:      100 + int64(req.DurationSeconds),
	}, nil
}

func (f *fakeController) Stop(id string) error {
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, id)
	return nil
}

func (f *fakeController) Status(string) (domain.ExperimentState, error) {
	return f.state, f.statusErr
}

func (f *fakeController) Metrics() ([]byte, error) {
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	return []byte("agent_experiment_active 0\n"), nil
}

func (f *fakeController) Health() controller.HealthReport {
	return f.health
}
