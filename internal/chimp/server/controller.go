package server

import (
	"github.com/G-Research/chimp/internal/chimp/controller"
	"github.com/G-Research/chimp/internal/chimp/domain"
	"github.com/G-Research/chimp/pkg/api"
)

// ExperimentController is the part of controller.Controller the transports call into.
type ExperimentController interface {
	Start(req *api.StartRequest) (*domain.Experiment, error)
	Stop(id string) error
	Status(id string) (domain.ExperimentState, error)
	Metrics() ([]byte, error)
	Health() controller.HealthReport
}
