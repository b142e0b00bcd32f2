package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/G-Research/chimp/pkg/api"
)

// Experiment is an accepted start request stamped with its run window.
// RunId tells apart successive runs that reuse the same Id.
type Experiment struct {
	Id              string
	RunId           string
	Kind            string
	DurationSeconds uint32
	DutyPercent     uint32
	MemoryMb        uint32
	StartedAtUnix   int64
	EndsAtUnix      int64
}

// NewExperiment stamps a validated request with a fresh run id and a window starting at now.
func NewExperiment(req *api.StartRequest, now time.Time) *Experiment {
	e := &Experiment{
		Id:              req.ExperimentId,
		RunId:           uuid.NewString(),
		Kind:            req.Kind,
		DurationSeconds: req.DurationSeconds,
		StartedAtUnix:   now.Unix(),
		EndsAtUnix:      now.Unix() + int64(req.DurationSeconds),
	}
	if req.Params != nil {
		e.DutyPercent = req.Params.DutyPercent
		e.MemoryMb = req.Params.MemoryMb
	}
	return e
}

func (e *Experiment) Duration() time.Duration {
	return time.Duration(e.DurationSeconds) * time.Second
}

// ParamsLabel renders the kind-specific parameters as a short label value, e.g. "duty_percent=10".
func (e *Experiment) ParamsLabel() string {
	switch e.Kind {
	case api.KindCpu:
		return fmt.Sprintf("duty_percent=%d", e.DutyPercent)
	case api.KindMemory:
		return fmt.Sprintf("memory_mb=%d", e.MemoryMb)
	default:
		return ""
	}
}

// State returns the initial running snapshot of this experiment.
func (e *Experiment) State() ExperimentState {
	return ExperimentState{
		Running:              true,
		Kind:                 e.Kind,
		TotalDurationSeconds: e.DurationSeconds,
		StartedAtUnix:        e.StartedAtUnix,
		EndsAtUnix:           e.EndsAtUnix,
	}
}

func (e *Experiment) ToStartResponse() *api.StartResponse {
	return &api.StartResponse{
		Status:       api.StatusOk,
		ExperimentId: e.Id,
		RunId:        e.RunId,
		StartedAt:    e.StartedAtUnix,
		EndsAt:       e.EndsAtUnix,
	}
}

func (e *Experiment) String() string {
	return fmt.Sprintf("%s (%s, %ds, %s)", e.Id, e.Kind, e.DurationSeconds, e.ParamsLabel())
}
