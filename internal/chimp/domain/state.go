package domain

import (
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/chimp/pkg/api"
)

// ExperimentState is the lifecycle snapshot of one experiment.
// RemainingSeconds is derived from the clock at read time and is never stored.
type ExperimentState struct {
	Running              bool
	Kind                 string
	TotalDurationSeconds uint32
	RemainingSeconds     uint32
	StartedAtUnix        int64
	EndsAtUnix           int64
}

// WithRemaining returns a copy of s with RemainingSeconds computed for now:
// max(0, ends - now) capped at the total, and 0 once the experiment is no longer running.
func (s ExperimentState) WithRemaining(now time.Time) ExperimentState {
	s.RemainingSeconds = 0
	if !s.Running {
		return s
	}
	remaining := s.EndsAtUnix - now.Unix()
	switch {
	case remaining <= 0:
	case remaining > int64(s.TotalDurationSeconds):
		s.RemainingSeconds = s.TotalDurationSeconds
	default:
		s.RemainingSeconds = uint32(remaining)
	}
	return s
}

// Finished returns a copy of s marked as no longer running.
func (s ExperimentState) Finished() ExperimentState {
	s.Running = false
	s.RemainingSeconds = 0
	return s
}

// Validate checks the structural invariants every snapshot must hold.
func (s ExperimentState) Validate() error {
	if s.EndsAtUnix-s.StartedAtUnix != int64(s.TotalDurationSeconds) {
		return errors.Errorf(
			"ends (%d) - started (%d) differs from total duration %d",
			s.EndsAtUnix, s.StartedAtUnix, s.TotalDurationSeconds)
	}
	if s.RemainingSeconds > s.TotalDurationSeconds {
		return errors.Errorf("remaining %d exceeds total duration %d", s.RemainingSeconds, s.TotalDurationSeconds)
	}
	if !s.Running && s.RemainingSeconds != 0 {
		return errors.Errorf("finished experiment reports %d seconds remaining", s.RemainingSeconds)
	}
	return nil
}

func (s ExperimentState) ToApi() *api.ExperimentState {
	return &api.ExperimentState{
		Running:              s.Running,
		Kind:                 s.Kind,
		TotalDurationSeconds: s.TotalDurationSeconds,
		RemainingSeconds:     s.RemainingSeconds,
		StartedAt:            s.StartedAtUnix,
		EndsAt:               s.EndsAtUnix,
	}
}
