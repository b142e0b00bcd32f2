// Package loadgen contains the routines that put synthetic load on the host.
// Each generator runs until its duration elapses or its context is cancelled, whichever comes first.
// Cancellation is polled once per period, so a generator may outlive its context by up to one period.
package loadgen

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/chimp/internal/chimp/domain"
	"github.com/G-Research/chimp/pkg/api"
)

const (
	DefaultCpuWindow     = time.Second
	DefaultTouchInterval = 50 * time.Millisecond

	bytesPerMegabyte = 1024 * 1024
)

// Generator is one run of synthetic load. Run returns nil when the duration elapsed and the
// context's error when it was cancelled.
type Generator interface {
	Run(ctx context.Context) error
	Kind() string
}

// Reporter receives progress from generators.
type Reporter interface {
	CpuStarted(dutyPercent uint32)
	CpuWindowCompleted(dutyPercent uint32)
	CpuStopped()
	MemoryAllocated(bytes int)
	MemoryReleased()
}

// ForExperiment builds the generator matching e's kind. Memory generators allocate their buffer here.
func ForExperiment(e *domain.Experiment, touchInterval time.Duration, reporter Reporter) (Generator, error) {
	switch e.Kind {
	case api.KindCpu:
		return &Cpu{
			DutyPercent: e.DutyPercent,
			Duration:    e.Duration(),
			Window:      DefaultCpuWindow,
			Reporter:    reporter,
		}, nil
	case api.KindMemory:
		if touchInterval <= 0 {
			touchInterval = DefaultTouchInterval
		}
		memory, err := NewMemory(e.MemoryMb, e.Duration(), touchInterval, reporter)
		if err != nil {
			return nil, errors.WithMessagef(err, "experiment %s", e.Id)
		}
		return memory, nil
	default:
		return nil, errors.Errorf("no generator for experiment kind %q", e.Kind)
	}
}

// Spin keeps the calling goroutine on its CPU for d without yielding to the scheduler voluntarily.
func Spin(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}
