// Package controller runs the lifecycle of experiments: it admits at most one at a time,
// drives its load generator and keeps the registry and metrics in step with it.
package controller

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/docker/go-units"
	"github.com/pbnjay/memory"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/G-Research/chimp/internal/chimp/configuration"
	"github.com/G-Research/chimp/internal/chimp/domain"
	"github.com/G-Research/chimp/internal/chimp/loadgen"
	"github.com/G-Research/chimp/internal/chimp/metrics"
	"github.com/G-Research/chimp/internal/chimp/registry"
	"github.com/G-Research/chimp/internal/chimp/validation"
	"github.com/G-Research/chimp/internal/common/chimperrors"
	"github.com/G-Research/chimp/internal/common/logging"
	commonvalidation "github.com/G-Research/chimp/internal/common/validation"
	"github.com/G-Research/chimp/pkg/api"
)

// Reports the memory accessible to the kernel, or 0 if unknown.
var totalHostMemory = memory.TotalMemory

type generatorFactory func(e *domain.Experiment, reporter loadgen.Reporter) (loadgen.Generator, error)

type Controller struct {
	registry     *registry.Registry
	metrics      *metrics.Metrics
	validator    commonvalidation.Validator[*api.StartRequest]
	clock        clock.PassiveClock
	newGenerator generatorFactory
	logger       *log.Entry
	// Serialises admission so metrics observe starts in the same order as the registry.
	startLock sync.Mutex
	wg        sync.WaitGroup
}

func New(
	registry *registry.Registry,
	metrics *metrics.Metrics,
	config configuration.ExperimentConfig,
	clock clock.PassiveClock,
) *Controller {
	return &Controller{
		registry:  registry,
		metrics:   metrics,
		validator: validation.NewStartRequestValidator(validation.MemoryLimit(config.MaxMemory, totalHostMemory())),
		clock:     clock,
		logger:    log.WithField("component", "controller"),
		newGenerator: func(e *domain.Experiment, reporter loadgen.Reporter) (loadgen.Generator, error) {
			return loadgen.ForExperiment(e, config.MemoryTouchInterval, reporter)
		},
	}
}

// Start validates req, claims the single running slot and launches the generator in the background.
// It returns as soon as the experiment is running.
func (c *Controller) Start(req *api.StartRequest) (*domain.Experiment, error) {
	if err := c.validator.Validate(req); err != nil {
		c.metrics.ExperimentRejected(metrics.ReasonInvalid)
		return nil, err
	}

	c.startLock.Lock()
	defer c.startLock.Unlock()

	// Starts are serialised by startLock, so a free slot here is still free at TryBegin.
	// A conflicting request must not allocate its generator's memory.
	if runningId, running := c.registry.FindRunning(); running {
		return nil, c.conflict(runningId)
	}

	e := domain.NewExperiment(req, c.clock.Now())
	generator, err := c.newGenerator(e, c.metrics.ReporterFor(e))
	if err != nil {
		c.metrics.ExperimentRejected(metrics.ReasonUnallocated)
		return nil, &chimperrors.ErrInternal{Message: "failed to create load generator: " + err.Error(), Err: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	if runningId, ok := c.registry.TryBegin(registry.Claim{Experiment: e, Cancel: cancel}); !ok {
		cancel()
		return nil, c.conflict(runningId)
	}
	c.metrics.ExperimentStarted(e)

	logger := c.experimentLogger(e)
	if e.Kind == api.KindMemory {
		logger.Infof("Starting experiment, holding %s", units.BytesSize(float64(e.MemoryMb)*1024*1024))
	} else {
		logger.Infof("Starting experiment at %d%% duty", e.DutyPercent)
	}

	c.wg.Add(1)
	go c.run(ctx, cancel, e, generator)
	return e, nil
}

func (c *Controller) conflict(runningId string) error {
	c.metrics.ExperimentRejected(metrics.ReasonConflict)
	return &chimperrors.ErrConflict{Type: "experiment", RunningId: runningId}
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, e *domain.Experiment, generator loadgen.Generator) {
	defer c.wg.Done()
	defer cancel()

	logger := c.experimentLogger(e)
	reason := metrics.ReasonFailed
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Load generator panicked: %v\n%s", r, debug.Stack())
		}
		c.finish(e, reason)
	}()

	err := generator.Run(ctx)
	switch {
	case err == nil:
		reason = metrics.ReasonCompleted
	case errors.Is(err, context.Canceled):
		reason = metrics.ReasonStopped
	default:
		logging.WithStacktrace(logger, err).Error("Load generator failed")
	}
}

func (c *Controller) finish(e *domain.Experiment, reason string) {
	transitioned := c.registry.Finish(e.Id, e.RunId)
	c.metrics.ExperimentFinished(e, reason)
	c.experimentLogger(e).WithFields(log.Fields{
		"reason":       reason,
		"transitioned": transitioned,
	}).Info("Experiment finished")
}

// Stop cancels the running experiment with the given id.
// The generator winds down in the background; Stop does not wait for it.
func (c *Controller) Stop(id string) error {
	if !c.registry.Stop(id) {
		if _, present := c.registry.Get(id); present {
			return &chimperrors.ErrNotFound{Type: "experiment", Value: id, Message: "it is not running"}
		}
		return &chimperrors.ErrNotFound{Type: "experiment", Value: id}
	}
	c.logger.WithField("experimentId", id).Info("Experiment stop requested")
	return nil
}

func (c *Controller) Status(id string) (domain.ExperimentState, error) {
	state, present := c.registry.Get(id)
	if !present {
		return domain.ExperimentState{}, &chimperrors.ErrNotFound{Type: "experiment", Value: id}
	}
	return state, nil
}

// Metrics returns the prometheus text exposition of the agent's experiment metrics.
func (c *Controller) Metrics() ([]byte, error) {
	text, err := c.metrics.Encode()
	if err != nil {
		return nil, &chimperrors.ErrInternal{Message: "failed to encode metrics", Err: err}
	}
	return text, nil
}

// RefreshGauges recomputes the remaining-seconds gauge of the running experiment.
func (c *Controller) RefreshGauges() {
	if _, state, running := c.registry.Running(); running {
		c.metrics.SetRemainingSeconds(state.RemainingSeconds)
	}
}

// Shutdown stops the running experiment, if any, and waits for every generator to return
// or for ctx to expire.
func (c *Controller) Shutdown(ctx context.Context) error {
	if id, running := c.registry.FindRunning(); running {
		c.registry.Stop(id)
		c.logger.WithField("experimentId", id).Info("Stopping experiment for shutdown")
	}
	if err := c.waitForGenerators(ctx); err != nil {
		return errors.Wrap(err, "load generators did not exit before shutdown deadline")
	}
	return nil
}

func (c *Controller) waitForGenerators(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) experimentLogger(e *domain.Experiment) *log.Entry {
	return c.logger.WithFields(log.Fields{
		"experimentId": e.Id,
		"runId":        e.RunId,
		"kind":         e.Kind,
	})
}
