// Package registry tracks the lifecycle of every experiment the agent has accepted and enforces that
// at most one of them is running at any time.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"k8s.io/utils/clock"

	"github.com/G-Research/chimp/internal/chimp/domain"
)

// Claim is what a caller hands to TryBegin to take the single running slot.
// Cancel is fired by Stop.
type Claim struct {
	Experiment *domain.Experiment
	Cancel     context.CancelFunc
}

type entry struct {
	state  domain.ExperimentState
	runId  string
	cancel context.CancelFunc
}

// Registry maps experiment id to its latest lifecycle snapshot.
// Finished entries are kept until the id is reused; nothing is evicted.
type Registry struct {
	entries map[string]*entry
	lock    sync.Mutex
	clock   clock.PassiveClock
}

func New(clock clock.PassiveClock) *Registry {
	return &Registry{
		entries: map[string]*entry{},
		clock:   clock,
	}
}

// TryBegin inserts claim as the running experiment, overwriting any finished entry with the same id.
// If another experiment is running, nothing changes and its id is returned with ok == false.
func (r *Registry) TryBegin(claim Claim) (runningId string, ok bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if id, found := r.findRunning(); found {
		return id, false
	}
	r.entries[claim.Experiment.Id] = &entry{
		state:  claim.Experiment.State(),
		runId:  claim.Experiment.RunId,
		cancel: claim.Cancel,
	}
	return "", true
}

// Finish marks the run identified by id and runId as no longer running.
// Returns false if that run is unknown, already finished or was replaced by a later run of the same id.
func (r *Registry) Finish(id, runId string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, present := r.entries[id]
	if !present || e.runId != runId || !e.state.Running {
		return false
	}
	e.state = e.state.Finished()
	e.cancel = nil
	return true
}

// Stop cancels the experiment with the given id if it is running.
// The entry is marked finished immediately; the generator notices the cancellation on its next poll.
func (r *Registry) Stop(id string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, present := r.entries[id]
	if !present || !e.state.Running {
		return false
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.state = e.state.Finished()
	return true
}

// Get returns the snapshot of id with the remaining time computed against the registry clock.
func (r *Registry) Get(id string) (domain.ExperimentState, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	e, present := r.entries[id]
	if !present {
		return domain.ExperimentState{}, false
	}
	return e.state.WithRemaining(r.clock.Now()), true
}

// FindRunning returns the id of the running experiment, if any.
func (r *Registry) FindRunning() (string, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.findRunning()
}

// Running returns the id and snapshot of the running experiment, if any.
func (r *Registry) Running() (string, domain.ExperimentState, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	id, found := r.findRunning()
	if !found {
		return "", domain.ExperimentState{}, false
	}
	return id, r.entries[id].state.WithRemaining(r.clock.Now()), true
}

func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.entries)
}

// CheckInvariants validates every entry and that at most one is running.
// All violations are returned together.
func (r *Registry) CheckInvariants() error {
	r.lock.Lock()
	defer r.lock.Unlock()

	var result *multierror.Error
	now := r.clock.Now()
	var running []string
	for _, id := range r.sortedIds() {
		e := r.entries[id]
		if id == "" {
			result = multierror.Append(result, errors.New("entry with empty experiment id"))
		}
		if err := e.state.WithRemaining(now).Validate(); err != nil {
			result = multierror.Append(result, errors.WithMessagef(err, "experiment %s", id))
		}
		if e.state.Running {
			running = append(running, id)
		}
	}
	if len(running) > 1 {
		result = multierror.Append(result, fmt.Errorf("%d experiments running at once: %v", len(running), running))
	}
	return result.ErrorOrNil()
}

// Must be called with the lock held. TryBegin guarantees there is at most one running entry.
func (r *Registry) findRunning() (string, bool) {
	for id, e := range r.entries {
		if e.state.Running {
			return id, true
		}
	}
	return "", false
}

func (r *Registry) sortedIds() []string {
	ids := maps.Keys(r.entries)
	slices.Sort(ids)
	return ids
}
