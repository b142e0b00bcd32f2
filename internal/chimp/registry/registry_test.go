package registry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clock "k8s.io/utils/clock/testing"

	"github.com/G-Research/chimp/internal/chimp/domain"
	"github.com/G-Research/chimp/pkg/api"
)

var baseTime = time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)

func newExperiment(id string, duration uint32, now time.Time) *domain.Experiment {
	return domain.NewExperiment(&api.StartRequest{
		ExperimentId:    id,
		Kind:            api.KindCpu,
		DurationSeconds: duration,
		Params:          api.CpuParams(10),
	}, now)
}

func claim(e *domain.Experiment) (Claim, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return Claim{Experiment: e, Cancel: cancel}, ctx
}

func TestTryBegin_SingleFlight(t *testing.T) {
	r := New(clock.NewFakePassiveClock(baseTime))

	c1, _ := claim(newExperiment("e1", 10, baseTime))
	runningId, ok := r.TryBegin(c1)
	require.True(t, ok)
	assert.Empty(t, runningId)

	c2, _ := claim(newExperiment("e2", 10, baseTime))
	runningId, ok = r.TryBegin(c2)
	assert.False(t, ok)
	assert.Equal(t, "e1", runningId)

	_, present := r.Get("e2")
	assert.False(t, present)
	assert.Equal(t, 1, r.Len())
}

func TestTryBegin_Concurrent(t *testing.T) {
	r := New(clock.NewFakePassiveClock(baseTime))

	const callers = 50
	var wg sync.WaitGroup
	results := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, _ := claim(newExperiment(fmt.Sprintf("e%d", i), 10, baseTime))
			_, results[i] = r.TryBegin(c)
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, ok := range results {
		if ok {
			accepted++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 1, r.Len())
	assert.NoError(t, r.CheckInvariants())
}

func TestGet_RemainingSeconds(t *testing.T) {
	fakeClock := clock.NewFakePassiveClock(baseTime)
	r := New(fakeClock)

	c, _ := claim(newExperiment("e1", 10, baseTime))
	_, ok := r.TryBegin(c)
	require.True(t, ok)

	fakeClock.SetTime(baseTime.Add(3 * time.Second))
	state, present := r.Get("e1")
	require.True(t, present)
	assert.True(t, state.Running)
	assert.Equal(t, uint32(7), state.RemainingSeconds)
	assert.Equal(t, uint32(10), state.TotalDurationSeconds)

	fakeClock.SetTime(baseTime.Add(time.Minute))
	state, _ = r.Get("e1")
	assert.True(t, state.Running)
	assert.Equal(t, uint32(0), state.RemainingSeconds)

	_, present = r.Get("unknown")
	assert.False(t, present)
}

func TestFinish(t *testing.T) {
	r := New(clock.NewFakePassiveClock(baseTime))
	e := newExperiment("e1", 10, baseTime)
	c, _ := claim(e)
	_, ok := r.TryBegin(c)
	require.True(t, ok)

	assert.False(t, r.Finish("e1", "some-other-run"))
	assert.False(t, r.Finish("unknown", e.RunId))

	assert.True(t, r.Finish("e1", e.RunId))
	state, _ := r.Get("e1")
	assert.False(t, state.Running)
	assert.Equal(t, uint32(0), state.RemainingSeconds)

	assert.False(t, r.Finish("e1", e.RunId))
	_, found := r.FindRunning()
	assert.False(t, found)
}

func TestFinish_DoesNotClobberReusedId(t *testing.T) {
	r := New(clock.NewFakePassiveClock(baseTime))

	first := newExperiment("e1", 10, baseTime)
	c, _ := claim(first)
	_, ok := r.TryBegin(c)
	require.True(t, ok)
	require.True(t, r.Stop("e1"))

	second := newExperiment("e1", 10, baseTime)
	c, _ = claim(second)
	_, ok = r.TryBegin(c)
	require.True(t, ok)

	// The first run's generator finishing late must not end the second run.
	assert.False(t, r.Finish("e1", first.RunId))
	state, _ := r.Get("e1")
	assert.True(t, state.Running)
}

func TestStop(t *testing.T) {
	r := New(clock.NewFakePassiveClock(baseTime))
	c, ctx := claim(newExperiment("e1", 10, baseTime))
	_, ok := r.TryBegin(c)
	require.True(t, ok)

	assert.True(t, r.Stop("e1"))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	state, _ := r.Get("e1")
	assert.False(t, state.Running)
	assert.Equal(t, uint32(0), state.RemainingSeconds)

	assert.False(t, r.Stop("e1"))
	assert.False(t, r.Stop("unknown"))

	// The slot is free again.
	c2, _ := claim(newExperiment("e2", 10, baseTime))
	_, ok = r.TryBegin(c2)
	assert.True(t, ok)
}

func TestRunning(t *testing.T) {
	r := New(clock.NewFakePassiveClock(baseTime))
	_, _, found := r.Running()
	assert.False(t, found)

	c, _ := claim(newExperiment("e1", 10, baseTime))
	r.TryBegin(c)

	id, state, found := r.Running()
	require.True(t, found)
	assert.Equal(t, "e1", id)
	assert.Equal(t, uint32(10), state.RemainingSeconds)
}

func TestCheckInvariants(t *testing.T) {
	r := New(clock.NewFakePassiveClock(baseTime))
	assert.NoError(t, r.CheckInvariants())

	r.entries["a"] = &entry{state: domain.ExperimentState{Running: true, TotalDurationSeconds: 5, StartedAtUnix: 0, EndsAtUnix: 6}}
	r.entries["b"] = &entry{state: domain.ExperimentState{Running: true, TotalDurationSeconds: 5, StartedAtUnix: 0, EndsAtUnix: 5}}

	err := r.CheckInvariants()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "experiment a")
	assert.Contains(t, err.Error(), "2 experiments running at once")
}
