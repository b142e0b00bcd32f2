package metrics

// RunReporter records generator progress for a single run.
// Counters always move; gauges are only written while the run is the current one.
type RunReporter struct {
	metrics *Metrics
	runId   string
}

func (r *RunReporter) CpuWindowCompleted(dutyPercent uint32) {
	r.metrics.cpuSecondsTotal.Inc()
	if r.metrics.isCurrent(r.runId) {
		r.metrics.cpuHogActive.Set(1)
		r.metrics.cpuHogDutyPercent.Set(float64(dutyPercent))
	}
}

func (r *RunReporter) CpuStarted(dutyPercent uint32) {
	if r.metrics.isCurrent(r.runId) {
		r.metrics.cpuHogActive.Set(1)
		r.metrics.cpuHogDutyPercent.Set(float64(dutyPercent))
	}
}

func (r *RunReporter) CpuStopped() {
	if r.metrics.isCurrent(r.runId) {
		r.metrics.cpuHogActive.Set(0)
		r.metrics.cpuHogDutyPercent.Set(0)
	}
}

func (r *RunReporter) MemoryAllocated(bytes int) {
	if r.metrics.isCurrent(r.runId) {
		r.metrics.memoryHogBytes.Set(float64(bytes))
	}
}

func (r *RunReporter) MemoryReleased() {
	if r.metrics.isCurrent(r.runId) {
		r.metrics.memoryHogBytes.Set(0)
	}
}
