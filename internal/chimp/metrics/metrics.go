package metrics

import (
	"bytes"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/G-Research/chimp/internal/chimp/domain"
)

const prefix = "agent_"

const (
	experimentIdLabel = "experiment_id"
	kindLabel         = "kind"
	paramsLabel       = "params"
	durationLabel     = "duration_seconds"
	reasonLabel       = "reason"
)

// Reasons an experiment finished.
const (
	ReasonCompleted = "completed"
	ReasonStopped   = "stopped"
	ReasonFailed    = "failed"
)

// Reasons a start request was rejected.
const (
	ReasonInvalid     = "invalid"
	ReasonConflict    = "conflict"
	ReasonUnallocated = "unallocated"
)

// ContentType is the content type of the text produced by Encode.
const ContentType = string(expfmt.FmtText)

// Metrics owns a private prometheus registry holding every series the agent exposes about its experiments.
// Gauges describing the current experiment are only cleared on behalf of the run that set them.
type Metrics struct {
	registry *prometheus.Registry

	cpuHogActive               prometheus.Gauge
	cpuHogDutyPercent          prometheus.Gauge
	cpuSecondsTotal            prometheus.Counter
	experimentActive           prometheus.Gauge
	experimentTotalSeconds     prometheus.Gauge
	experimentRemainingSeconds prometheus.Gauge
	memoryHogBytes             prometheus.Gauge
	runningInfo                *prometheus.GaugeVec
	experimentsStarted         *prometheus.CounterVec
	experimentsFinished        *prometheus.CounterVec
	experimentsRejected        *prometheus.CounterVec

	// Run id and info labels of the experiment the gauges currently describe.
	lock          sync.Mutex
	currentRunId  string
	currentLabels []string
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cpuHogActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "cpu_hog_active",
			Help: "1 while a CPU experiment is burning cycles, 0 otherwise",
		}),
		cpuHogDutyPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "cpu_hog_duty_percent",
			Help: "Duty percent of the running CPU experiment",
		}),
		cpuSecondsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "cpu_seconds_total",
			Help: "Duty-cycle windows completed by CPU experiments",
		}),
		experimentActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "experiment_active",
			Help: "1 while an experiment is running, 0 otherwise",
		}),
		experimentTotalSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "experiment_total_seconds",
			Help: "Total duration of the current experiment",
		}),
		experimentRemainingSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "experiment_remaining_seconds",
			Help: "Seconds until the current experiment ends",
		}),
		memoryHogBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "memory_hog_bytes",
			Help: "Bytes held by the running memory experiment",
		}),
		runningInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: prefix + "experiment_running_info",
				Help: "Set to 1 for the running experiment, labelled with its parameters",
			},
			[]string{experimentIdLabel, kindLabel, paramsLabel, durationLabel},
		),
		experimentsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "experiments_started_total",
				Help: "Experiments accepted",
			},
			[]string{kindLabel},
		),
		experimentsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "experiments_finished_total",
				Help: "Experiments finished, by reason",
			},
			[]string{kindLabel, reasonLabel},
		),
		experimentsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "experiments_rejected_total",
				Help: "Start requests rejected, by reason",
			},
			[]string{reasonLabel},
		),
	}
	m.registry.MustRegister(
		m.cpuHogActive,
		m.cpuHogDutyPercent,
		m.cpuSecondsTotal,
		m.experimentActive,
		m.experimentTotalSeconds,
		m.experimentRemainingSeconds,
		m.memoryHogBytes,
		m.runningInfo,
		m.experimentsStarted,
		m.experimentsFinished,
		m.experimentsRejected,
	)
	return m
}

// Gatherer exposes the registry, e.g. for promhttp or testutil.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Encode renders every series in the prometheus text exposition format.
func (m *Metrics) Encode() ([]byte, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, errors.Wrap(err, "gathering metrics")
	}
	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return nil, errors.Wrapf(err, "encoding metric family %s", family.GetName())
		}
	}
	return buf.Bytes(), nil
}

// ExperimentStarted points the experiment gauges at e.
func (m *Metrics) ExperimentStarted(e *domain.Experiment) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.currentLabels != nil {
		m.runningInfo.DeleteLabelValues(m.currentLabels...)
	}
	m.currentRunId = e.RunId
	m.currentLabels = infoLabels(e)
	m.resetGeneratorGauges()

	m.experimentsStarted.WithLabelValues(e.Kind).Inc()
	m.experimentActive.Set(1)
	m.experimentTotalSeconds.Set(float64(e.DurationSeconds))
	m.experimentRemainingSeconds.Set(float64(e.DurationSeconds))
	m.runningInfo.WithLabelValues(m.currentLabels...).Set(1)
}

// ExperimentFinished counts the end of e. The experiment gauges are reset only if they still describe e.
func (m *Metrics) ExperimentFinished(e *domain.Experiment, reason string) {
	m.experimentsFinished.WithLabelValues(e.Kind, reason).Inc()

	m.lock.Lock()
	defer m.lock.Unlock()
	if m.currentRunId != e.RunId {
		return
	}
	m.runningInfo.DeleteLabelValues(m.currentLabels...)
	m.currentRunId = ""
	m.currentLabels = nil
	m.resetGeneratorGauges()
	m.experimentActive.Set(0)
	m.experimentRemainingSeconds.Set(0)
}

func (m *Metrics) ExperimentRejected(reason string) {
	m.experimentsRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetRemainingSeconds(seconds uint32) {
	m.experimentRemainingSeconds.Set(float64(seconds))
}

// ReporterFor returns the sink the generator of e reports through.
func (m *Metrics) ReporterFor(e *domain.Experiment) *RunReporter {
	return &RunReporter{metrics: m, runId: e.RunId}
}

func (m *Metrics) isCurrent(runId string) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.currentRunId == runId
}

func (m *Metrics) resetGeneratorGauges() {
	m.cpuHogActive.Set(0)
	m.cpuHogDutyPercent.Set(0)
	m.memoryHogBytes.Set(0)
}

func infoLabels(e *domain.Experiment) []string {
	return []string{e.Id, e.Kind, e.ParamsLabel(), strconv.FormatUint(uint64(e.DurationSeconds), 10)}
}
