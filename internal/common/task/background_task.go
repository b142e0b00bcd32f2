package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"
)

type task struct {
	function    func()
	interval    time.Duration
	metricName  string
	stopChannel chan bool
}

// BackgroundTaskManager is not threadsafe, it should only be accessed from a single thread.
type BackgroundTaskManager struct {
	tasks         []*task
	metricsPrefix string
	registerer    prometheus.Registerer
	clock         clock.WithTicker
	wg            *sync.WaitGroup
}

// NewBackgroundTaskManager returns a manager whose per-task latency histograms are registered
// with registerer under metricsPrefix.
func NewBackgroundTaskManager(metricsPrefix string, registerer prometheus.Registerer) *BackgroundTaskManager {
	return &BackgroundTaskManager{
		tasks:         []*task{},
		metricsPrefix: metricsPrefix,
		registerer:    registerer,
		clock:         clock.RealClock{},
		wg:            &sync.WaitGroup{},
	}
}

func (m *BackgroundTaskManager) Register(backgroundTask func(), interval time.Duration, metricName string) {
	task := &task{
		function:    backgroundTask,
		interval:    interval,
		metricName:  metricName,
		stopChannel: make(chan bool),
	}
	m.startBackgroundTask(task)
	m.tasks = append(m.tasks, task)
}

// StopAll stops every task and waits up to timeout for them to exit.
// Returns true if the wait timed out.
func (m *BackgroundTaskManager) StopAll(timeout time.Duration) bool {
	m.stopTasks()
	return m.waitForShutdownCompletion(timeout)
}

func (m *BackgroundTaskManager) startBackgroundTask(task *task) {
	taskDurationHistogram := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    m.metricsPrefix + task.metricName + "_latency_seconds",
			Help:    "Background loop " + task.metricName + " latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		})
	if err := m.registerer.Register(taskDurationHistogram); err != nil {
		log.WithError(err).Warnf("Failed to register latency metric for background task %s", task.metricName)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runOnce(task, taskDurationHistogram)

		ticker := m.clock.NewTicker(task.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
			case <-task.stopChannel:
				return
			}
			m.runOnce(task, taskDurationHistogram)
		}
	}()
}

func (m *BackgroundTaskManager) runOnce(task *task, histogram prometheus.Histogram) {
	start := m.clock.Now()
	task.function()
	histogram.Observe(m.clock.Since(start).Seconds())
}

func (m *BackgroundTaskManager) waitForShutdownCompletion(timeout time.Duration) bool {
	c := make(chan struct{})
	go func() {
		defer close(c)
		m.wg.Wait()
	}()
	select {
	case <-c:
		return false // completed normally
	case <-time.After(timeout):
		return true // timed out
	}
}

func (m *BackgroundTaskManager) stopTasks() {
	for _, task := range m.tasks {
		close(task.stopChannel)
	}
}
