package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Execution metrics
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_executions_total",
			Help: "Total number of executions by terminal status",
		},
		[]string{"status"},
	)

	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_execution_duration_seconds",
			Help:    "Execution wall-clock duration in seconds by terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"status"},
	)

	ExecutionsInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_executions_in_flight",
			Help: "Number of executions currently in a non-terminal status",
		},
		[]string{"status"},
	)

	ParticipantsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_participants_total",
			Help: "Number of participating workers in the most recent fan-out, by execution",
		},
		[]string{"execution_id"},
	)

	// Precheck metrics
	PrecheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_precheck_duration_seconds",
			Help:    "Time taken to run a full precheck pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PrechecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_prechecks_total",
			Help: "Total number of precheck passes by verdict",
		},
		[]string{"verdict"},
	)

	// Deploy metrics
	DeployStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_deploy_step_duration_seconds",
			Help:    "Time taken for a single deployer step, by step name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	DeployStepFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_deploy_step_failures_total",
			Help: "Total number of deployer step failures, by step name",
		},
		[]string{"step"},
	)

	// Remote-command metrics
	RemoteCommandDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "orchestrator_remote_command_duration_seconds",
			Help:    "Time taken for a single remote command invocation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RemoteCommandFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_remote_command_failures_total",
			Help: "Total number of remote command failures by kind",
		},
		[]string{"kind"},
	)

	// Workload driver metrics
	WorkloadRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orchestrator_workload_run_duration_seconds",
			Help:    "Time taken for a single worker's benchmark run in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"tool"},
	)

	// Worker directory metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orchestrator_workers_total",
			Help: "Total number of known workers by connection status",
		},
		[]string{"status"},
	)

	// Metrics store metrics
	MetricSamplesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_metric_samples_appended_total",
			Help: "Total number of metric samples appended, by stream kind",
		},
		[]string{"stream"},
	)

	// Event bus metrics
	EventBusPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_eventbus_published_total",
			Help: "Total number of events published, by topic",
		},
		[]string{"topic"},
	)

	EventBusDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orchestrator_eventbus_dropped_total",
			Help: "Total number of events dropped because a subscriber's buffer was full",
		},
		[]string{"topic"},
	)
)

func init() {
	prometheus.MustRegister(ExecutionsTotal)
	prometheus.MustRegister(ExecutionDuration)
	prometheus.MustRegister(ExecutionsInFlight)
	prometheus.MustRegister(ParticipantsTotal)
	prometheus.MustRegister(PrecheckDuration)
	prometheus.MustRegister(PrechecksTotal)
	prometheus.MustRegister(DeployStepDuration)
	prometheus.MustRegister(DeployStepFailures)
	prometheus.MustRegister(RemoteCommandDuration)
	prometheus.MustRegister(RemoteCommandFailures)
	prometheus.MustRegister(WorkloadRunDuration)
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(MetricSamplesAppended)
	prometheus.MustRegister(EventBusPublished)
	prometheus.MustRegister(EventBusDropped)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
