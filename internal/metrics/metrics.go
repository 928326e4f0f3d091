package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
)

const namespace = "powerdeck"

// Metrics implements the orchestrator observer and the power watcher sink.
type Metrics struct {
	registry *prometheus.Registry

	workflows        *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	wakes            *prometheus.CounterVec
	commands         *prometheus.CounterVec
	hostOnline       prometheus.Gauge
	lastObserved     prometheus.Gauge
	requestsTracked  prometheus.Gauge
}

// New registers every collector on a dedicated registry, together with the
// Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		workflows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflows_total",
			Help:      "Finished workflows by name and outcome",
		}, []string{"workflow", "outcome"}),
		workflowDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Wall time of finished workflows",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 240, 480},
		}, []string{"workflow"}),
		wakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_signals_total",
			Help:      "Wake-on-LAN packets sent, by result",
		}, []string{"result"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_commands_total",
			Help:      "Remote commands run, by result",
		}, []string{"result"}),
		hostOnline: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_online",
			Help:      "1 when the managed host answered the last probe",
		}),
		lastObserved: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "host_last_observed_timestamp_seconds",
			Help:      "Unix time of the last power observation",
		}),
		requestsTracked: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_tracked",
			Help:      "Progress boards currently kept in memory",
		}),
	}
}

func (m *Metrics) WorkflowFinished(workflow string, outcome domain.Outcome, took time.Duration) {
	m.workflows.WithLabelValues(workflow, string(outcome)).Inc()
	m.workflowDuration.WithLabelValues(workflow).Observe(took.Seconds())
}

func (m *Metrics) WakeSent(err error) {
	m.wakes.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) CommandRun(err error) {
	m.commands.WithLabelValues(result(err)).Inc()
}

// PowerObserved records the outcome of a background probe.
func (m *Metrics) PowerObserved(state domain.PowerState, at time.Time) {
	if state == domain.Online {
		m.hostOnline.Set(1)
	} else {
		m.hostOnline.Set(0)
	}
	m.lastObserved.Set(float64(at.Unix()))
}

// RequestsTracked sets the number of boards kept by the dispatcher.
func (m *Metrics) RequestsTracked(n int) {
	m.requestsTracked.Set(float64(n))
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
