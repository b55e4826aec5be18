// Package observability provides Prometheus metrics for the monitor.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine and log stream collectors. It satisfies both
// strategies.Metrics and logstream.Observer.
type Metrics struct {
	registry *prometheus.Registry

	ActiveTasks      *prometheus.GaugeVec
	EntriesProcessed *prometheus.CounterVec
	DecodeErrors     *prometheus.CounterVec
	AlertsEmitted    *prometheus.CounterVec
	Resubscriptions  *prometheus.CounterVec
	StreamFrames     *prometheus.CounterVec
	RulesLoaded      prometheus.Gauge
	RuleReloads      *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "smart_monitor"
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ActiveTasks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "active_tasks",
			Help:      "Number of running rule tasks by rule kind",
		}, []string{"kind"}),
		EntriesProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "entries_processed_total",
			Help:      "Total number of log entries evaluated by rule kind",
		}, []string{"kind"}),
		DecodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "decode_errors_total",
			Help:      "Total number of program data lines that failed to decode",
		}, []string{"kind"}),
		AlertsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "alerts_emitted_total",
			Help:      "Total number of alerts emitted by rule kind",
		}, []string{"kind"}),
		Resubscriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "resubscriptions_total",
			Help:      "Total number of failed or ended subscriptions followed by a retry",
		}, []string{"kind"}),
		StreamFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "logstream",
			Name:      "frames_total",
			Help:      "Total number of inbound streaming frames by outcome",
		}, []string{"outcome"}),
		RulesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "loaded",
			Help:      "Number of rules in the active rule set",
		}),
		RuleReloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rules",
			Name:      "reloads_total",
			Help:      "Total number of rule reloads by result",
		}, []string{"result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) TaskStarted(kind string)    { m.ActiveTasks.WithLabelValues(kind).Inc() }
func (m *Metrics) TaskStopped(kind string)    { m.ActiveTasks.WithLabelValues(kind).Dec() }
func (m *Metrics) EntryProcessed(kind string) { m.EntriesProcessed.WithLabelValues(kind).Inc() }
func (m *Metrics) DecodeFailed(kind string)   { m.DecodeErrors.WithLabelValues(kind).Inc() }
func (m *Metrics) AlertEmitted(kind string)   { m.AlertsEmitted.WithLabelValues(kind).Inc() }
func (m *Metrics) Resubscribed(kind string)   { m.Resubscriptions.WithLabelValues(kind).Inc() }

// ObserveFrame counts one streaming frame. The address is not a label to
// keep series bounded.
func (m *Metrics) ObserveFrame(_ string, outcome string) {
	m.StreamFrames.WithLabelValues(outcome).Inc()
}

// RulesReloaded records the outcome of a rule reload.
func (m *Metrics) RulesReloaded(count int, err error) {
	if err != nil {
		m.RuleReloads.WithLabelValues("error").Inc()
		return
	}
	m.RuleReloads.WithLabelValues("ok").Inc()
	m.RulesLoaded.Set(float64(count))
}
