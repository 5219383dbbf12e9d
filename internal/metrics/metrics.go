// Package metrics exposes sync traffic counters for Prometheus.
//
// Collectors live on a private registry so that several devices can run in
// one process (tests, the demo daemon) without duplicate registration
// panics. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Send results.
const (
	ResultOK          = "ok"
	ResultUnreachable = "unreachable"
	ResultError       = "error"
)

// Metrics holds the spellsync collectors.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	merges           *prometheus.CounterVec
	cloudReconciles  *prometheus.CounterVec
	pendingChanges   prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the
// standard Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spellsync_messages_sent_total",
			Help: "Sync messages sent to the peer, by type and result",
		}, []string{"type", "result"}),
		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spellsync_messages_received_total",
			Help: "Sync messages received from the peer, by type",
		}, []string{"type"}),
		merges: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spellsync_merges_total",
			Help: "Profile merges, by policy and winning side",
		}, []string{"policy", "winner"}),
		cloudReconciles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "spellsync_cloud_reconciles_total",
			Help: "Cloud backup reconciliations, by result",
		}, []string{"result"}),
		pendingChanges: factory.NewGauge(prometheus.GaugeOpts{
			Name: "spellsync_pending_changes",
			Help: "1 while local changes await acknowledgement from the peer",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) MessageSent(msgType, result string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(msgType, result).Inc()
}

func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Merge(policy, winner string) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(policy, winner).Inc()
}

func (m *Metrics) CloudReconcile(result string) {
	if m == nil {
		return
	}
	m.cloudReconciles.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPending(pending bool) {
	if m == nil {
		return
	}
	if pending {
		m.pendingChanges.Set(1)
	} else {
		m.pendingChanges.Set(0)
	}
}
