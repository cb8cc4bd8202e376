// Package metrics exposes messaging and fan-out counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/privatelovie/social-commerce-platform-sub001/internal/delivery"
	"github.com/privatelovie/social-commerce-platform-sub001/internal/store"
)

const namespace = "cartchat"

// Presence reports live users and connections of this process.
type Presence interface {
	Counts() (users, conns int)
}

// Metrics implements chat.Observer and core.Metrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	messagesSent      *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	eventsFannedOut   *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
}

// New registers the collectors. presence may be nil, in which case the gauges
// are not exported.
func New(presence Presence) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages persisted, by message type.",
		}, []string{"type"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_status_transitions_total",
			Help:      "Messages moved forward in their lifecycle, by target status.",
		}, []string{"status"}),
		eventsFannedOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events queued to local connections, by event name.",
		}, []string{"event"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped for slow or closed connections, by event name.",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesSent,
		m.statusTransitions,
		m.eventsFannedOut,
		m.eventsDropped,
	)

	if presence != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "online_users",
				Help:      "Users with at least one live connection on this node.",
			}, func() float64 {
				users, _ := presence.Counts()
				return float64(users)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connections",
				Help:      "Live connections on this node.",
			}, func() float64 {
				_, conns := presence.Counts()
				return float64(conns)
			}),
		)
	}
	return m
}

func (m *Metrics) MessageSent(t store.MessageType) {
	m.messagesSent.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) StatusAdvanced(s delivery.Status, n int) {
	m.statusTransitions.WithLabelValues(string(s)).Add(float64(n))
}

func (m *Metrics) EventFannedOut(name string, n int) {
	m.eventsFannedOut.WithLabelValues(name).Add(float64(n))
}

func (m *Metrics) EventDropped(name string) {
	m.eventsDropped.WithLabelValues(name).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
