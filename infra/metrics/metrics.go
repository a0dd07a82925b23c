// Package metrics exposes the cluster's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	MessagesDelivered   prometheus.Counter
	MessagesPending     prometheus.Counter
	ReplicationFailures prometheus.Counter
	ForwardFailures     prometheus.Counter
	Peers               prometheus.Gauge
	Leader              prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		MessagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_messages_delivered_total",
			Help: "Messages handed to a live monitor stream.",
		}),
		MessagesPending: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_messages_pending_total",
			Help: "Messages persisted for later inbox drain.",
		}),
		ReplicationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_replication_failures_total",
			Help: "Fan-out calls that failed or timed out.",
		}),
		ForwardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "courier_forward_failures_total",
			Help: "Client writes that could not reach the leader.",
		}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "courier_peers",
			Help: "Live entries in the peer table.",
		}),
		Leader: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "courier_leader",
			Help: "1 when this server believes it is the leader.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MessagesDelivered,
		m.MessagesPending,
		m.ReplicationFailures,
		m.ForwardFailures,
		m.Peers,
		m.Leader,
	)
	return m
}

// Handler serves the scrape endpoint for this registry only.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
