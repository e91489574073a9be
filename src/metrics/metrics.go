// Package metrics exposes gateway-level Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is a
// valid no-op receiver so components never need to check whether metrics
// are enabled.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	EventsDispatched  prometheus.Counter
	SendFailures      prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
}

// New creates and registers all gateway metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "satori",
			Subsystem: "gateway",
			Name:      "connections_active",
			Help:      "Number of authorized WebSocket connections.",
		}),
		EventsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "satori",
			Subsystem: "gateway",
			Name:      "events_dispatched_total",
			Help:      "Total Event frames sent to connections.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "satori",
			Subsystem: "gateway",
			Name:      "event_send_failures_total",
			Help:      "Total Event frames dropped because a connection could not accept them.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "satori",
			Subsystem: "gateway",
			Name:      "http_requests_total",
			Help:      "Total HTTP responses by status code.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(m.ConnectionsActive, m.EventsDispatched, m.SendFailures, m.HTTPRequests)
	return m
}

// ConnOpened records an authorized connection joining the registry.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

// ConnClosed records an authorized connection leaving the registry.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
}

// EventSent records a successfully queued Event frame.
func (m *Metrics) EventSent() {
	if m == nil {
		return
	}
	m.EventsDispatched.Inc()
}

// SendFailed records an Event frame dropped for a single connection.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}

// HTTPRequest records a completed HTTP response.
func (m *Metrics) HTTPRequest(status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus text format. Returns nil on
// a nil receiver.
func (m *Metrics) Handler() fasthttp.RequestHandler {
	if m == nil {
		return nil
	}
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return fasthttpadaptor.NewFastHTTPHandler(h)
}
