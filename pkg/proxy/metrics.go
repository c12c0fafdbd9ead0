package proxy

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/remyers/lnproxy/pkg/log"
	"github.com/remyers/lnproxy/pkg/wire"
)

// Metrics holds the tunnel's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Units       *prometheus.CounterVec
	Bytes       *prometheus.CounterVec
	Active      prometheus.Gauge
	ConnErrors  *prometheus.CounterVec
	Deliveries  prometheus.Counter
	InboundDial *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lnproxy_units_total",
			Help: "Handshake acts and framed messages moved through the tunnel.",
		}, []string{"direction", "kind"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lnproxy_bytes_total",
			Help: "Bytes moved through the tunnel.",
		}, []string{"direction"}),
		Active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lnproxy_connections_active",
			Help: "Local node connections currently proxied.",
		}),
		ConnErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lnproxy_connection_errors_total",
			Help: "Connections that ended with an error, by kind.",
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lnproxy_mesh_deliveries_total",
			Help: "Blocks delivered by the mesh to a peer's receive queue.",
		}),
		InboundDial: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lnproxy_inbound_dials_total",
			Help: "Dials to the local node triggered by mesh traffic, by result.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Units, m.Bytes, m.Active, m.ConnErrors, m.Deliveries, m.InboundDial)
	}
	return m
}

func (m *Metrics) unit(dir log.Direction, kind wire.UnitKind, size int) {
	if m == nil {
		return
	}
	d := dir.String()
	m.Units.WithLabelValues(d, kind.String()).Inc()
	m.Bytes.WithLabelValues(d).Add(float64(size))
}

func (m *Metrics) connOpened() {
	if m != nil {
		m.Active.Inc()
	}
}

func (m *Metrics) connClosed(err error) {
	if m == nil {
		return
	}
	m.Active.Dec()
	if !IsBenign(err) {
		m.ConnErrors.WithLabelValues(KindOf(err).String()).Inc()
	}
}

func (m *Metrics) delivered() {
	if m != nil {
		m.Deliveries.Inc()
	}
}

func (m *Metrics) inboundDial(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.InboundDial.WithLabelValues(result).Inc()
}
