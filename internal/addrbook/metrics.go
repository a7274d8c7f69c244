package addrbook

import "github.com/prometheus/client_golang/prometheus"

// metrics bundles the Prometheus collectors the book reports through. A nil
// *prometheus.Registry at construction yields collectors registered against
// a private registry, so a caller that doesn't care never has to guard
// every call site with a nil check.
type metrics struct {
	storeSize        prometheus.Gauge
	connectingGauge  prometheus.Gauge
	mutationsTotal   *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	queryTotal       prometheus.Counter
	queryYield       prometheus.Histogram
}

func newMetrics(reg *prometheus.Registry) *metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metrics{
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peerbook_store_size",
			Help: "Number of address records currently held by the book.",
		}),
		connectingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peerbook_connecting_count",
			Help: "Number of records currently in the CONNECTING state.",
		}),
		mutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerbook_store_mutations_total",
			Help: "Store add/remove operations by kind.",
		}, []string{"op"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerbook_transitions_total",
			Help: "State machine events processed, by event and outcome.",
		}, []string{"event", "outcome"}),
		queryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerbook_query_total",
			Help: "Number of query() calls served.",
		}),
		queryYield: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "peerbook_query_yield",
			Help:    "Number of addresses returned per query() call.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		}),
	}
	reg.MustRegister(m.storeSize, m.connectingGauge, m.mutationsTotal, m.transitionsTotal, m.queryTotal, m.queryYield)
	return m
}

func (m *metrics) recordMutation(op string) {
	if m == nil {
		return
	}
	m.mutationsTotal.WithLabelValues(op).Inc()
}

func (m *metrics) recordTransition(event EventKind, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(eventName(event), outcome).Inc()
}

func (m *metrics) refreshGauges(size, connecting int) {
	if m == nil {
		return
	}
	m.storeSize.Set(float64(size))
	m.connectingGauge.Set(float64(connecting))
}

func (m *metrics) recordQuery(yield int) {
	if m == nil {
		return
	}
	m.queryTotal.Inc()
	m.queryYield.Observe(float64(yield))
}

func eventName(k EventKind) string {
	switch k {
	case EventAdd:
		return "add"
	case EventConnecting:
		return "connecting"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventFailure:
		return "failure"
	case EventUnroutable:
		return "unroutable"
	case EventBan:
		return "ban"
	default:
		return "unknown"
	}
}
