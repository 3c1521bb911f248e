package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics is an optional observability hook for a Session (spec §4.8,
// SPEC_FULL.md domain stack). A nil *Metrics is always safe to call methods
// on — every method no-ops — so wiring it in is opt-in and callers that
// don't care about metrics never need a no-op implementation of their own,
// mirroring the zero-value-disables pattern used elsewhere in the corpus.
type Metrics struct {
	groupStreamsOpen  prometheus.Gauge
	bytesScheduled    prometheus.Counter
	announceChurn     *prometheus.CounterVec
	subscriptionsOpen prometheus.Gauge
}

// NewMetrics registers a Metrics hook's collectors with reg and returns it.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		groupStreamsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "moqcore",
			Subsystem: "session",
			Name:      "group_streams_open",
			Help:      "Number of group streams currently being written by this session.",
		}),
		bytesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "moqcore",
			Subsystem: "session",
			Name:      "bytes_scheduled_total",
			Help:      "Total frame payload bytes written to group streams.",
		}),
		announceChurn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "moqcore",
			Subsystem: "session",
			Name:      "announce_total",
			Help:      "Announce messages sent, by state (active/ended).",
		}, []string{"state"}),
		subscriptionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "moqcore",
			Subsystem: "session",
			Name:      "subscriptions_open",
			Help:      "Number of subscriptions currently open on this session, both served to and requested from the peer.",
		}),
	}
	reg.MustRegister(m.groupStreamsOpen, m.bytesScheduled, m.announceChurn, m.subscriptionsOpen)
	return m
}

func (m *Metrics) groupStreamOpened() {
	if m == nil {
		return
	}
	m.groupStreamsOpen.Inc()
}

func (m *Metrics) groupStreamClosed() {
	if m == nil {
		return
	}
	m.groupStreamsOpen.Dec()
}

func (m *Metrics) bytesWritten(n int) {
	if m == nil {
		return
	}
	m.bytesScheduled.Add(float64(n))
}

func (m *Metrics) announced(active bool) {
	if m == nil {
		return
	}
	state := "ended"
	if active {
		state = "active"
	}
	m.announceChurn.WithLabelValues(state).Inc()
}

func (m *Metrics) subscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptionsOpen.Inc()
}

func (m *Metrics) subscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptionsOpen.Dec()
}
