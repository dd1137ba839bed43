package metrics

import "github.com/prometheus/client_golang/prometheus"

// CallMetrics exposes counters/histograms for the confirmation-call flows.
type CallMetrics struct {
	callsPlaced    *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	menuSelections *prometheus.CounterVec
	batchesStarted prometheus.Counter
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		callsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "confirmline",
			Subsystem: "calls",
			Name:      "placed_total",
			Help:      "Total outbound call placement attempts",
		}, []string{"result"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "confirmline",
			Subsystem: "calls",
			Name:      "webhook_total",
			Help:      "Total inbound telephony webhooks",
		}, []string{"event", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "confirmline",
			Subsystem: "calls",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of telephony webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		menuSelections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "confirmline",
			Subsystem: "calls",
			Name:      "menu_selection_total",
			Help:      "Touch-tone selections by digit",
		}, []string{"digit"}),
		batchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "confirmline",
			Subsystem: "calls",
			Name:      "batches_started_total",
			Help:      "Total call batches started",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsPlaced, m.webhookTotal, m.webhookLatency, m.menuSelections, m.batchesStarted)
	return m
}

func (m *CallMetrics) ObserveCallPlaced(result string) {
	if m == nil {
		return
	}
	m.callsPlaced.WithLabelValues(result).Inc()
}

func (m *CallMetrics) ObserveWebhook(event, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(event, status).Inc()
}

func (m *CallMetrics) ObserveWebhookLatency(event string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(event).Observe(seconds)
}

func (m *CallMetrics) ObserveMenuSelection(digit string) {
	if m == nil {
		return
	}
	m.menuSelections.WithLabelValues(digit).Inc()
}

func (m *CallMetrics) ObserveBatchStarted() {
	if m == nil {
		return
	}
	m.batchesStarted.Inc()
}
