package metrics

import "github.com/prometheus/client_golang/prometheus"

// ExchangeMetrics exposes counters/histograms for NPHIES traffic.
type ExchangeMetrics struct {
	messagesTotal   *prometheus.CounterVec
	pollCyclesTotal *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
}

func NewExchangeMetrics(reg prometheus.Registerer) *ExchangeMetrics {
	m := &ExchangeMetrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nphies",
			Subsystem: "exchange",
			Name:      "messages_total",
			Help:      "Total message bundles sent to $process-message",
		}, []string{"event", "status"}),
		pollCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nphies",
			Subsystem: "exchange",
			Name:      "poll_cycles_total",
			Help:      "Total poll cycles by response code",
		}, []string{"response_code"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nphies",
			Subsystem: "exchange",
			Name:      "request_latency_seconds",
			Help:      "Latency of $process-message round trips",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.messagesTotal, m.pollCyclesTotal, m.requestLatency)
	return m
}

func (m *ExchangeMetrics) ObserveMessage(event, status string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(event, status).Inc()
}

func (m *ExchangeMetrics) ObservePollCycle(responseCode string) {
	if m == nil {
		return
	}
	m.pollCyclesTotal.WithLabelValues(responseCode).Inc()
}

func (m *ExchangeMetrics) ObserveRequestLatency(event string, seconds float64) {
	if m == nil {
		return
	}
	m.requestLatency.WithLabelValues(event).Observe(seconds)
}
