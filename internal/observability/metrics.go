package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the vigilance cycle and the
// delivery fan-out.
type Metrics struct {
	CyclesTotal   *prometheus.CounterVec // label: status={no_data,no_alerts,alerts_sent}
	AlertsSent    *prometheus.CounterVec // label: channel={sms,email}
	AlertsFailed  *prometheus.CounterVec // label: channel={sms,email}
	CycleDuration prometheus.Histogram
	Subscribers   prometheus.Gauge
}

// NewMetrics creates and registers all collectors with the default registry.
func NewMetrics() *Metrics {
	return newMetrics(prometheus.DefaultRegisterer)
}

// NewMetricsForTesting uses a fresh registry to avoid duplicate-registration
// panics across test cases.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigilance",
			Name:      "cycles_total",
			Help:      "Completed check-and-broadcast cycles by outcome status.",
		}, []string{"status"}),
		AlertsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigilance",
			Name:      "alerts_sent_total",
			Help:      "Successful alert deliveries by channel.",
		}, []string{"channel"}),
		AlertsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigilance",
			Name:      "alerts_failed_total",
			Help:      "Failed alert deliveries by channel.",
		}, []string{"channel"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vigilance",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one full check-and-broadcast cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vigilance",
			Name:      "broadcast_subscribers",
			Help:      "Active verified subscribers seen by the last broadcast.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.AlertsSent,
		m.AlertsFailed,
		m.CycleDuration,
		m.Subscribers,
	)

	return m
}
