package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/moritzWa/pickup-sub004/pkg/gate"
)

// Metrics is the subsystem's counter/histogram surface. Recording is always
// non-blocking; there is nothing here a withdrawal can fail on.
type Metrics struct {
	submissions         *prometheus.CounterVec
	confirmationSeconds *prometheus.HistogramVec
	syncs               *prometheus.CounterVec
	gateInUse           prometheus.GaugeFunc
}

func New(registry *prometheus.Registry, g *gate.Gate) *Metrics {
	m := &Metrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_submissions_total",
			Help: "Withdrawal submission attempts by chain and outcome.",
		}, []string{"chain", "outcome"}),
		confirmationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "withdrawal_confirmation_seconds",
			Help:    "Time from broadcast to observed confirmation.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		}, []string{"chain"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "withdrawal_status_syncs_total",
			Help: "Status reconciliation runs by chain and resulting status.",
		}, []string{"chain", "status"}),
	}

	registry.MustRegister(m.submissions, m.confirmationSeconds, m.syncs)

	if g != nil {
		m.gateInUse = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "withdrawal_gate_permits_in_use",
			Help: "Permits currently held in the withdrawal concurrency gate.",
		}, func() float64 {
			return float64(g.InUse())
		})
		registry.MustRegister(m.gateInUse)
	}
	return m
}

func (m *Metrics) RecordSubmission(chain, outcome string) {
	m.submissions.WithLabelValues(chain, outcome).Inc()
}

func (m *Metrics) RecordConfirmation(chain string, seconds float64) {
	m.confirmationSeconds.WithLabelValues(chain).Observe(seconds)
}

func (m *Metrics) RecordSync(chain, status string) {
	m.syncs.WithLabelValues(chain, status).Inc()
}
