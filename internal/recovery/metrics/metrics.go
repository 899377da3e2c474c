package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeEmailSent    = "email_sent"
	OutcomeNotFound     = "account_not_found"
	OutcomeInvalid      = "invalid"
	OutcomeForbidden    = "forbidden"
	OutcomeElevated     = "elevated"
	OutcomeUnauthorized = "unauthorized"
	OutcomeChanged      = "password_changed"
	OutcomeError        = "error"
)

// Metrics holds Prometheus metrics for the recovery flow.
type Metrics struct {
	BeginRecovery    *prometheus.CounterVec
	PresentResetForm *prometheus.CounterVec
	CompleteReset    *prometheus.CounterVec
	MailDelivery     *prometheus.CounterVec
	ElevationStoreMs *prometheus.HistogramVec
}

// New creates and registers recovery metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BeginRecovery: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "troupon_recovery_begin_total",
			Help: "Forgot-password submissions by outcome",
		}, []string{"outcome"}),
		PresentResetForm: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "troupon_recovery_link_visits_total",
			Help: "Recovery link visits by outcome",
		}, []string{"outcome"}),
		CompleteReset: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "troupon_recovery_reset_total",
			Help: "Reset-password submissions by outcome",
		}, []string{"outcome"}),
		MailDelivery: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "troupon_recovery_mail_total",
			Help: "Recovery mail send attempts by transport and result",
		}, []string{"transport", "delivered"}),
		ElevationStoreMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "troupon_elevation_store_duration_ms",
			Help:    "Latency of elevation store operations in milliseconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		}, []string{"op"}),
	}
}

func (m *Metrics) IncBeginRecovery(outcome string) {
	m.BeginRecovery.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncPresentResetForm(outcome string) {
	m.PresentResetForm.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncCompleteReset(outcome string) {
	m.CompleteReset.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncMailDelivery(transport string, delivered bool) {
	label := "false"
	if delivered {
		label = "true"
	}
	m.MailDelivery.WithLabelValues(transport, label).Inc()
}

// ObserveElevationStore records how long an elevation store operation took.
func (m *Metrics) ObserveElevationStore(op string, start time.Time) {
	m.ElevationStoreMs.WithLabelValues(op).Observe(float64(time.Since(start).Microseconds()) / 1000.0)
}
