package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors shared by both binaries.
// All methods are safe on a nil receiver so components can run without metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	Registrations     *prometheus.CounterVec
	Authorizations    *prometheus.CounterVec
	OTPIssued         prometheus.Counter
	OTPVerifications  *prometheus.CounterVec
	TokenValidations  *prometheus.CounterVec
	GatewayDecisions  *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	RequestDurationMs *prometheus.HistogramVec
}

// New registers collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		Authorizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_authorizations_total",
			Help: "Authorization attempts by outcome",
		}, []string{"outcome"}),
		OTPIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "identity_otp_issued_total",
			Help: "One-time codes issued",
		}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_otp_verifications_total",
			Help: "One-time code verifications by outcome",
		}, []string{"outcome"}),
		TokenValidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_token_validations_total",
			Help: "Token validations by result",
		}, []string{"result"}),
		GatewayDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Edge filter decisions",
		}, []string{"decision"}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_upstream_breaker_state",
			Help: "Upstream breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"upstream"}),
		RequestDurationMs: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_ms",
			Help:    "HTTP request latency in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}, []string{"route", "method", "status"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) IncRegistration(outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncAuthorization(outcome string) {
	if m == nil {
		return
	}
	m.Authorizations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncOTPIssued() {
	if m == nil {
		return
	}
	m.OTPIssued.Inc()
}

func (m *Metrics) IncOTPVerification(outcome string) {
	if m == nil {
		return
	}
	m.OTPVerifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncTokenValidation(result string) {
	if m == nil {
		return
	}
	m.TokenValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) IncGatewayDecision(decision string) {
	if m == nil {
		return
	}
	m.GatewayDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) SetBreakerState(upstream string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(upstream).Set(float64(state))
}

func (m *Metrics) ObserveRequest(route, method, status string, ms float64) {
	if m == nil {
		return
	}
	m.RequestDurationMs.WithLabelValues(route, method, status).Observe(ms)
}
