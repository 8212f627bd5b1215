// Package metrics holds the Prometheus instrumentation of blocsheet.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmynk/blocsheet/internal/models"
)

// Metrics collects sheet lifecycle and HTTP metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	publishTotal     *prometheus.CounterVec
	publishDuration  prometheus.Histogram
	validationIssues *prometheus.CounterVec
	payments         prometheus.Counter
	ledgerMutations  *prometheus.CounterVec
	stateViolations  *prometheus.CounterVec

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New initializes the registry and every metric.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blocsheet_publish_total",
			Help: "Publish attempts by result.",
		}, []string{"result"}),
		publishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "blocsheet_publish_duration_seconds",
			Help:    "Duration of successful publish transactions.",
			Buckets: prometheus.DefBuckets,
		}),
		validationIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blocsheet_validation_issues_total",
			Help: "Validation issues reported by publish checks, by severity.",
		}, []string{"severity"}),
		payments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "blocsheet_payments_recorded_total",
			Help: "Payments recorded against published sheets.",
		}),
		ledgerMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blocsheet_ledger_mutations_total",
			Help: "Expense ledger mutations by operation.",
		}, []string{"op"}),
		stateViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blocsheet_state_violations_total",
			Help: "Operations rejected because of the sheet status.",
		}, []string{"op"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blocsheet_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "blocsheet_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	registry.MustRegister(
		m.publishTotal, m.publishDuration, m.validationIssues, m.payments,
		m.ledgerMutations, m.stateViolations, m.requestsTotal, m.requestDuration,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Publish results.
const (
	ResultPublished = "published"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// ObservePublish records a publish attempt.
func (m *Metrics) ObservePublish(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.publishTotal.WithLabelValues(result).Inc()
	if result == ResultPublished {
		m.publishDuration.Observe(d.Seconds())
	}
}

// ObserveValidation counts the issues of a validation result.
func (m *Metrics) ObserveValidation(r models.ValidationResult) {
	if m == nil {
		return
	}
	m.validationIssues.WithLabelValues(string(models.SeverityError)).Add(float64(len(r.Errors)))
	m.validationIssues.WithLabelValues(string(models.SeverityWarning)).Add(float64(len(r.Warnings)))
}

// PaymentRecorded counts one payment.
func (m *Metrics) PaymentRecorded() {
	if m == nil {
		return
	}
	m.payments.Inc()
}

// LedgerMutation counts one expense ledger operation.
func (m *Metrics) LedgerMutation(op string) {
	if m == nil {
		return
	}
	m.ledgerMutations.WithLabelValues(op).Inc()
}

// StateViolation counts one operation rejected by the sheet status.
func (m *Metrics) StateViolation(op string) {
	if m == nil {
		return
	}
	m.stateViolations.WithLabelValues(op).Inc()
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry, e.g. for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Middleware records request count and duration per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
