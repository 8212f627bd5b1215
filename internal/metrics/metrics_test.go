package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/blocsheet/internal/models"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.ObservePublish(ResultPublished, 20*time.Millisecond)
	m.ObservePublish(ResultRejected, 0)
	m.ObserveValidation(models.ValidationResult{
		Errors:   []models.ValidationIssue{{Code: "a"}, {Code: "b"}},
		Warnings: []models.ValidationIssue{{Code: "c"}},
	})
	m.PaymentRecorded()
	m.LedgerMutation("add_expense")
	m.StateViolation("add_expense")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishTotal.WithLabelValues(ResultPublished)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishTotal.WithLabelValues(ResultRejected)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.validationIssues.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validationIssues.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.payments))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ledgerMutations.WithLabelValues("add_expense")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stateViolations.WithLabelValues("add_expense")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "blocsheet_publish_total"))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePublish(ResultFailed, time.Second)
		m.ObserveValidation(models.ValidationResult{})
		m.PaymentRecorded()
		m.LedgerMutation("x")
		m.StateViolation("x")
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(next))
}
