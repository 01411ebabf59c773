package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsServiceCounters(t *testing.T) {
	m := NewMetricsService()

	m.RecordAllocationRetry(IdentifierKindRoll)
	m.RecordAllocationRetry(IdentifierKindRoll)
	m.RecordAllocationRetry(IdentifierKindRegistration)
	m.RecordLogin(LoginOutcomeFailure)
	m.RecordCacheOperation(true, time.Millisecond)
	m.RecordFileCleanup(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.allocationRetries.WithLabelValues(IdentifierKindRoll)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocationRetries.WithLabelValues(IdentifierKindRegistration)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loginAttempts.WithLabelValues(LoginOutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fileCleanups.WithLabelValues("failed")))
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/students", http.StatusOK, 5*time.Millisecond)
	m.RecordAllocationRetry(IdentifierKindRoll)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "http_requests_total"))
	assert.True(t, strings.Contains(body, `identifier_allocation_retries_total{kind="roll_number"} 1`))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.RecordAllocationRetry(IdentifierKindRoll)
	m.RecordLogin(LoginOutcomeSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
