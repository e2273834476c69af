package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RegistrationOutcome("confirmed")
	m.RegistrationOutcome("confirmed")
	m.RegistrationOutcome("waitlisted")
	m.DateParseFailure()
	m.WaitlistPromotions(2)
	m.WaitlistPromotions(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.registrationOutcomes.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registrationOutcomes.WithLabelValues("waitlisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dateParseFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.waitlistPromotions))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RegistrationOutcome("confirmed")
		m.DateParseFailure()
		m.FeedImport("f", "ok")
		m.NotifyFailure()
		m.WaitlistPromotions(3)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.FeedImport("community", "ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `eventdesk_feed_imports_total{feed="community",result="ok"} 1`)
}
