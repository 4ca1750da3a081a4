package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordTick(true)
	m.RecordTick(true)
	m.RecordTick(false)
	m.RecordAttempt(false)
	m.RecordAttempt(true)
	m.RecordMutation(true)
	m.RecordRender("product", "bundle")
	m.RecordSkip("popup")
	m.RecordConfigLoad("cache")
	m.RecordTrigger("cart:updated")
	m.RecordAnalyticsDropped()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TicksTotal.WithLabelValues("cart_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AddAttemptsTotal.WithLabelValues("unverified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AddAttemptsTotal.WithLabelValues("verified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MutationsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RendersTotal.WithLabelValues("product", "bundle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkipsTotal.WithLabelValues("popup")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigLoadsTotal.WithLabelValues("cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TriggersTotal.WithLabelValues("cart:updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalyticsDroppedTotal))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordTick(true)
		m.RecordTrigger("x")
		m.RecordRender("product", "offer")
		m.RecordSkip("product")
		m.RecordAttempt(true)
		m.RecordMutation(false)
		m.RecordConfigLoad("network")
		m.RecordAnalyticsDropped()
	})
}

func TestHandler_ServesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordMutation(false)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `salesboost_mutations_total{outcome="failure"} 1`))
}
