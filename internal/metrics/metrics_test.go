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
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Star(true)
	m.Star(true)
	m.Star(false)
	m.Transition("followed")
	m.Retry(RetryTransient)
	m.FollowCheck(FollowCheckNo)
	m.Discovered(7)
	m.SetPending(4)
	m.CycleCompleted(time.Unix(1700000000, 0))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stars.WithLabelValues("starred")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stars.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("followed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues(RetryTransient)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.followChecks.WithLabelValues(FollowCheckNo)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.candidates))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.pending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.lastCycleEnded))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Star(true)
		m.Transition("expired")
		m.Retry(RetryRateLimit)
		m.FollowCheck(FollowCheckError)
		m.Discovered(1)
		m.SetPending(1)
		m.CycleCompleted(time.Now())
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Star(true)

	recorder := httptest.NewRecorder()
	m.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.True(t, strings.Contains(recorder.Body.String(), `reciprocity_bot_stars_total{result="starred"} 1`))
}
