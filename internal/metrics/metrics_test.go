package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentattest/attest-core/internal/metrics"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm, err := metrics.New(reg)
	require.NoError(t, err)

	pm.ObserveSubmission("issuance", "CONFIRMED", 150*time.Millisecond)
	pm.ObserveSubmission("issuance", "CONFIRMED", 2*time.Second)
	pm.ObserveSubmission("revocation", "UNKNOWN", time.Minute)
	pm.ObserveLookup("confirmed")

	count, err := testutil.GatherAndCount(reg, "agentattest_anchor_submissions_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	t.Run("duplicate registration fails", func(t *testing.T) {
		_, err := metrics.New(reg)
		assert.Error(t, err)
	})

	t.Run("handler serves registered metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `agentattest_anchor_submissions_total{kind="issuance",outcome="CONFIRMED"} 2`)
		assert.Contains(t, body, `agentattest_chain_lookups_total{outcome="confirmed"} 1`)
		assert.Contains(t, body, "agentattest_anchor_submit_duration_seconds_bucket")
	})
}
