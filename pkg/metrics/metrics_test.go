package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Decision(policy.AutoAdd)
	m.Decision(policy.AutoAdd)
	m.Decision(policy.RequireConfirmation)
	m.Write(model.IntentAdd, false, nil)
	m.Write(model.IntentRemove, true, errors.New("boom"))
	m.Rejection("closed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decisions.WithLabelValues("auto_add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("require_confirmation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("add", "false", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.writes.WithLabelValues("remove", "true", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejections.WithLabelValues("closed")))

	series, err := testutil.GatherAndCount(m.Registry(), "shelter_assignment_writes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest("GET /calendar", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `shelter_http_requests_total{code="200",route="GET /calendar"} 1`)
	assert.Contains(t, string(body), "shelter_http_request_duration_seconds_bucket")
	assert.Contains(t, string(body), "go_goroutines")
}
