package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	r := NewPrometheusRecorder()

	r.ObserveStep("interactive", "needs_input", 120*time.Millisecond)
	r.ObserveStep("interactive", "needs_input", 80*time.Millisecond)
	r.ObserveStep("unattended", "done", time.Second)
	r.ObserveAutofill("saved")
	r.ObserveFatal("unattended", "input_required")
	r.ObserveFire("busy")
	r.ObserveUpdate("command")
	r.ObserveBrowserLaunch(3, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepsTotal.WithLabelValues("interactive", "needs_input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepsTotal.WithLabelValues("unattended", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.autofillsTotal.WithLabelValues("saved")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fatalsTotal.WithLabelValues("unattended", "input_required")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.firesTotal.WithLabelValues("busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.updatesTotal.WithLabelValues("command")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.launchAttempts))
}

func TestRecordersAreIndependent(t *testing.T) {
	a := NewPrometheusRecorder()
	b := NewPrometheusRecorder()
	a.ObserveFire("done")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.firesTotal.WithLabelValues("done")))
}

func TestHandlerServesMetricsAndHealth(t *testing.T) {
	r := NewPrometheusRecorder()
	r.ObserveFire("done")
	h := Handler(r.Registry())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `formpilot_scheduler_fires_total{outcome="done"} 1`))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNopRecorder(t *testing.T) {
	r := Nop()
	r.ObserveStep("interactive", "done", time.Second)
	r.ObserveFire("done")
}
