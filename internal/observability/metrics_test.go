package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("museum_chat")
	m.ObserveEvent("text")
	m.ObserveEvent("text")
	m.ObserveRetry("throttled")
	m.ObserveOutcome("complete", 1200*time.Millisecond)
	m.ObservePersistFailure()

	require.Equal(t, 2.0, testutil.ToFloat64(m.StreamEvents.WithLabelValues("text")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.BackendRetries.WithLabelValues("throttled")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.StreamOutcomes.WithLabelValues("complete")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		NewMetrics("a")
		NewMetrics("a")
	})
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveEvent("text")
		m.ObserveRetry("throttled")
		m.ObserveOutcome("error", time.Second)
		m.ObservePersistFailure()
	})
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("museum_chat")
	m.ObserveEvent("done")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `museum_chat_stream_events_total{event="done"} 1`)
}
