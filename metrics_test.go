package live

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.connect("ok")
		m.disconnect("remote")
		m.reconnectAttempt()
		m.keepalive()
		m.frame("text")
		m.audioChunk("in")
		m.toolCall("calculate")
	})
	assert.Nil(t, m.Registry())
}

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("")
	m.connect("ok")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionActive))
	m.disconnect("go_away")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionActive))
	m.toolCall("calculate")
	m.toolCall("calculate")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("calculate")))
	m.keepalive()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeepalivesTotal))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `gemini_live_disconnects_total{reason="go_away"} 1`)
}
