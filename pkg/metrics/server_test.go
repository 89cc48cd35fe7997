package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMux_ServesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dittoreg_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	code, body := get(t, newMux(reg), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "dittoreg_test_total 3")
}

func TestMux_DisabledMetrics(t *testing.T) {
	code, body := get(t, newMux(nil), "/metrics")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "disabled")
}

func TestMux_Root(t *testing.T) {
	mux := newMux(nil)

	code, _ := get(t, mux, "/")
	assert.Equal(t, http.StatusOK, code)

	code, _ = get(t, mux, "/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestNewServer_DefaultPort(t *testing.T) {
	s := NewServer(ServerConfig{}, prometheus.NewRegistry())
	assert.Equal(t, 9090, s.Port())
	assert.Nil(t, s.Addr())
}
