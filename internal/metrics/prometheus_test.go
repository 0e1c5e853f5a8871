// ABOUTME: Tests for Prometheus metrics
// ABOUTME: Verifies the singleton registry and the metrics handler
package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matryer/is"
	dto "github.com/prometheus/client_model/go"
)

func TestGetReturnsSameInstance(t *testing.T) {
	is := is.New(t)
	is.True(Get() == Get())
}

func TestCountersIncrement(t *testing.T) {
	is := is.New(t)
	m := Get()

	before := counterValue(t, m.SilenceBlocks)
	m.SilenceBlocks.Add(3)
	is.Equal(counterValue(t, m.SilenceBlocks), before+3)

	m.CommandsSent.WithLabelValues("SEEK").Inc()
	is.True(counterValue(t, m.CommandsSent.WithLabelValues("SEEK")) >= 1)
}

func counterValue(t *testing.T, c interface{ Write(*dto.Metric) error }) float64 {
	t.Helper()
	var out dto.Metric
	if err := c.Write(&out); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return out.GetCounter().GetValue()
}

func TestHandlerExposesMetrics(t *testing.T) {
	is := is.New(t)
	Get().PacketsReceived.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	is.NoErr(err)
	is.True(strings.Contains(string(body), "relay_packets_received_total"))
}
