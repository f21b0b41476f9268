package observability

import (
	"testing"
	"time"

	"github.com/danmuck/mupipe/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("mugate", "GET", "/health", 200, 12*time.Millisecond)
	RecordCall("find", OutcomeOK, 24*time.Millisecond)
	RecordFrame("index")
	RecordRestart()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := map[string]bool{}
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{
		"mupipe_http_requests_total",
		"mupipe_engine_calls_total",
		"mupipe_engine_frames_total",
		"mupipe_worker_restarts_total",
	} {
		if !seen[name] {
			t.Fatalf("metric %s not registered", name)
		}
	}
}
