package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK             = "ok"
	OutcomeRemoteError    = "remote_error"
	OutcomeProtocolError  = "protocol_error"
	OutcomeIncomplete     = "incomplete"
	OutcomeWorkerDied     = "worker_died"
	OutcomeCanceled       = "canceled"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeFailed         = "failed"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mupipe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mupipe",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	engineCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mupipe",
			Subsystem: "engine",
			Name:      "calls_total",
			Help:      "Worker command calls by outcome.",
		},
		[]string{"command", "outcome"},
	)
	engineCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mupipe",
			Subsystem: "engine",
			Name:      "call_duration_seconds",
			Help:      "Worker command call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	engineFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mupipe",
			Subsystem: "engine",
			Name:      "frames_total",
			Help:      "Response frames decoded per command.",
		},
		[]string{"command"},
	)
	workerRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mupipe",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Worker relaunches after an unexpected exit.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			engineCalls,
			engineCallDuration,
			engineFrames,
			workerRestarts,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordCall(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	engineCalls.WithLabelValues(command, outcome).Inc()
	engineCallDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordFrame(command string) {
	RegisterMetrics()
	engineFrames.WithLabelValues(command).Inc()
}

func RecordRestart() {
	RegisterMetrics()
	workerRestarts.Inc()
}
