package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"

	ResultOK      = "ok"
	ResultUnknown = "unknown"
	ResultError   = "error"

	// UnknownTagLabel replaces peer-chosen tags so label cardinality stays bounded.
	UnknownTagLabel = "_unknown"
)

var (
	registerOnce sync.Once

	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kettle",
			Subsystem: "wire",
			Name:      "frames_total",
			Help:      "Frames read or written.",
		},
		[]string{"direction"},
	)
	frameBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kettle",
			Subsystem: "wire",
			Name:      "frame_bytes",
			Help:      "Frame payload size in bytes.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 8),
		},
		[]string{"direction"},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kettle",
			Subsystem: "dispatch",
			Name:      "messages_total",
			Help:      "Tagged messages handled, by direction, tag and result.",
		},
		[]string{"direction", "tag", "result"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kettle",
			Subsystem: "server",
			Name:      "sessions_active",
			Help:      "Connected adapter sessions.",
		},
	)
	sessionsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kettle",
			Subsystem: "server",
			Name:      "sessions_rejected_total",
			Help:      "Connections refused because the session limit was reached.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kettle",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kettle",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(frames, frameBytes, messages, sessionsActive, sessionsRejected, httpRequests, httpDuration)
	})
}

func RecordFrame(direction string, size int) {
	RegisterMetrics()
	frames.WithLabelValues(direction).Inc()
	frameBytes.WithLabelValues(direction).Observe(float64(size))
}

func RecordMessage(direction, tag, result string) {
	RegisterMetrics()
	if result == ResultUnknown {
		tag = UnknownTagLabel
	}
	messages.WithLabelValues(direction, tag, result).Inc()
}

func SessionOpened() {
	RegisterMetrics()
	sessionsActive.Inc()
}

func SessionClosed() {
	RegisterMetrics()
	sessionsActive.Dec()
}

func SessionRejected() {
	RegisterMetrics()
	sessionsRejected.Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
