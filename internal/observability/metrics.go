package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uartframe",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total status API requests.",
		},
		[]string{"link", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uartframe",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Status API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"link", "method", "path", "status"},
	)
	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uartframe",
			Subsystem: "link",
			Name:      "frames_received_total",
			Help:      "Frames committed by the receive state machine and consumed by the foreground.",
		},
		[]string{"link", "variant"},
	)
	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uartframe",
			Subsystem: "link",
			Name:      "frames_sent_total",
			Help:      "Frames and response lines written to the tx half.",
		},
		[]string{"link", "variant", "success"},
	)
	framingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uartframe",
			Subsystem: "link",
			Name:      "framing_errors_total",
			Help:      "Framing errors recorded in the receive context.",
		},
		[]string{"link", "variant", "kind"},
	)
	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uartframe",
			Subsystem: "link",
			Name:      "bytes_received_total",
			Help:      "Bytes read from the rx half.",
		},
		[]string{"link"},
	)
	echoFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uartframe",
			Subsystem: "link",
			Name:      "echo_flushes_total",
			Help:      "Echo buffer flushes by trigger.",
		},
		[]string{"link", "reason"},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uartframe",
			Subsystem: "link",
			Name:      "reconnects_total",
			Help:      "Serial port reopen attempts.",
		},
		[]string{"link", "success"},
	)
	scanOverruns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uartframe",
			Subsystem: "scan",
			Name:      "overruns_total",
			Help:      "Circular scan buffer overruns seen by the reader.",
		},
		[]string{"scanner"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			framesReceived,
			framesSent,
			framingErrors,
			bytesReceived,
			echoFlushes,
			reconnects,
			scanOverruns,
		)
	})
}

func RecordHTTPRequest(link, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(link, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(link, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrameReceived(link, variant string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(link, variant).Inc()
}

func RecordFrameSent(link, variant string, success bool) {
	RegisterMetrics()
	framesSent.WithLabelValues(link, variant, strconv.FormatBool(success)).Inc()
}

func RecordFramingError(link, variant, kind string) {
	RegisterMetrics()
	framingErrors.WithLabelValues(link, variant, kind).Inc()
}

func AddBytesReceived(link string, n int) {
	if n <= 0 {
		return
	}
	RegisterMetrics()
	bytesReceived.WithLabelValues(link).Add(float64(n))
}

func RecordEchoFlush(link, reason string) {
	RegisterMetrics()
	echoFlushes.WithLabelValues(link, reason).Inc()
}

func RecordReconnect(link string, success bool) {
	RegisterMetrics()
	reconnects.WithLabelValues(link, strconv.FormatBool(success)).Inc()
}

func RecordScanOverrun(scanner string) {
	RegisterMetrics()
	scanOverruns.WithLabelValues(scanner).Inc()
}
