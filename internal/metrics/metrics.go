package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts inbound engine requests by command and outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painter_bridge_requests_total",
			Help: "Total number of engine requests dispatched",
		},
		[]string{"command", "status"},
	)

	// RequestDuration tracks handler latency
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "painter_bridge_request_duration_seconds",
			Help:    "Handler duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// MessagesDropped counts frames that were logged and not answered
	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painter_bridge_messages_dropped_total",
			Help: "Total number of inbound frames dropped without a response",
		},
		[]string{"reason"},
	)

	// CommandsSent counts host -> engine pushes
	CommandsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painter_bridge_commands_sent_total",
			Help: "Total number of host commands pushed to the engine",
		},
		[]string{"method", "status"},
	)

	// EngineConnected is 1 while the engine holds the connection
	EngineConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "painter_bridge_engine_connected",
			Help: "Whether the engine is connected",
		},
	)

	// ConnectionsRefused counts accept attempts refused by the single-client policy
	ConnectionsRefused = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "painter_bridge_connections_refused_total",
			Help: "Total number of connection attempts refused while a client was connected",
		},
	)

	// EngineLaunches counts engine process launches by trigger
	EngineLaunches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painter_bridge_engine_launches_total",
			Help: "Total number of engine process launches",
		},
		[]string{"reason", "status"},
	)

	// EngineState exposes the supervisor state as a labelled gauge
	EngineState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "painter_bridge_engine_state",
			Help: "Current engine supervisor state (1 for the active state)",
		},
		[]string{"state"},
	)

	// StaleResources tracks the result of the last staleness sweep
	StaleResources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "painter_bridge_stale_resources",
			Help: "Number of imported resources found out of date by the last sweep",
		},
	)

	// HTTPRequestsTotal counts side endpoint requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "painter_bridge_http_requests_total",
			Help: "Total number of HTTP requests on the side endpoints",
		},
		[]string{"method", "path", "status"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher for SSE support
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware creates an HTTP middleware that records metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		HTTPRequestsTotal.WithLabelValues(r.Method, normalizePath(r.URL.Path), strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

// normalizePath normalizes URL paths to avoid high cardinality
func normalizePath(path string) string {
	switch path {
	case "/health", "/ready", "/mcp", "/metrics", "/host/menu":
		return path
	default:
		if len(path) > 5 && path[:5] == "/mcp/" {
			return "/mcp"
		}
		return "other"
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records a dispatched request
func RecordRequest(command, status string, elapsed time.Duration) {
	RequestsTotal.WithLabelValues(command, status).Inc()
	RequestDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// RecordDrop records a frame dropped without a response
func RecordDrop(reason string) {
	MessagesDropped.WithLabelValues(reason).Inc()
}

// RecordCommandSent records a host push
func RecordCommandSent(method, status string) {
	CommandsSent.WithLabelValues(method, status).Inc()
}

// SetEngineConnected sets the connection gauge
func SetEngineConnected(connected bool) {
	if connected {
		EngineConnected.Set(1)
	} else {
		EngineConnected.Set(0)
	}
}

// RecordRefusedConnection records a refused accept
func RecordRefusedConnection() {
	ConnectionsRefused.Inc()
}

// RecordLaunch records an engine launch attempt
func RecordLaunch(reason, status string) {
	EngineLaunches.WithLabelValues(reason, status).Inc()
}

// SetEngineState marks state as the active supervisor state
func SetEngineState(state string, all []string) {
	for _, s := range all {
		if s == state {
			EngineState.WithLabelValues(s).Set(1)
		} else {
			EngineState.WithLabelValues(s).Set(0)
		}
	}
}

// SetStaleResources sets the stale resource gauge
func SetStaleResources(count int) {
	StaleResources.Set(float64(count))
}
