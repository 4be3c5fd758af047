package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"uberfix/internal/domain"
)

var httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// Metrics holds the Prometheus instruments for the API, worker and event
// handler processes.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	TransitionsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	GatewayBreakerOpen *prometheus.GaugeVec
	AttachmentsTotal   *prometheus.CounterVec
}

// InitMetrics creates and registers every instrument on reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uberfix_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "uberfix_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uberfix_stage_transitions_total",
			Help: "Stage transition attempts by source stage, target stage and outcome.",
		}, []string{"from", "to", "outcome"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uberfix_notifications_total",
			Help: "Customer notifications by channel and outcome.",
		}, []string{"channel", "outcome"}),
		GatewayBreakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uberfix_notify_gateway_breaker_state",
			Help: "Notification gateway circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"gateway"}),
		AttachmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uberfix_attachments_recorded_total",
			Help: "Attachment rows recorded by source.",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.TransitionsTotal,
		m.NotificationsTotal,
		m.GatewayBreakerOpen,
		m.AttachmentsTotal,
	)
	return m
}

func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// ObserveTransition records one mutator outcome. An empty from stage means the
// request could not be loaded.
func (m *Metrics) ObserveTransition(from, to domain.WorkflowStage, outcome string) {
	fromLabel := string(from)
	if fromLabel == "" {
		fromLabel = "unknown"
	}
	toLabel := string(to)
	if !domain.IsKnownStage(toLabel) {
		// Keep label cardinality bounded by the registry.
		toLabel = "unknown"
	}
	m.TransitionsTotal.WithLabelValues(fromLabel, toLabel, outcome).Inc()
}

func (m *Metrics) ObserveNotification(channel domain.NotificationChannel, status domain.NotificationStatus) {
	m.NotificationsTotal.WithLabelValues(string(channel), strings.ToLower(string(status))).Inc()
}

// SetBreakerState state: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBreakerState(gateway string, state float64) {
	m.GatewayBreakerOpen.WithLabelValues(gateway).Set(state)
}

func (m *Metrics) RecordAttachment(source string) {
	m.AttachmentsTotal.WithLabelValues(source).Inc()
}

// Middleware records request metrics under chi's route pattern rather than
// the raw path.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RecordHTTPRequest(r.Method, routePattern(r), status, time.Since(start))
	})
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer, logger *zap.Logger) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(logger),
	})
}

func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.TrimSuffix(rctx.RoutePattern(), "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// NewMetricsServer exposes /metrics and /healthz for processes that have no
// API router of their own.
func NewMetricsServer(port string, g prometheus.Gatherer, logger *zap.Logger) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", HandleHealth())
	r.Method(http.MethodGet, "/metrics", Handler(g, logger))
	return &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
