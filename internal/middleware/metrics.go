package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Message metrics
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazungumzo_messages_received_total",
		Help: "Total number of messages received",
	}, []string{"platform"})

	messagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazungumzo_messages_processed_total",
		Help: "Total number of messages processed",
	}, []string{"status"})

	// Crisis metrics. Labels carry the severity band, never user identity.
	crisisDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazungumzo_crisis_detections_total",
		Help: "Total number of crisis detections",
	}, []string{"level"})

	// AI metrics
	aiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mazungumzo_ai_request_duration_seconds",
		Help:    "Duration of AI completion requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"status"})

	aiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazungumzo_ai_requests_total",
		Help: "Total number of AI completion requests",
	}, []string{"status"})

	// Cache metrics
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mazungumzo_cache_hits_total",
		Help: "Total number of reply cache hits",
	})

	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mazungumzo_cache_misses_total",
		Help: "Total number of reply cache misses",
	})

	// Rate limit metrics
	rateLimitExceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mazungumzo_rate_limit_exceeded_total",
		Help: "Total number of rate limit exceeded events",
	})

	// Feedback metrics
	feedbackRatings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazungumzo_feedback_ratings_total",
		Help: "Total number of feedback submissions by rating",
	}, []string{"rating"})

	// Webhook metrics
	webhookFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazungumzo_webhook_failures_total",
		Help: "Total number of rejected webhook deliveries",
	}, []string{"reason"})

	// Active sessions gauge
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mazungumzo_active_sessions",
		Help: "Number of live chat sessions",
	})

	// HTTP metrics. The path label holds the route template, so user ids in
	// the URL never reach the metric.
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mazungumzo_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mazungumzo_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// Metrics provides methods to record metrics
type Metrics struct{}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordMessageReceived records a received message
func (m *Metrics) RecordMessageReceived(platform string) {
	messagesReceived.WithLabelValues(platform).Inc()
}

// RecordMessageProcessed records a processed message
func (m *Metrics) RecordMessageProcessed(status string) {
	messagesProcessed.WithLabelValues(status).Inc()
}

// RecordCrisisDetection records a crisis detection at a severity level
func (m *Metrics) RecordCrisisDetection(level string) {
	crisisDetections.WithLabelValues(level).Inc()
}

// RecordAIRequest records an AI completion request
func (m *Metrics) RecordAIRequest(status string, duration time.Duration) {
	aiRequestDuration.WithLabelValues(status).Observe(duration.Seconds())
	aiRequestsTotal.WithLabelValues(status).Inc()
}

// RecordCacheHit records a reply cache hit
func (m *Metrics) RecordCacheHit() {
	cacheHits.Inc()
}

// RecordCacheMiss records a reply cache miss
func (m *Metrics) RecordCacheMiss() {
	cacheMisses.Inc()
}

// RecordRateLimitExceeded records a rate limit exceeded event
func (m *Metrics) RecordRateLimitExceeded() {
	rateLimitExceeded.Inc()
}

// RecordFeedbackRating records a feedback submission
func (m *Metrics) RecordFeedbackRating(rating int) {
	feedbackRatings.WithLabelValues(strconv.Itoa(rating)).Inc()
}

// RecordWebhookFailure records a rejected webhook delivery
func (m *Metrics) RecordWebhookFailure(reason string) {
	webhookFailures.WithLabelValues(reason).Inc()
}

// SetActiveSessions sets the number of live sessions
func (m *Metrics) SetActiveSessions(count float64) {
	activeSessions.Set(count)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument wraps a handler with request duration and count metrics.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				path = template
			}
		}

		status := strconv.Itoa(recorder.status)
		httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

// StartMetricsServer starts the metrics HTTP server
func StartMetricsServer(port int, path string) error {
	router := mux.NewRouter()
	router.Handle(path, promhttp.Handler())

	// Health check endpoint
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
