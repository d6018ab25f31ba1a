package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mazungumzo-chat-go/internal/middleware"
)

// NewRouter wires every endpoint with its middleware chain. Health and
// webhook routes stay off the per-user rate limiter: probes must never be
// throttled, and webhook traffic arrives from shared Twilio egress IPs.
func NewRouter(
	chat *ChatHandler,
	sessions *SessionHandler,
	resources *ResourcesHandler,
	stats *StatsHandler,
	health *HealthHandler,
	webhooks *WebhookHandler,
	cors *middleware.CORS,
	rateLimit *middleware.RateLimit,
	metrics *middleware.Metrics,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(cors.Middleware)
	router.Use(metrics.Instrument)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	// Preflight requests need a matching route for the middleware chain to
	// run; the CORS middleware answers them before this handler is reached.
	router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	router.HandleFunc("/", health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/detailed", health.Detailed).Methods(http.MethodGet)
	router.HandleFunc("/health/readiness", health.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/health/liveness", health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/version", health.Version).Methods(http.MethodGet)

	// Bare aliases for orchestrators with fixed probe paths.
	router.HandleFunc("/readiness", health.Readiness).Methods(http.MethodGet)
	router.HandleFunc("/liveness", health.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/version", health.Version).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(rateLimit.Middleware)
	api.HandleFunc("/chat", chat.Chat).Methods(http.MethodPost)
	api.HandleFunc("/chat/session/{user_id}", sessions.Info).Methods(http.MethodGet)
	api.HandleFunc("/chat/session/{user_id}", sessions.Clear).Methods(http.MethodDelete)
	api.HandleFunc("/chat/session/{user_id}/language", sessions.UpdateLanguage).Methods(http.MethodPost)
	api.HandleFunc("/chat/history/{user_id}", sessions.History).Methods(http.MethodGet)
	api.HandleFunc("/chat/crisis-resources", resources.CrisisResources).Methods(http.MethodGet)
	api.HandleFunc("/chat/feedback", chat.SubmitFeedback).Methods(http.MethodPost)
	api.HandleFunc("/chat/insights/{user_id}", chat.Insights).Methods(http.MethodGet)
	api.HandleFunc("/stats", stats.Stats).Methods(http.MethodGet)

	webhook := router.PathPrefix("/webhook").Subrouter()
	webhook.HandleFunc("/whatsapp", webhooks.VerifyWhatsApp).Methods(http.MethodGet)
	webhook.HandleFunc("/whatsapp", webhooks.HandleWhatsApp).Methods(http.MethodPost)
	webhook.HandleFunc("/twilio", webhooks.HandleTwilioSMS).Methods(http.MethodPost)

	return router
}
