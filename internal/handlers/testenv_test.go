package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/crisis"
	"github.com/mazungumzo-chat-go/internal/i18n"
	"github.com/mazungumzo-chat-go/internal/middleware"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/mazungumzo-chat-go/internal/services/ai"
	"github.com/mazungumzo-chat-go/internal/services/cache"
	"github.com/mazungumzo-chat-go/internal/services/insights"
	"github.com/mazungumzo-chat-go/internal/services/resources"
	"github.com/mazungumzo-chat-go/internal/services/storage"
	"github.com/mazungumzo-chat-go/internal/services/whatsapp"
	"github.com/mazungumzo-chat-go/internal/session"
	"github.com/mazungumzo-chat-go/pkg/logger"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Name = "Mazungumzo AI"
	cfg.App.Description = "Mental health support chat for Kenya"
	cfg.App.Version = "2.0.0"
	cfg.App.Environment = "test"
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.AI.MaxRetries = 1
	cfg.AI.MaxTokens = 500
	cfg.AI.HistoryWindow = 10
	cfg.AI.RequestTimeout = time.Second
	cfg.Crisis.ConfidenceThreshold = 0.5
	cfg.Session.MaxHistory = 50
	cfg.Session.MaxSessions = 10000
	cfg.Session.CleanupInterval = time.Hour
	cfg.Session.InactivityTTL = 24 * time.Hour
	cfg.Session.PersistedTTL = 7 * 24 * time.Hour
	cfg.Storage.Type = "memory"
	cfg.Storage.Memory.DefaultExpiration = 24 * time.Hour
	cfg.Cache.Enabled = true
	cfg.Cache.TTL = time.Hour
	cfg.Cache.MaxSize = 100
	cfg.RateLimit.Enabled = false
	cfg.WhatsApp.VerifyToken = "test-verify-token"
	cfg.Logging.PseudonymKey = "test-key"
	cfg.I18n.DefaultLanguage = models.LangEnglish
	cfg.I18n.Languages = []string{models.LangEnglish, models.LangSwahili}
	return cfg
}

// stubAI replaces the provider chain with a fixed reply and records what the
// pipeline asked for.
type stubAI struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	lastReq ai.Request
	health  map[string]ai.ProviderHealth
}

func (s *stubAI) GenerateResponse(ctx context.Context, req ai.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubAI) HealthCheck(ctx context.Context) map[string]ai.ProviderHealth {
	return s.health
}

func (s *stubAI) Available() bool {
	return len(s.health) > 0
}

func (s *stubAI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubAI) last() ai.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

type sentMessage struct {
	to       string
	body     string
	isCrisis bool
}

// stubSender records outbound deliveries instead of calling Twilio. Token
// and signature verification fall through to the real implementation.
type stubSender struct {
	whatsapp.Service
	enabled bool

	mu       sync.Mutex
	messages []sentMessage
	crisisTo []string
	sms      []sentMessage
	sendErr  error
}

func (s *stubSender) Enabled() bool {
	return s.enabled
}

func (s *stubSender) SendMessage(ctx context.Context, toNumber, message string, isCrisis bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sentMessage{to: toNumber, body: message, isCrisis: isCrisis})
	return s.sendErr
}

func (s *stubSender) SendCrisisResources(ctx context.Context, toNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crisisTo = append(s.crisisTo, toNumber)
	return s.sendErr
}

func (s *stubSender) SendSMS(ctx context.Context, toNumber, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sms = append(s.sms, sentMessage{to: toNumber, body: message})
	return s.sendErr
}

func (s *stubSender) sent() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage{}, s.messages...)
}

func (s *stubSender) crisisSent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.crisisTo...)
}

// testEnv wires the full router with real services on memory storage. Only
// the AI provider chain and the Twilio client are stubbed.
type testEnv struct {
	cfg      *config.Config
	router   *mux.Router
	pipeline *Pipeline
	sessions *session.Manager
	store    *storage.Manager
	ai       *stubAI
	sender   *stubSender
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	log := testLogger()
	pseudo := logger.NewPseudonymizer(cfg.Logging.PseudonymKey)

	store, err := storage.NewManager(cfg, log)
	require.NoError(t, err)
	sessions := session.NewManager(cfg, store, log, pseudo)

	aiStub := &stubAI{reply: "I hear you. Tell me more about how you feel."}
	sender := &stubSender{Service: whatsapp.NewService(&cfg.WhatsApp, log)}

	// Midday clock keeps the scorer's late-night addend out of assertions.
	scorer := crisis.NewScorer(cfg.Crisis.ConfidenceThreshold, log).WithClock(func() time.Time {
		return time.Date(2025, 6, 12, 12, 0, 0, 0, time.UTC)
	})
	cacheService := cache.NewCache(cfg, log)
	analyzer := insights.NewAnalyzer(log)
	resourceService := resources.NewService(store, log)

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	require.NoError(t, err)

	metrics := middleware.NewMetrics()
	limiter := middleware.NewRateLimiter(cfg, log, pseudo)
	rateLimit := middleware.NewRateLimit(limiter, localizer, metrics)
	security := middleware.NewSecurityMiddleware(log)
	cors := middleware.NewCORS(cfg.Server.CORSOrigins)

	pipeline := NewPipeline(sessions, aiStub, scorer, cacheService, analyzer, store, security, metrics, pseudo, log)

	router := NewRouter(
		NewChatHandler(pipeline, sessions, analyzer, store, security, localizer, metrics, pseudo, log),
		NewSessionHandler(sessions, scorer, localizer, pseudo, log),
		NewResourcesHandler(resourceService, localizer, log),
		NewStatsHandler(store, resourceService, log),
		NewHealthHandler(cfg, aiStub, sessions, store, log),
		NewWebhookHandler(cfg, pipeline, sender, analyzer, metrics, pseudo, log),
		cors,
		rateLimit,
		metrics,
	)

	return &testEnv{
		cfg:      cfg,
		router:   router,
		pipeline: pipeline,
		sessions: sessions,
		store:    store,
		ai:       aiStub,
		sender:   sender,
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, httptest.NewRequest(http.MethodGet, target, nil))
}

func (e *testEnv) postJSON(t *testing.T, target string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *testEnv) postForm(t *testing.T, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

// chat runs one message through the chat endpoint and returns the decoded
// reply. Used to seed sessions for tests of the read endpoints.
func (e *testEnv) chat(t *testing.T, userID, message string) map[string]interface{} {
	t.Helper()
	rec := e.postJSON(t, "/api/v1/chat", map[string]string{"user_id": userID, "message": message})
	require.Equal(t, http.StatusOK, rec.Code)
	return decodeJSON(t, rec)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}
