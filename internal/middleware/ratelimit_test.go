package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/i18n"
	"github.com/mazungumzo-chat-go/pkg/logger"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testLimiter(t *testing.T, burst int) RateLimiter {
	t.Helper()
	cfg := &config.Config{}
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMinute = 1
	cfg.RateLimit.Burst = burst
	return NewRateLimiter(cfg, testLogger(), logger.NewPseudonymizer("test-key"))
}

func testLocalizer(t *testing.T) *i18n.Localizer {
	t.Helper()
	localizer, err := i18n.NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "en",
		Languages:       []string{"en", "sw"},
	})
	require.NoError(t, err)
	return localizer
}

func TestRateLimiterExhaustsBurst(t *testing.T) {
	limiter := testLimiter(t, 2)

	assert.True(t, limiter.Allow("user-1"))
	assert.True(t, limiter.Allow("user-1"))
	assert.False(t, limiter.Allow("user-1"), "third request within the window must be rejected")

	// Other users are unaffected.
	assert.True(t, limiter.Allow("user-2"))
}

func TestRateLimiterReset(t *testing.T) {
	limiter := testLimiter(t, 1)

	assert.True(t, limiter.Allow("user-1"))
	assert.False(t, limiter.Allow("user-1"))

	limiter.Reset("user-1")
	assert.True(t, limiter.Allow("user-1"))
}

func TestRateLimiterDisabled(t *testing.T) {
	cfg := &config.Config{}
	cfg.RateLimit.Enabled = false
	limiter := NewRateLimiter(cfg, testLogger(), logger.NewPseudonymizer("test-key"))

	for i := 0; i < 100; i++ {
		assert.True(t, limiter.Allow("user-1"))
	}
}

func TestRateLimitMiddlewareRejectsWith429(t *testing.T) {
	rl := NewRateLimit(testLimiter(t, 1), testLocalizer(t), NewMetrics())

	router := mux.NewRouter()
	router.Use(rl.Middleware)
	router.HandleFunc("/api/v1/chat/session/{user_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/chat/session/user-1", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/chat/session/user-1", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Contains(t, second.Body.String(), "sending messages too fast")

	// A different user keeps their own budget.
	other := httptest.NewRecorder()
	router.ServeHTTP(other, httptest.NewRequest(http.MethodGet, "/api/v1/chat/session/user-2", nil))
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestRateLimitMiddlewareFallsBackToClientIP(t *testing.T) {
	rl := NewRateLimit(testLimiter(t, 1), testLocalizer(t), NewMetrics())

	router := mux.NewRouter()
	router.Use(rl.Middleware)
	router.HandleFunc("/api/v1/chat", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodPost)

	request := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{}"))
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, request("10.0.0.1:40000"))
	assert.Equal(t, http.StatusTooManyRequests, request("10.0.0.1:40001"), "same host, different port shares the budget")
	assert.Equal(t, http.StatusOK, request("10.0.0.2:40000"))
}

func TestRequestKeyPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	assert.Equal(t, "203.0.113.5", requestKey(req))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "10.0.0.1", requestKey(req))
}

func TestValidateMessage(t *testing.T) {
	security := NewSecurityMiddleware(testLogger())

	assert.NoError(t, security.ValidateMessage("I feel stressed today"))

	assert.ErrorIs(t, security.ValidateMessage(""), ErrEmptyMessage)
	assert.ErrorIs(t, security.ValidateMessage("   \n\t "), ErrEmptyMessage)

	long := strings.Repeat("a", maxMessageLength+1)
	assert.ErrorIs(t, security.ValidateMessage(long), ErrMessageTooLong)

	// Exactly at the bound is fine.
	assert.NoError(t, security.ValidateMessage(strings.Repeat("a", maxMessageLength)))

	err := security.ValidateMessage("broken \xff\xfe bytes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UTF-8")
}

func TestValidateMessageCountsRunesNotBytes(t *testing.T) {
	security := NewSecurityMiddleware(testLogger())

	// 1500 runes of a multibyte character exceed the bound in bytes only.
	assert.NoError(t, security.ValidateMessage(strings.Repeat("ร", 1500)))
}

func TestSanitizeReply(t *testing.T) {
	security := NewSecurityMiddleware(testLogger())

	assert.Equal(t, "hello there", security.SanitizeReply("hello\x00 there\x1b"))
	assert.Equal(t, "line one\nline two\tend", security.SanitizeReply("line one\nline two\tend"))
	assert.Equal(t, "Pole sana 💙", security.SanitizeReply("Pole sana 💙"))
}
