package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/i18n"
	"github.com/mazungumzo-chat-go/pkg/logger"
)

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Allow(key string) bool
	Reset(key string)
}

// UserRateLimiter implements per-user rate limiting
type UserRateLimiter struct {
	enabled         bool
	limiters        map[string]*rate.Limiter
	mu              sync.RWMutex
	rpm             int
	burst           int
	logger          *logrus.Logger
	pseudo          *logger.Pseudonymizer
	cleanupInterval time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg *config.Config, log *logrus.Logger, pseudo *logger.Pseudonymizer) RateLimiter {
	if !cfg.RateLimit.Enabled {
		return &UserRateLimiter{enabled: false}
	}

	rl := &UserRateLimiter{
		enabled:         true,
		limiters:        make(map[string]*rate.Limiter),
		rpm:             cfg.RateLimit.RequestsPerMinute,
		burst:           cfg.RateLimit.Burst,
		logger:          log,
		pseudo:          pseudo,
		cleanupInterval: 1 * time.Hour,
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Allow checks if a user is allowed to make a request
func (r *UserRateLimiter) Allow(key string) bool {
	if !r.enabled {
		return true
	}

	limiter := r.getLimiter(key)
	allowed := limiter.Allow()

	if !allowed {
		r.logger.WithFields(logrus.Fields{
			"user": r.pseudo.Alias(key),
		}).Warn("Rate limit exceeded")
	}

	return allowed
}

// Reset resets the rate limiter for a user
func (r *UserRateLimiter) Reset(key string) {
	if !r.enabled {
		return
	}

	r.mu.Lock()
	delete(r.limiters, key)
	r.mu.Unlock()
}

// getLimiter gets or creates a rate limiter for a user
func (r *UserRateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	// Create new limiter
	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, exists := r.limiters[key]; exists {
		return limiter
	}

	// Rate per second = RPM / 60
	rps := float64(r.rpm) / 60.0
	limiter = rate.NewLimiter(rate.Limit(rps), r.burst)
	r.limiters[key] = limiter

	return limiter
}

// cleanup bounds the limiter map. Dropping the whole map gives affected
// users a fresh burst, which is acceptable once an hour.
func (r *UserRateLimiter) cleanup() {
	ticker := time.NewTicker(r.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		r.mu.Lock()
		if len(r.limiters) > 10000 {
			r.logger.Warn("Rate limiter map size exceeded threshold, clearing")
			r.limiters = make(map[string]*rate.Limiter)
		}
		r.mu.Unlock()
	}
}

// RateLimit applies per-user rate limiting to HTTP requests. Requests are
// keyed by the user_id route variable when present, otherwise by client IP.
type RateLimit struct {
	limiter   RateLimiter
	localizer *i18n.Localizer
	metrics   *Metrics
}

// NewRateLimit creates the HTTP rate limiting middleware
func NewRateLimit(limiter RateLimiter, localizer *i18n.Localizer, metrics *Metrics) *RateLimit {
	return &RateLimit{
		limiter:   limiter,
		localizer: localizer,
		metrics:   metrics,
	}
}

// Middleware rejects requests over the per-user limit with 429.
func (rl *RateLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.limiter.Allow(requestKey(r)) {
			rl.metrics.RecordRateLimitExceeded()

			detail := rl.localizer.Get(rl.localizer.DefaultLanguage(), i18n.MsgRateLimitExceeded, nil)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"detail": detail})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func requestKey(r *http.Request) string {
	if userID := mux.Vars(r)["user_id"]; userID != "" {
		return userID
	}
	return clientIP(r)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// maxMessageLength bounds web chat messages, in runes.
const maxMessageLength = 2000

// ErrEmptyMessage reports a blank chat message.
var ErrEmptyMessage = errors.New("message is empty")

// ErrMessageTooLong reports a chat message over the platform bound.
var ErrMessageTooLong = errors.New("message too long")

// SecurityMiddleware provides security checks
type SecurityMiddleware struct {
	logger *logrus.Logger
}

// NewSecurityMiddleware creates security middleware
func NewSecurityMiddleware(logger *logrus.Logger) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger: logger,
	}
}

// ValidateMessage performs input validation on chat messages
func (s *SecurityMiddleware) ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("message is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(text); n > maxMessageLength {
		return fmt.Errorf("%w: %d characters", ErrMessageTooLong, n)
	}
	return nil
}

// SanitizeReply strips control characters from AI responses before they are
// sent to clients. Newlines and tabs survive.
func (s *SecurityMiddleware) SanitizeReply(text string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}
