package handlers

import (
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/services/ai"
	"github.com/mazungumzo-chat-go/internal/services/storage"
	"github.com/mazungumzo-chat-go/internal/session"
)

// Detailed health results are cached so probe storms cannot hammer the
// provider chain.
const healthCacheTTL = 60 * time.Second

// HealthHandler serves the liveness, readiness and diagnostics endpoints.
type HealthHandler struct {
	cfg      *config.Config
	ai       ai.Service
	sessions *session.Manager
	storage  *storage.Manager
	logger   *logrus.Logger

	startTime time.Time

	mu       sync.Mutex
	cached   map[string]interface{}
	cachedAt time.Time
}

func NewHealthHandler(cfg *config.Config, aiService ai.Service, sessions *session.Manager, store *storage.Manager, log *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		cfg:       cfg,
		ai:        aiService,
		sessions:  sessions,
		storage:   store,
		logger:    log,
		startTime: time.Now(),
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"app":         h.cfg.App.Name,
		"status":      "healthy",
		"description": h.cfg.App.Description,
		"version":     h.cfg.App.Version,
		"timestamp":   time.Now().UTC(),
		"environment": h.cfg.App.Environment,
	})
}

// Detailed handles GET /health/detailed.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.cached != nil && time.Since(h.cachedAt) < healthCacheTTL {
		data := h.cached
		h.mu.Unlock()
		writeJSON(w, http.StatusOK, data)
		return
	}
	h.mu.Unlock()

	services := map[string]interface{}{
		"ai":       h.checkAI(r),
		"sessions": h.checkSessions(r),
		"database": h.checkDatabase(r),
	}

	// Worst service status wins.
	overall := "healthy"
	for _, svc := range services {
		status, _ := svc.(map[string]interface{})["status"].(string)
		if status == "unhealthy" {
			overall = "unhealthy"
			break
		}
		if status == "degraded" {
			overall = "degraded"
		}
	}

	data := map[string]interface{}{
		"status":      overall,
		"timestamp":   time.Now().UTC(),
		"version":     h.cfg.App.Version,
		"environment": h.cfg.App.Environment,
		"services":    services,
		"system":      systemMetrics(),
		"uptime":      h.uptime(),
	}

	h.mu.Lock()
	h.cached = data
	h.cachedAt = time.Now()
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, data)
}

// Readiness handles GET /health/readiness. Degraded services still count as
// ready; only an unhealthy one blocks traffic.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	for _, svc := range []map[string]interface{}{h.checkAI(r), h.checkSessions(r), h.checkDatabase(r)} {
		if status, _ := svc["status"].(string); status == "unhealthy" {
			writeError(w, http.StatusServiceUnavailable, "Service not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
	})
}

// Liveness handles GET /health/liveness.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"pid":       os.Getpid(),
	})
}

// Version handles GET /health/version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":     h.cfg.App.Version,
		"environment": h.cfg.App.Environment,
		"go_version":  runtime.Version(),
		"timestamp":   time.Now().UTC(),
	})
}

func (h *HealthHandler) checkAI(r *http.Request) map[string]interface{} {
	check := map[string]interface{}{
		"last_check": time.Now().UTC(),
	}

	probes := h.ai.HealthCheck(r.Context())
	if len(probes) == 0 {
		check["status"] = "degraded"
		check["detail"] = "no providers configured, fallback replies only"
		return check
	}

	available := 0
	for _, probe := range probes {
		if probe.Available {
			available++
		}
	}
	check["providers"] = probes
	check["providers_available"] = available
	if available == 0 {
		check["status"] = "unhealthy"
	} else {
		check["status"] = "healthy"
	}
	return check
}

func (h *HealthHandler) checkSessions(r *http.Request) map[string]interface{} {
	now := time.Now().UTC()
	stats, err := h.sessions.PlatformStats(r.Context())
	if err != nil {
		h.logger.WithError(err).Warn("Session health check failed")
		return map[string]interface{}{
			"status":     "unhealthy",
			"error":      err.Error(),
			"last_check": now,
		}
	}
	return map[string]interface{}{
		"status":          "healthy",
		"active_sessions": stats.ActiveSessionsLastHour,
		"total_sessions":  stats.TotalSessions,
		"last_check":      now,
	}
}

func (h *HealthHandler) checkDatabase(r *http.Request) map[string]interface{} {
	now := time.Now().UTC()
	check := map[string]interface{}{
		"type":       h.storage.Backend(),
		"last_check": now,
	}
	if err := h.storage.Ping(r.Context()); err != nil {
		h.logger.WithError(err).Warn("Storage health check failed")
		check["status"] = "unhealthy"
		check["error"] = err.Error()
		return check
	}
	check["status"] = "healthy"
	return check
}

func systemMetrics() map[string]interface{} {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return map[string]interface{}{
		"goroutines": runtime.NumGoroutine(),
		"cpu": map[string]interface{}{
			"count": runtime.NumCPU(),
		},
		"memory": map[string]interface{}{
			"alloc_bytes":       mem.Alloc,
			"total_alloc_bytes": mem.TotalAlloc,
			"sys_bytes":         mem.Sys,
			"heap_objects":      mem.HeapObjects,
			"gc_runs":           mem.NumGC,
		},
	}
}

func (h *HealthHandler) uptime() map[string]interface{} {
	elapsed := time.Since(h.startTime)
	return map[string]interface{}{
		"start_time":     h.startTime.UTC(),
		"uptime_seconds": int(elapsed.Seconds()),
		"uptime_human":   elapsed.Truncate(time.Second).String(),
	}
}
