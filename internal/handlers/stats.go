package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/services/resources"
	"github.com/mazungumzo-chat-go/internal/services/storage"
)

// StatsHandler serves aggregate usage statistics.
type StatsHandler struct {
	storage   *storage.Manager
	resources resources.Service
	logger    *logrus.Logger
}

func NewStatsHandler(store *storage.Manager, resourceService resources.Service, log *logrus.Logger) *StatsHandler {
	return &StatsHandler{
		storage:   store,
		resources: resourceService,
		logger:    log,
	}
}

// Stats handles GET /api/v1/stats. The reply pairs the usage counters with
// the crisis hotlines so a dashboard can render both in one call.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.storage.GetUsageStats(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Stats error")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve statistics")
		return
	}

	contacts, err := h.resources.CrisisContacts(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Stats error")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     stats,
		"resources": contacts,
	})
}
