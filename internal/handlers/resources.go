package handlers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/i18n"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/mazungumzo-chat-go/internal/services/resources"
)

// ResourcesHandler serves the Kenya mental health resource directory.
type ResourcesHandler struct {
	resources resources.Service
	localizer *i18n.Localizer
	logger    *logrus.Logger
}

func NewResourcesHandler(resourceService resources.Service, localizer *i18n.Localizer, log *logrus.Logger) *ResourcesHandler {
	return &ResourcesHandler{
		resources: resourceService,
		localizer: localizer,
		logger:    log,
	}
}

type directoryResponse struct {
	Language string `json:"language"`
	Note     string `json:"note"`
	models.ResourceDirectory
}

type categoryResponse struct {
	Language  string            `json:"language"`
	Note      string            `json:"note"`
	Category  string            `json:"category"`
	Resources []models.Resource `json:"resources"`
}

// CrisisResources handles GET /api/v1/chat/crisis-resources. An optional
// category query parameter narrows the reply to one directory section.
func (h *ResourcesHandler) CrisisResources(w http.ResponseWriter, r *http.Request) {
	language := r.URL.Query().Get("language")
	if !h.localizer.Supported(language) {
		language = h.localizer.DefaultLanguage()
	}
	note := h.localizer.Get(language, i18n.MsgEmergencyNote, nil)

	if category := r.URL.Query().Get("category"); category != "" {
		entries, err := h.resources.Category(r.Context(), category)
		if err != nil {
			if errors.Is(err, resources.ErrUnknownCategory) {
				writeError(w, http.StatusBadRequest, "Unknown resource category")
				return
			}
			h.logger.WithError(err).Error("Error getting crisis resources")
			writeError(w, http.StatusInternalServerError, "Failed to retrieve resources")
			return
		}
		writeJSON(w, http.StatusOK, categoryResponse{
			Language:  language,
			Note:      note,
			Category:  category,
			Resources: entries,
		})
		return
	}

	directory, err := h.resources.Directory(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Error getting crisis resources")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve resources")
		return
	}

	writeJSON(w, http.StatusOK, directoryResponse{
		Language:          language,
		Note:              note,
		ResourceDirectory: *directory,
	})
}
