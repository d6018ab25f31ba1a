package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/crisis"
	"github.com/mazungumzo-chat-go/internal/i18n"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/mazungumzo-chat-go/internal/session"
	"github.com/mazungumzo-chat-go/pkg/logger"
)

// SessionHandler serves session inspection and lifecycle endpoints.
type SessionHandler struct {
	sessions  *session.Manager
	scorer    *crisis.Scorer
	localizer *i18n.Localizer
	pseudo    *logger.Pseudonymizer
	logger    *logrus.Logger
}

func NewSessionHandler(sessions *session.Manager, scorer *crisis.Scorer, localizer *i18n.Localizer, pseudo *logger.Pseudonymizer, log *logrus.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:  sessions,
		scorer:    scorer,
		localizer: localizer,
		pseudo:    pseudo,
		logger:    log,
	}
}

// historyEntry is the privacy-reduced view of a stored message. Metadata is
// deliberately excluded.
type historyEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Info handles GET /api/v1/chat/session/{user_id}.
func (h *SessionHandler) Info(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	sess, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		h.sessionError(w, err, "Failed to retrieve session information")
		return
	}
	summary, err := h.sessions.Summary(r.Context(), userID)
	if err != nil {
		h.sessionError(w, err, "Failed to retrieve session information")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":      summary,
		"risk_profile": crisis.ProfileRisk(sess, time.Now),
		"trend":        h.scorer.AnalyzeTrend(sess),
		"status":       "active",
	})
}

// UpdateLanguage handles POST /api/v1/chat/session/{user_id}/language. The
// language arrives as a query parameter or a JSON body field.
func (h *SessionHandler) UpdateLanguage(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	language := r.URL.Query().Get("language")
	if language == "" {
		var body struct {
			Language string `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			language = body.Language
		}
	}

	if language != models.LangEnglish && language != models.LangSwahili {
		writeError(w, http.StatusBadRequest, h.localizer.Get(h.localizer.DefaultLanguage(), i18n.MsgUnsupportedLanguage, nil))
		return
	}

	sess, err := h.sessions.UpdateLanguage(r.Context(), userID, language)
	if err != nil {
		h.sessionError(w, err, "Failed to update language preference")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  h.localizer.Get(language, i18n.MsgLanguageUpdated, map[string]interface{}{"Language": language}),
		"user_id":  userID,
		"language": sess.LanguagePreference,
	})
}

// History handles GET /api/v1/chat/history/{user_id}.
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := h.sessions.History(r.Context(), userID, limit)
	if err != nil {
		h.sessionError(w, err, "Failed to retrieve chat history")
		return
	}

	history := make([]historyEntry, 0, len(messages))
	for _, msg := range messages {
		history = append(history, historyEntry{
			Role:      msg.Role,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":        userID,
		"history":        history,
		"total_messages": len(history),
	})
}

// Clear handles DELETE /api/v1/chat/session/{user_id}. Deleting an absent
// session still succeeds.
func (h *SessionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	if err := h.sessions.Delete(r.Context(), userID); err != nil {
		h.logger.WithError(err).Error("Error clearing session")
		writeError(w, http.StatusInternalServerError, "Failed to clear session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": h.localizer.Get(h.localizer.DefaultLanguage(), i18n.MsgSessionCleared, map[string]interface{}{"UserID": userID}),
		"user_id": userID,
		"status":  "cleared",
	})
}

func (h *SessionHandler) sessionError(w http.ResponseWriter, err error, detail string) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, h.localizer.Get(h.localizer.DefaultLanguage(), i18n.MsgSessionNotFound, nil))
		return
	}
	h.logger.WithError(err).Error(detail)
	writeError(w, http.StatusInternalServerError, detail)
}
