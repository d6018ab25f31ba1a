package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/crisis"
	"github.com/mazungumzo-chat-go/internal/i18n"
	"github.com/mazungumzo-chat-go/internal/middleware"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/mazungumzo-chat-go/internal/services/insights"
	"github.com/mazungumzo-chat-go/internal/services/storage"
	"github.com/mazungumzo-chat-go/internal/session"
	"github.com/mazungumzo-chat-go/pkg/logger"
	"github.com/mazungumzo-chat-go/pkg/markdown"
)

// ChatHandler serves the conversational endpoints.
type ChatHandler struct {
	pipeline  *Pipeline
	sessions  *session.Manager
	analyzer  *insights.Analyzer
	storage   *storage.Manager
	security  *middleware.SecurityMiddleware
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	pseudo    *logger.Pseudonymizer
	logger    *logrus.Logger
}

func NewChatHandler(
	pipeline *Pipeline,
	sessions *session.Manager,
	analyzer *insights.Analyzer,
	store *storage.Manager,
	security *middleware.SecurityMiddleware,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	pseudo *logger.Pseudonymizer,
	log *logrus.Logger,
) *ChatHandler {
	return &ChatHandler{
		pipeline:  pipeline,
		sessions:  sessions,
		analyzer:  analyzer,
		storage:   store,
		security:  security,
		localizer: localizer,
		metrics:   metrics,
		pseudo:    pseudo,
		logger:    log,
	}
}

// Chat handles POST /api/v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, h.localizer.Get(h.localizer.DefaultLanguage(), i18n.MsgInvalidRequest, nil))
		return
	}

	language := req.Language
	if language == "" {
		language = models.LangEnglish
	}
	platform := req.Platform
	if platform == "" {
		platform = models.PlatformWeb
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := h.security.ValidateMessage(req.Message); err != nil {
		h.metrics.RecordMessageProcessed("rejected")
		writeError(w, http.StatusBadRequest, h.validationDetail(language, err))
		return
	}

	result, err := h.pipeline.Process(r.Context(), req.UserID, platform, language, req.Message)
	if err != nil {
		h.logger.WithError(err).Error("Chat processing error")
		writeError(w, http.StatusInternalServerError, "Chat processing failed")
		return
	}

	resp := models.ChatResponse{
		Response:   result.Reply,
		IsCrisis:   result.IsCrisis,
		Confidence: result.Confidence,
		Language:   language,
		Resources:  result.Resources,
		SessionID:  req.UserID,
		Timestamp:  time.Now(),
	}
	if platform == models.PlatformWeb {
		resp.ResponseHTML = markdown.ToHTML(result.Reply)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) validationDetail(language string, err error) string {
	switch {
	case errors.Is(err, middleware.ErrEmptyMessage):
		return h.localizer.Get(language, i18n.MsgEmptyMessage, nil)
	case errors.Is(err, middleware.ErrMessageTooLong):
		return h.localizer.Get(language, i18n.MsgMessageTooLong, nil)
	default:
		return h.localizer.Get(language, i18n.MsgInvalidRequest, nil)
	}
}

// Insights handles GET /api/v1/chat/insights/{user_id}.
func (h *ChatHandler) Insights(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]

	sess, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, h.localizer.Get(h.localizer.DefaultLanguage(), i18n.MsgSessionNotFound, nil))
			return
		}
		h.logger.WithError(err).Error("Error getting insights")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve insights")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":       userID,
		"mood_analysis": h.analyzer.AnalyzeMood(sess.MoodScores),
		"insights":      h.analyzer.ConversationInsights(sess.MoodScores),
	})
}

// SubmitFeedback handles POST /api/v1/chat/feedback. Fields arrive either as
// query parameters or as a JSON body.
func (h *ChatHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req models.FeedbackRequest
	if q.Get("user_id") != "" || q.Get("rating") != "" {
		req.UserID = q.Get("user_id")
		req.Feedback = q.Get("feedback")
		req.Rating, _ = strconv.Atoi(q.Get("rating"))
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, h.localizer.Get(h.localizer.DefaultLanguage(), i18n.MsgInvalidRequest, nil))
		return
	}

	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	lang := h.sessionLanguage(r.Context(), req.UserID)
	if req.Rating < 1 || req.Rating > 5 {
		writeError(w, http.StatusBadRequest, h.localizer.Get(lang, i18n.MsgInvalidRating, nil))
		return
	}

	if err := h.storage.IncrementStat(r.Context(), storage.StatFeedbackCount); err != nil {
		h.logger.WithError(err).Warn("Failed to count feedback")
	}
	h.metrics.RecordFeedbackRating(req.Rating)

	entry := h.logger.WithFields(logrus.Fields{
		"user":   h.pseudo.Alias(req.UserID),
		"rating": req.Rating,
	})
	if req.Feedback != "" {
		entry = entry.WithField("feedback", crisis.Truncate(req.Feedback, 100))
	}
	entry.Info("Feedback received")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": h.localizer.Get(lang, i18n.MsgFeedbackThanks, nil),
		"rating":  req.Rating,
		"status":  "received",
	})
}

// sessionLanguage resolves the language for replies on endpoints whose
// request carries no language field.
func (h *ChatHandler) sessionLanguage(ctx context.Context, userID string) string {
	if sess, err := h.sessions.Get(ctx, userID); err == nil {
		return sess.LanguagePreference
	}
	return h.localizer.DefaultLanguage()
}
