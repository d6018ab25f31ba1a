package handlers

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/middleware"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/mazungumzo-chat-go/internal/services/insights"
	"github.com/mazungumzo-chat-go/internal/services/whatsapp"
	"github.com/mazungumzo-chat-go/pkg/logger"
)

// Twilio form posts are small; anything larger is not a webhook.
const maxWebhookBody = 1 << 20

// WebhookHandler serves the Twilio messaging webhooks for WhatsApp and SMS.
type WebhookHandler struct {
	cfg      *config.Config
	pipeline *Pipeline
	whatsapp whatsapp.Service
	analyzer *insights.Analyzer
	metrics  *middleware.Metrics
	pseudo   *logger.Pseudonymizer
	logger   *logrus.Logger
}

func NewWebhookHandler(
	cfg *config.Config,
	pipeline *Pipeline,
	whatsappService whatsapp.Service,
	analyzer *insights.Analyzer,
	metrics *middleware.Metrics,
	pseudo *logger.Pseudonymizer,
	log *logrus.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		cfg:      cfg,
		pipeline: pipeline,
		whatsapp: whatsappService,
		analyzer: analyzer,
		metrics:  metrics,
		pseudo:   pseudo,
		logger:   log,
	}
}

// VerifyWhatsApp handles GET /webhook/whatsapp, the Meta-style subscription
// handshake. The challenge is echoed back as plain text.
func (h *WebhookHandler) VerifyWhatsApp(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.whatsapp.VerifyToken(q.Get("hub.mode"), q.Get("hub.verify_token")) {
		h.logger.Info("WhatsApp webhook verified")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(q.Get("hub.challenge")))
		return
	}

	h.logger.Warn("WhatsApp webhook verification failed")
	h.metrics.RecordWebhookFailure("verification_failed")
	writeError(w, http.StatusForbidden, "Webhook verification failed")
}

// HandleWhatsApp handles POST /webhook/whatsapp, a Twilio form post.
func (h *WebhookHandler) HandleWhatsApp(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.metrics.RecordWebhookFailure("read_body")
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	// Signature checks run over the raw body, so the form is parsed from the
	// same bytes afterwards.
	if h.cfg.WhatsApp.AppSecret != "" {
		if !h.whatsapp.VerifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
			h.logger.Warn("Invalid webhook signature")
			h.metrics.RecordWebhookFailure("invalid_signature")
			writeError(w, http.StatusForbidden, "Invalid signature")
			return
		}
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		h.metrics.RecordWebhookFailure("malformed_form")
		writeError(w, http.StatusBadRequest, "Malformed webhook payload")
		return
	}

	inbound := whatsapp.ParseWebhookForm(form)
	if inbound.FromNumber == "" || inbound.Body == "" {
		// Delivery receipts and other status callbacks carry no body.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	logger.WithUser(h.logger, h.pseudo, inbound.FromNumber, models.PlatformWhatsApp).Info("WhatsApp message received")

	result, err := h.pipeline.Process(r.Context(), inbound.FromNumber, models.PlatformWhatsApp, h.detectLanguage(inbound.Body), inbound.Body)
	if err != nil {
		h.logger.WithError(err).Error("Error processing webhook")
		h.metrics.RecordWebhookFailure("pipeline")
		writeError(w, http.StatusInternalServerError, "Error processing webhook")
		return
	}

	h.deliverWhatsApp(r.Context(), inbound.FromNumber, result)

	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// deliverWhatsApp sends the reply, preceded by the resource card when the
// screening confidence calls for one. Send failures are logged rather than
// returned; the exchange is already stored and a Twilio retry would only
// replay it.
func (h *WebhookHandler) deliverWhatsApp(ctx context.Context, toNumber string, result *Result) {
	if !h.whatsapp.Enabled() {
		h.logger.Debug("WhatsApp sending disabled, reply not delivered")
		return
	}

	if result.IsCrisis && result.Confidence > 0.5 {
		if err := h.whatsapp.SendCrisisResources(ctx, toNumber); err != nil {
			h.logger.WithError(err).Error("Failed to send crisis resources")
			h.metrics.RecordWebhookFailure("send_crisis_resources")
		}
		// The card carries its own banner and hotlines, so the reply goes
		// out plain.
		if err := h.whatsapp.SendMessage(ctx, toNumber, result.PlainReply, false); err != nil {
			h.logger.WithError(err).Error("Failed to send WhatsApp reply")
			h.metrics.RecordWebhookFailure("send_reply")
		}
		return
	}

	if err := h.whatsapp.SendMessage(ctx, toNumber, result.Reply, result.IsCrisis); err != nil {
		h.logger.WithError(err).Error("Failed to send WhatsApp reply")
		h.metrics.RecordWebhookFailure("send_reply")
	}
}

// HandleTwilioSMS handles POST /webhook/twilio. The reply rides back inline
// as TwiML, chunked to SMS segments.
func (h *WebhookHandler) HandleTwilioSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.metrics.RecordWebhookFailure("malformed_form")
		writeError(w, http.StatusBadRequest, "Malformed webhook payload")
		return
	}

	fromNumber := r.PostForm.Get("From")
	body := r.PostForm.Get("Body")
	if fromNumber == "" || body == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	logger.WithUser(h.logger, h.pseudo, fromNumber, models.PlatformSMS).Info("SMS message received")

	result, err := h.pipeline.Process(r.Context(), fromNumber, models.PlatformSMS, h.detectLanguage(body), body)
	if err != nil {
		h.logger.WithError(err).Error("Error processing SMS webhook")
		h.metrics.RecordWebhookFailure("pipeline")
		writeError(w, http.StatusInternalServerError, "Error processing SMS webhook")
		return
	}

	parts := whatsapp.FormatSMS(result.Reply, whatsapp.SMSSegmentLength)
	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(whatsapp.TwiMLResponse(parts...)))
}

// detectLanguage maps the analyzer's language labels onto wire codes for
// transports whose messages carry no language field.
func (h *WebhookHandler) detectLanguage(message string) string {
	if h.analyzer.DetectLanguage(message) == insights.LanguageSwahili {
		return models.LangSwahili
	}
	return models.LangEnglish
}
