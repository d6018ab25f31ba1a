package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazungumzo-chat-go/internal/models"
)

func TestVerifyWhatsAppWebhook(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.get(t, "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=test-verify-token&hub.challenge=12345")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, "12345", rec.Body.String())
}

func TestVerifyWhatsAppWebhookBadToken(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.get(t, "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Webhook verification failed", decodeJSON(t, rec)["detail"])
}

func TestWhatsAppWebhookDeliversReply(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.sender.enabled = true

	rec := env.postForm(t, "/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+254700000001"},
		"To":   {"whatsapp:+14155238886"},
		"Body": {"Habari, nataka msaada"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeJSON(t, rec)["status"])

	sent := env.sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+254700000001", sent[0].to)
	assert.Equal(t, env.ai.reply, sent[0].body)
	assert.False(t, sent[0].isCrisis)

	// Two Swahili marker words set the session language.
	sess, err := env.sessions.Get(context.Background(), "+254700000001")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformWhatsApp, sess.Platform)
	assert.Equal(t, models.LangSwahili, sess.LanguagePreference)
	assert.Len(t, sess.History, 3)
}

func TestWhatsAppWebhookCrisisSendsResourceCard(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.sender.enabled = true

	rec := env.postForm(t, "/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+254700000001"},
		"Body": {"I want to kill myself"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// The resource card goes first and carries the urgency; the reply
	// follows without a second banner.
	assert.Equal(t, []string{"+254700000001"}, env.sender.crisisSent())

	sent := env.sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, env.ai.reply, sent[0].body)
	assert.False(t, sent[0].isCrisis)
	assert.NotContains(t, sent[0].body, "I'm very concerned")
}

func TestWhatsAppWebhookSendingDisabled(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.postForm(t, "/webhook/whatsapp", url.Values{
		"From": {"whatsapp:+254700000001"},
		"Body": {"Habari, nataka msaada"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeJSON(t, rec)["status"])

	// The exchange is processed and stored even when delivery is off.
	assert.Equal(t, 1, env.ai.callCount())
	assert.Empty(t, env.sender.sent())

	_, err := env.sessions.Get(context.Background(), "+254700000001")
	assert.NoError(t, err)
}

func TestWhatsAppWebhookIgnoresStatusCallbacks(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.sender.enabled = true

	rec := env.postForm(t, "/webhook/whatsapp", url.Values{
		"MessageSid": {"SM12345"},
		"SmsStatus":  {"delivered"},
		"From":       {"whatsapp:+254700000001"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeJSON(t, rec)["status"])
	assert.Zero(t, env.ai.callCount())
	assert.Empty(t, env.sender.sent())
}

func TestWhatsAppWebhookMalformedBody(t *testing.T) {
	env := newTestEnv(t, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("Body=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := env.do(t, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Malformed webhook payload", decodeJSON(t, rec)["detail"])
}

func TestWhatsAppWebhookSignature(t *testing.T) {
	cfg := testConfig()
	cfg.WhatsApp.AppSecret = "test-secret"
	env := newTestEnv(t, cfg)
	env.sender.enabled = true

	payload := "From=whatsapp%3A%2B254700000001&Body=Habari+yako"

	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(payload))
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Hub-Signature-256", signature)
	rec := env.do(t, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", decodeJSON(t, rec)["status"])
	assert.Len(t, env.sender.sent(), 1)
}

func TestWhatsAppWebhookRejectsBadSignature(t *testing.T) {
	cfg := testConfig()
	cfg.WhatsApp.AppSecret = "test-secret"
	env := newTestEnv(t, cfg)

	for _, signature := range []string{"", "sha256=deadbeef"} {
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp",
			strings.NewReader("From=whatsapp%3A%2B254700000001&Body=Habari"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if signature != "" {
			req.Header.Set("X-Hub-Signature-256", signature)
		}
		rec := env.do(t, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "Invalid signature", decodeJSON(t, rec)["detail"])
	}
	assert.Zero(t, env.ai.callCount())
}

func TestTwilioSMSWebhookRepliesInline(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.postForm(t, "/webhook/twilio", url.Values{
		"From": {"+254711000222"},
		"Body": {"hello, can we talk"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))

	xml := rec.Body.String()
	assert.Contains(t, xml, "<Response>")
	assert.Contains(t, xml, "<Message>"+env.ai.reply+"</Message>")

	// The reply is delivered by the TwiML document, not the REST API.
	assert.Empty(t, env.sender.sent())

	sess, err := env.sessions.Get(context.Background(), "+254711000222")
	require.NoError(t, err)
	assert.Equal(t, models.PlatformSMS, sess.Platform)
}

func TestTwilioSMSWebhookSplitsLongReplies(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.ai.reply = strings.TrimSpace(strings.Repeat("take a slow deep breath and ", 10))

	rec := env.postForm(t, "/webhook/twilio", url.Values{
		"From": {"+254711000222"},
		"Body": {"hello"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	xml := rec.Body.String()
	assert.Equal(t, 2, strings.Count(xml, "<Message>"))
	assert.Contains(t, xml, "...(1/2)")
	assert.Contains(t, xml, "...(2/2)")
}

func TestTwilioSMSWebhookMissingFields(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := env.postForm(t, "/webhook/twilio", url.Values{"From": {"+254711000222"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required fields", decodeJSON(t, rec)["detail"])
}
