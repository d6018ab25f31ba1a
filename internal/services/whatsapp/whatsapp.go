package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/sirupsen/logrus"
)

const (
	// Twilio rejects WhatsApp bodies over 1600 characters; splitting a bit
	// earlier leaves room for the continuation markers.
	whatsappSplitThreshold = 1500

	// SMSSegmentLength is the classic single-segment SMS budget.
	SMSSegmentLength = 160

	crisisHeader = "🆘 *MAZUNGUMZO CRISIS SUPPORT*\n\n"
)

// crisisResourcesMessage is the bilingual resource card pushed to WhatsApp
// users when a crisis is detected. It carries its own banner.
const crisisResourcesMessage = `🆘 *MAZUNGUMZO - URGENT HELP*

Nakuona unaweza kuhitaji msaada wa haraka. Hii ni muhimu:

*24/7 Crisis Hotlines:*
📞 Kenya Red Cross: 1199
📞 Befrienders Kenya: +254 722 178 177
📞 Suicide Prevention: +254 722 178 177

*Hospitals:*
🏥 Mathari Hospital: +254 20 2723841
🏥 Nairobi Hospital: +254 719 055555
🏥 Aga Khan Hospital: +254 20 3662000

*Remember:*
✨ You are not alone
✨ Help is available
✨ Things can get better

_Tafadhali ongea na mtu wa karibu au ugonga hospitali. Maisha yako ni muhimu._

---
*I see you might need immediate help. Please talk to someone close or visit a hospital. Your life matters.*`

// smsUnsafe matches characters stripped before sending over plain SMS.
var smsUnsafe = regexp.MustCompile(`[^\w\s.,!?-]`)

// Service sends outbound WhatsApp and SMS messages through the Twilio REST
// API and verifies inbound webhooks.
type Service interface {
	Enabled() bool
	SendMessage(ctx context.Context, toNumber, message string, isCrisis bool) error
	SendCrisisResources(ctx context.Context, toNumber string) error
	SendSMS(ctx context.Context, toNumber, message string) error
	VerifyToken(mode, token string) bool
	VerifySignature(payload []byte, signature string) bool
}

// Twilio implements Service against the Twilio messaging API.
type Twilio struct {
	cfg        *config.WhatsAppConfig
	httpClient *http.Client
	logger     *logrus.Logger
	apiBase    string
}

// NewService creates the Twilio-backed messaging service. With WhatsApp
// disabled in config the service still constructs, but every send fails.
func NewService(cfg *config.WhatsAppConfig, logger *logrus.Logger) Service {
	if cfg.Enabled {
		logger.WithField("from", cfg.FromNumber).Info("Twilio WhatsApp client initialized")
	} else {
		logger.Warn("Twilio credentials not configured, WhatsApp features disabled")
	}

	return &Twilio{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		apiBase:    "https://api.twilio.com",
	}
}

// Enabled reports whether outbound messaging is configured.
func (s *Twilio) Enabled() bool {
	return s.cfg.Enabled
}

// SendMessage delivers a reply to a WhatsApp number, splitting it when it
// exceeds the channel limit. Parts are sent in order with a short pause so
// they arrive as separate bubbles in sequence.
func (s *Twilio) SendMessage(ctx context.Context, toNumber, message string, isCrisis bool) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("whatsapp service is not configured")
	}

	parts := FormatMessage(message, isCrisis)
	for i, part := range parts {
		sid, err := s.send(ctx, "whatsapp:"+toNumber, s.cfg.FromNumber, part)
		if err != nil {
			return fmt.Errorf("failed to send message part %d: %w", i+1, err)
		}

		s.logger.WithFields(logrus.Fields{
			"sid":   sid,
			"part":  i + 1,
			"parts": len(parts),
		}).Info("WhatsApp message sent")

		if i < len(parts)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}

	return nil
}

// SendCrisisResources pushes the Kenya crisis resource card. The card text
// already carries its own banner, so no extra crisis header is added.
func (s *Twilio) SendCrisisResources(ctx context.Context, toNumber string) error {
	return s.SendMessage(ctx, toNumber, crisisResourcesMessage, false)
}

// SendSMS delivers a reply over plain SMS, stripped of emoji and chunked to
// segment size.
func (s *Twilio) SendSMS(ctx context.Context, toNumber, message string) error {
	if !s.cfg.Enabled {
		return fmt.Errorf("whatsapp service is not configured")
	}

	from := strings.TrimPrefix(s.cfg.FromNumber, "whatsapp:")
	parts := FormatSMS(message, SMSSegmentLength)
	for i, part := range parts {
		sid, err := s.send(ctx, toNumber, from, part)
		if err != nil {
			return fmt.Errorf("failed to send sms part %d: %w", i+1, err)
		}

		s.logger.WithFields(logrus.Fields{
			"sid":   sid,
			"part":  i + 1,
			"parts": len(parts),
		}).Info("SMS sent")
	}

	return nil
}

// send posts one message to the Twilio REST API and returns the message SID.
func (s *Twilio) send(ctx context.Context, to, from, body string) (string, error) {
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.apiBase, s.cfg.AccountSID)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("twilio returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return result.SID, nil
}

// VerifyToken validates the hub challenge exchanged during webhook setup.
func (s *Twilio) VerifyToken(mode, token string) bool {
	return mode == "subscribe" && s.cfg.VerifyToken != "" && token == s.cfg.VerifyToken
}

// VerifySignature checks an X-Hub-Signature-256 header against the raw
// webhook payload. Comparison is constant time.
func (s *Twilio) VerifySignature(payload []byte, signature string) bool {
	if s.cfg.AppSecret == "" {
		return false
	}

	signature = strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(s.cfg.AppSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}

// InboundMessage is one message delivered by a Twilio webhook form post.
type InboundMessage struct {
	FromNumber  string
	ToNumber    string
	Body        string
	MessageSID  string
	AccountSID  string
	NumMedia    int
	ProfileName string
	WaID        string
}

// ParseWebhookForm extracts the Twilio form fields. The "whatsapp:" channel
// prefix is stripped from phone numbers.
func ParseWebhookForm(form url.Values) InboundMessage {
	numMedia, _ := strconv.Atoi(form.Get("NumMedia"))

	return InboundMessage{
		FromNumber:  strings.TrimPrefix(form.Get("From"), "whatsapp:"),
		ToNumber:    strings.TrimPrefix(form.Get("To"), "whatsapp:"),
		Body:        form.Get("Body"),
		MessageSID:  form.Get("MessageSid"),
		AccountSID:  form.Get("AccountSid"),
		NumMedia:    numMedia,
		ProfileName: form.Get("ProfileName"),
		WaID:        form.Get("WaId"),
	}
}

// FormatMessage rewrites markdown emphasis into WhatsApp formatting, adds
// the crisis banner when needed, and splits messages that exceed the channel
// limit into two linked parts.
func FormatMessage(message string, isCrisis bool) []string {
	formatted := strings.ReplaceAll(message, "**", "*")
	formatted = strings.ReplaceAll(formatted, "__", "_")

	if isCrisis {
		formatted = crisisHeader + formatted
	}

	if len(formatted) <= whatsappSplitThreshold {
		return []string{formatted}
	}

	breakPoint := strings.LastIndex(formatted[:whatsappSplitThreshold], "\n")
	if breakPoint == -1 {
		breakPoint = strings.LastIndex(formatted[:whatsappSplitThreshold], " ")
	}
	if breakPoint == -1 {
		breakPoint = whatsappSplitThreshold
		for breakPoint > 0 && !utf8.RuneStart(formatted[breakPoint]) {
			breakPoint--
		}
	}

	return []string{
		formatted[:breakPoint] + "\n\n_[Continued...]_",
		"_[...Continued]_\n\n" + formatted[breakPoint:],
	}
}

// FormatSMS strips characters plain SMS cannot carry and splits the message
// into segment-sized parts. Multi-part messages get "(i/n)" markers.
func FormatSMS(message string, maxLength int) []string {
	formatted := strings.TrimSpace(smsUnsafe.ReplaceAllString(message, ""))
	if len(formatted) <= maxLength {
		return []string{formatted}
	}

	// Leave room for the part marker.
	limit := maxLength - 10
	var parts []string
	for len(formatted) > limit {
		breakPoint := strings.LastIndex(formatted[:limit], " ")
		if breakPoint == -1 {
			breakPoint = limit
		}
		parts = append(parts, strings.TrimSpace(formatted[:breakPoint]))
		formatted = strings.TrimSpace(formatted[breakPoint:])
	}
	if formatted != "" {
		parts = append(parts, formatted)
	}

	if len(parts) == 1 {
		return parts
	}
	for i := range parts {
		parts[i] = fmt.Sprintf("%s...(%d/%d)", parts[i], i+1, len(parts))
	}
	return parts
}

// twiML mirrors the Twilio messaging response document.
type twiML struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

// TwiMLResponse renders reply texts as a Twilio messaging response document,
// used when answering a webhook inline instead of via the REST API. Each
// text becomes its own outbound message.
func TwiMLResponse(texts ...string) string {
	doc, err := xml.Marshal(twiML{Messages: texts})
	if err != nil {
		return xml.Header + "<Response></Response>"
	}
	return xml.Header + string(doc)
}
