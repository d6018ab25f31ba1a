package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// Load language files
	for _, lang := range cfg.Languages {
		if _, err := bundle.LoadMessageFileFS(localeFS, fmt.Sprintf("locales/%s.json", lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Supported reports whether lang has its own message catalogue.
func (l *Localizer) Supported(lang string) bool {
	_, ok := l.localizers[lang]
	return ok
}

// DefaultLanguage returns the configured fallback language code.
func (l *Localizer) DefaultLanguage() string {
	return l.defaultLanguage
}

// Message IDs
const (
	MsgErrorGeneric        = "error_generic"
	MsgRateLimitExceeded   = "rate_limit_exceeded"
	MsgInvalidRequest      = "invalid_request"
	MsgEmptyMessage        = "empty_message"
	MsgMessageTooLong      = "message_too_long"
	MsgUnsupportedLanguage = "unsupported_language"
	MsgLanguageUpdated     = "language_updated"
	MsgSessionCleared      = "session_cleared"
	MsgSessionNotFound     = "session_not_found"
	MsgEmergencyNote       = "emergency_note"
	MsgFeedbackThanks      = "feedback_thanks"
	MsgInvalidRating       = "invalid_rating"
)
