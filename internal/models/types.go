package models

import (
	"time"
)

// Message roles within a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Platforms a conversation can arrive from.
const (
	PlatformWeb      = "web"
	PlatformWhatsApp = "whatsapp"
	PlatformSMS      = "sms"
)

// Supported languages.
const (
	LangEnglish = "en"
	LangSwahili = "sw"
)

// Trend directions reported by the risk aggregator.
const (
	TrendEscalating = "escalating"
	TrendStable     = "stable"
	TrendImproving  = "improving"
)

// Risk levels.
const (
	RiskHigh     = "high"
	RiskModerate = "moderate"
	RiskLow      = "low"
	RiskMinimal  = "minimal"
)

// Follow-up recommendations derived from trend analysis.
const (
	RecommendImmediateIntervention = "immediate_intervention"
	RecommendUrgentFollowup        = "urgent_followup"
	RecommendIncreasedMonitoring   = "increased_monitoring"
	RecommendContinueMonitoring    = "continue_monitoring"
)

// Recommendations derived from the flag-based risk profile.
const (
	RecommendImmediateSupport       = "immediate_professional_support"
	RecommendProfessionalCounseling = "professional_counseling_recommended"
	RecommendContinuedMonitoring    = "continued_monitoring"
	RecommendRegularSupport         = "regular_support"
)

// Message is a single utterance in a conversation. A message is immutable
// once appended to a session's history.
type Message struct {
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Language  string            `json:"language,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CrisisFlag records that a single message crossed the crisis threshold.
// Flags are append-only and removed only when their session is evicted.
type CrisisFlag struct {
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	Keywords   []string  `json:"keywords_matched"`
	Excerpt    string    `json:"message_excerpt"`
	Handled    bool      `json:"handled"`
}

// MoodEntry is one mood observation derived from a user message.
type MoodEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Score     int       `json:"score"`
	Language  string    `json:"language,omitempty"`
}

// Session holds per-user conversational state. History is append-only and
// bounded; the oldest messages are evicted first, never reordered.
type Session struct {
	UserID             string       `json:"user_id"`
	Platform           string       `json:"platform"`
	LanguagePreference string       `json:"language_preference"`
	History            []Message    `json:"conversation_history"`
	CrisisFlags        []CrisisFlag `json:"crisis_flags"`
	MoodScores         []MoodEntry  `json:"mood_scores,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	LastActivity       time.Time    `json:"last_activity"`
}

// ScoreResult is the outcome of screening one message. MatchedTerms keeps
// insertion order and may contain the same phrase twice when it appears in
// more than one keyword tier.
type ScoreResult struct {
	IsCrisis     bool     `json:"is_crisis"`
	Confidence   float64  `json:"confidence"`
	MatchedTerms []string `json:"matched_terms"`
}

// TrendReport summarises recent risk movement for one session.
type TrendReport struct {
	Trend              string     `json:"trend"`
	RiskLevel          string     `json:"risk_level"`
	Recommendation     string     `json:"recommendation"`
	RecentAverageRisk  float64    `json:"recent_average_risk"`
	OverallAverageRisk float64    `json:"overall_average_risk"`
	CrisisIncidents    int        `json:"crisis_incidents_count"`
	LastCrisis         *time.Time `json:"last_crisis_detected,omitempty"`
}

// RiskProfile is the simpler flag-count view of a session's risk. Levels
// combine how many flags exist with how recent the latest one is.
type RiskProfile struct {
	RiskLevel            string      `json:"risk_level"`
	CrisisIncidents      int         `json:"crisis_incidents"`
	LastCrisis           *CrisisFlag `json:"last_crisis,omitempty"`
	HoursSinceLastCrisis *float64    `json:"hours_since_last_crisis,omitempty"`
	NeedsFollowup        bool        `json:"needs_followup"`
	RecommendedAction    string      `json:"recommended_action"`
}

// ChatRequest is the inbound payload of the chat endpoint.
type ChatRequest struct {
	UserID   string `json:"user_id"`
	Message  string `json:"message"`
	Language string `json:"language,omitempty"`
	Platform string `json:"platform,omitempty"`
}

// ChatResponse is the reply returned to the client. ResponseHTML is
// populated only for web clients that render rich text.
type ChatResponse struct {
	Response     string `json:"response"`
	ResponseHTML string `json:"response_html,omitempty"`

	IsCrisis   bool      `json:"is_crisis"`
	Confidence float64   `json:"confidence"`
	Language   string    `json:"language"`
	Resources  []string  `json:"resources,omitempty"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// FeedbackRequest carries a user rating of the service.
type FeedbackRequest struct {
	UserID    string `json:"user_id"`
	Rating    int    `json:"rating"`
	Feedback  string `json:"feedback_text,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// SessionSummary is the inspection view of a session.
type SessionSummary struct {
	UserID               string         `json:"user_id"`
	Platform             string         `json:"platform"`
	LanguagePreference   string         `json:"language_preference"`
	CreatedAt            time.Time      `json:"created_at"`
	LastActivity         time.Time      `json:"last_activity"`
	SessionDurationHours float64        `json:"session_duration_hours"`
	MessageCounts        map[string]int `json:"message_counts"`
	TotalMessages        int            `json:"total_messages"`
	CrisisFlagCount      int            `json:"crisis_flags"`
	HasRecentActivity    bool           `json:"has_recent_activity"`
}

// ExportData is the data portability view of a session. History and flags
// are included only when the caller asks for sensitive content.
type ExportData struct {
	UserID             string       `json:"user_id"`
	Platform           string       `json:"platform"`
	LanguagePreference string       `json:"language_preference"`
	CreatedAt          time.Time    `json:"created_at"`
	LastActivity       time.Time    `json:"last_activity"`
	ConversationCount  int          `json:"conversation_count"`
	CrisisFlagsCount   int          `json:"crisis_flags_count"`
	History            []Message    `json:"conversation_history,omitempty"`
	CrisisFlags        []CrisisFlag `json:"crisis_flags,omitempty"`
}

// PlatformStats aggregates session distribution across platforms.
type PlatformStats struct {
	PlatformDistribution    map[string]int `json:"platform_distribution"`
	LanguageDistribution    map[string]int `json:"language_distribution"`
	ActiveSessionsLastHour  int            `json:"active_sessions_last_hour"`
	SessionsWithCrisisFlags int            `json:"sessions_with_crisis_flags"`
	TotalSessions           int            `json:"total_sessions"`
}

// CrisisEvent is one entry of the global crisis intervention log.
type CrisisEvent struct {
	UserID           string    `json:"user_id"`
	Timestamp        time.Time `json:"timestamp"`
	MessageSnippet   string    `json:"message_snippet"`
	Confidence       float64   `json:"confidence"`
	InterventionSent bool      `json:"intervention_sent"`
}

// UsageStats aggregates service-wide counters. ActiveUsers,
// RecentCrisisEvents and ResourcesAvailable are computed at read time.
type UsageStats struct {
	TotalUsers          int            `json:"total_users"`
	TotalConversations  int            `json:"total_conversations"`
	TotalMessages       int            `json:"total_messages"`
	CrisisInterventions int            `json:"crisis_interventions"`
	FeedbackCount       int            `json:"feedback_count"`
	LanguagesUsed       map[string]int `json:"languages_used"`
	Platforms           map[string]int `json:"platforms"`
	ActiveUsers         int            `json:"active_users"`
	RecentCrisisEvents  int            `json:"recent_crisis_events"`
	ResourcesAvailable  int            `json:"resources_available"`
	LastUpdated         time.Time      `json:"last_updated"`
}

// Resource is one entry in the Kenya mental health directory. The four
// categories use different subsets of the fields, so everything except
// the name is optional.
type Resource struct {
	Name        string `json:"name"`
	Number      string `json:"number,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Location    string `json:"location,omitempty"`
	Website     string `json:"website,omitempty"`
	Contact     string `json:"contact,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Services    string `json:"services,omitempty"`
}

// ResourceDirectory groups resources by category.
type ResourceDirectory struct {
	CrisisHotlines  []Resource `json:"crisis_hotlines"`
	Hospitals       []Resource `json:"hospitals"`
	OnlineResources []Resource `json:"online_resources"`
	SupportGroups   []Resource `json:"support_groups"`
}

// Total counts every resource across all categories.
func (d *ResourceDirectory) Total() int {
	return len(d.CrisisHotlines) + len(d.Hospitals) + len(d.OnlineResources) + len(d.SupportGroups)
}

// CacheEntry is a cached AI completion.
type CacheEntry struct {
	Prompt    string
	Reply     string
	Language  string
	CreatedAt time.Time
}

// NewUserMessage builds a user-authored message stamped now.
func NewUserMessage(content, language string, now time.Time) Message {
	return Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: now,
		Language:  language,
	}
}

// NewAssistantMessage builds an assistant-authored message stamped now.
func NewAssistantMessage(content, language string, now time.Time) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: now,
		Language:  language,
	}
}
