package insights

import (
	"fmt"
	"strings"
	"time"

	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Language labels used in mood entries. These are full names rather than
// codes because insight strings are shown on the dashboard.
const (
	LanguageEnglish = "english"
	LanguageSwahili = "swahili"
)

// Mood trends.
const (
	MoodImproving = "improving"
	MoodStable    = "stable"
)

// Mood keyword lists. Bilingual on purpose; users code-switch freely.
var (
	positiveWords = []string{"happy", "good", "better", "hopeful", "furaha", "nzuri"}
	negativeWords = []string{"sad", "bad", "worse", "hopeless", "huzuni", "mbaya"}
)

// swahiliMarkers are common Swahili words used for lightweight language
// detection. A statistical detector would be overkill for a two-language
// service where one language is this distinctive.
var swahiliMarkers = map[string]bool{
	"hujambo": true, "mambo": true, "habari": true, "salama": true,
	"sana": true, "pole": true, "nina": true, "sina": true,
	"mimi": true, "wewe": true, "leo": true, "asante": true,
	"tafadhali": true, "msaada": true, "huzuni": true, "furaha": true,
	"nzuri": true, "mbaya": true, "kazi": true, "familia": true,
}

// MoodAnalysis summarises the mood of a conversation after one message.
type MoodAnalysis struct {
	CurrentMood    int    `json:"current_mood"`
	Trend          string `json:"trend"`
	SessionLength  int    `json:"session_length"`
	Language       string `json:"language"`
	Recommendation string `json:"recommendation"`
}

// ConversationInsights is the dashboard view of a user's mood history.
type ConversationInsights struct {
	Status          string   `json:"status"`
	Insights        []string `json:"insights"`
	SessionScore    int      `json:"session_score,omitempty"`
	PrimaryLanguage string   `json:"primary_language,omitempty"`
}

// Analyzer derives mood signals from messages. All methods are pure; mood
// history lives in the session so it survives restarts with a persistent
// backend.
type Analyzer struct {
	logger *logrus.Logger
	now    func() time.Time
}

// NewAnalyzer creates a mood analyzer.
func NewAnalyzer(logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// ScoreMood counts positive against negative mood words in a message.
func (a *Analyzer) ScoreMood(message string) int {
	lower := strings.ToLower(message)

	score := 0
	for _, word := range positiveWords {
		if strings.Contains(lower, word) {
			score++
		}
	}
	for _, word := range negativeWords {
		if strings.Contains(lower, word) {
			score--
		}
	}
	return score
}

// DetectLanguage classifies a message as english or swahili by marker words.
// Short messages need only one marker; longer ones need two, so a lone
// borrowed word does not flip the classification.
func (a *Analyzer) DetectLanguage(message string) string {
	tokens := tokenize(message)

	hits := 0
	for _, token := range tokens {
		if swahiliMarkers[token] {
			hits++
		}
	}

	if hits >= 2 || (hits >= 1 && len(tokens) <= 3) {
		return LanguageSwahili
	}
	return LanguageEnglish
}

// NewMoodEntry scores a message into a mood entry stamped now.
func (a *Analyzer) NewMoodEntry(message string) models.MoodEntry {
	return models.MoodEntry{
		Timestamp: a.now(),
		Score:     a.ScoreMood(message),
		Language:  a.DetectLanguage(message),
	}
}

// AnalyzeMood reports the current mood and its short-term trend. The slice
// must already include the entry for the newest message.
func (a *Analyzer) AnalyzeMood(moods []models.MoodEntry) MoodAnalysis {
	if len(moods) == 0 {
		return MoodAnalysis{
			Trend:          MoodStable,
			Language:       LanguageEnglish,
			Recommendation: moodRecommendation(0),
		}
	}

	current := moods[len(moods)-1]

	recent := moods
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	trend := MoodStable
	if len(recent) > 1 && recent[len(recent)-1].Score > recent[0].Score {
		trend = MoodImproving
	}

	return MoodAnalysis{
		CurrentMood:    current.Score,
		Trend:          trend,
		SessionLength:  len(moods),
		Language:       current.Language,
		Recommendation: moodRecommendation(current.Score),
	}
}

// ConversationInsights builds the dashboard strings from mood history.
func (a *Analyzer) ConversationInsights(moods []models.MoodEntry) ConversationInsights {
	if len(moods) == 0 {
		return ConversationInsights{Status: "new_user", Insights: []string{}}
	}

	insights := make([]string, 0, 3)

	if len(moods) > 5 {
		insights = append(insights, fmt.Sprintf("Engaged in %d meaningful exchanges", len(moods)))
	}

	recent := moods
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	if len(recent) > 1 {
		switch {
		case recent[len(recent)-1].Score > recent[0].Score:
			insights = append(insights, "Mood trending positively during conversation")
		case recent[len(recent)-1].Score < recent[0].Score:
			insights = append(insights, "May need additional support - mood declining")
		}
	}

	primary := primaryLanguage(moods)
	if primary == LanguageSwahili {
		insights = append(insights, "Prefers Swahili communication")
	}

	total := 0
	for _, entry := range moods {
		total += entry.Score
	}

	return ConversationInsights{
		Status:          "active_user",
		Insights:        insights,
		SessionScore:    total,
		PrimaryLanguage: primary,
	}
}

// EnhanceResponse appends mood-aware and cultural touches to a reply.
func (a *Analyzer) EnhanceResponse(message, reply string, analysis MoodAnalysis) string {
	enhanced := reply

	if analysis.Trend == MoodImproving {
		if analysis.Language == LanguageSwahili {
			enhanced += "\n\nNaona unaboresha kidogo. Hii ni nzuri sana! 🌟"
		} else {
			enhanced += "\n\nI notice you're improving a bit. That's wonderful! 🌟"
		}
	}

	lower := strings.ToLower(message)
	if strings.Contains(lower, "family") || strings.Contains(lower, "familia") {
		enhanced += "\n\n💝 In Kenyan culture, family support is crucial for mental health"
	}

	return enhanced
}

// moodRecommendation maps a mood score to culturally grounded advice.
func moodRecommendation(score int) string {
	switch {
	case score <= -2:
		return "Consider reaching out to family or visiting a health center. Ubuntu - we are stronger together."
	case score < 0:
		return "Take time for self-care. In Kenyan tradition, talking to elders can provide wisdom."
	default:
		return "Your positive energy is good. Share it with your community - it helps others heal too."
	}
}

// primaryLanguage returns the most frequent entry language, english on ties.
func primaryLanguage(moods []models.MoodEntry) string {
	counts := make(map[string]int)
	for _, entry := range moods {
		lang := entry.Language
		if lang == "" {
			lang = LanguageEnglish
		}
		counts[lang]++
	}

	if counts[LanguageSwahili] > counts[LanguageEnglish] {
		return LanguageSwahili
	}
	return LanguageEnglish
}

// tokenize lowercases text and splits it into bare words.
func tokenize(text string) []string {
	text = strings.ToLower(text)

	replacer := strings.NewReplacer(
		".", " ", ",", " ", ";", " ", ":", " ",
		"!", " ", "?", " ", "(", " ", ")", " ",
		"\"", " ", "'", " ", "-", " ",
	)
	text = replacer.Replace(text)

	return strings.Fields(text)
}
