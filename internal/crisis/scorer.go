package crisis

import (
	"math"
	"strings"
	"time"

	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Scorer screens messages for crisis indicators. Scoring reads only the
// message, the optional recent history, the static lexicon and the current
// hour, so a single Scorer is safe for concurrent use.
type Scorer struct {
	threshold float64
	now       func() time.Time
	logger    *logrus.Logger
}

// NewScorer creates a scorer with the given crisis confidence threshold.
func NewScorer(threshold float64, logger *logrus.Logger) *Scorer {
	return &Scorer{
		threshold: threshold,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock overrides the wall-clock source. Tests use it to pin the
// late-night addend.
func (s *Scorer) WithClock(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Threshold returns the configured crisis confidence threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Score screens one message. recentHistory may be nil; when supplied, a
// run of concerning recent user messages raises the score. Confidence is
// capped at 0.95, never an error: a blank message scores zero.
func (s *Scorer) Score(message string, recentHistory []models.Message) models.ScoreResult {
	result := s.score(message, recentHistory, true)

	s.logger.WithFields(logrus.Fields{
		"confidence": result.Confidence,
		"is_crisis":  result.IsCrisis,
		"matches":    len(result.MatchedTerms),
	}).Debug("Message screened")

	return result
}

// score carries the withHistory switch so the escalation check can re-score
// history entries without recursing further than one level.
func (s *Scorer) score(message string, recentHistory []models.Message, withHistory bool) models.ScoreResult {
	messageLower := strings.ToLower(strings.TrimSpace(message))
	matched := make([]string, 0)

	if messageLower == "" {
		return models.ScoreResult{MatchedTerms: matched}
	}

	crisisScore := 0.0
	severityMultiplier := 1.0

	for _, t := range severityTiers {
		for _, keyword := range t.keywords {
			if strings.Contains(messageLower, keyword) {
				matched = append(matched, keyword)
				crisisScore += t.weight
				if t.multiplier > severityMultiplier {
					severityMultiplier = t.multiplier
				}
			}
		}
	}

	crisisScore += s.contextualRisk(messageLower, recentHistory, withHistory)
	crisisScore *= severityMultiplier
	crisisScore += patternScore(messageLower)

	// Linear scaling, capped: the scorer is never certain.
	confidence := math.Min(crisisScore*0.15, 0.95)

	return models.ScoreResult{
		IsCrisis:     confidence >= s.threshold,
		Confidence:   confidence,
		MatchedTerms: matched,
	}
}

// contextualRisk adds time-of-day, isolation, hopelessness and method/plan
// signals, plus the escalation bonus from recent history.
func (s *Scorer) contextualRisk(message string, history []models.Message, withHistory bool) float64 {
	risk := 0.0

	// Late night or early morning raises baseline risk.
	hour := s.now().Hour()
	if hour >= 0 && hour <= 5 {
		risk += lateNightWeight
	}

	for _, phrase := range isolationPhrases {
		if strings.Contains(message, phrase) {
			risk += isolationWeight
		}
	}

	for _, phrase := range hopelessnessPhrases {
		if strings.Contains(message, phrase) {
			risk += hopelessnessWeight
		}
	}

	for _, phrase := range methodPhrases {
		if strings.Contains(message, phrase) {
			risk += methodWeight
		}
	}

	if withHistory && len(history) > 0 {
		recent := history
		if len(recent) > 10 {
			recent = recent[len(recent)-10:]
		}

		concerning := 0
		for _, msg := range recent {
			if msg.Role != models.RoleUser {
				continue
			}
			if s.score(msg.Content, nil, false).Confidence > 0.3 {
				concerning++
			}
		}

		if concerning >= 3 {
			risk += 1.0
		} else if concerning >= 2 {
			risk += 0.5
		}
	}

	return risk
}

// patternScore runs the regex families. Each family contributes
// independently; a message can hit all of them.
func patternScore(message string) float64 {
	score := 0.0

	for _, pattern := range firstPersonPatterns {
		if pattern.MatchString(message) {
			score += firstPersonWeight
		}
	}

	for _, pattern := range finalityPatterns {
		if pattern.MatchString(message) {
			score += finalityWeight
		}
	}

	for _, pattern := range burdenPatterns {
		if pattern.MatchString(message) {
			score += burdenWeight
		}
	}

	if strings.Contains(message, "?") {
		for _, question := range concerningQuestions {
			if strings.Contains(message, question) {
				score += questionWeight
			}
		}
	}

	return score
}

// NewFlag builds the crisis flag the caller appends to a session after a
// positive determination. The excerpt keeps at most the first 100 characters
// of the message.
func NewFlag(result models.ScoreResult, message string, now time.Time) models.CrisisFlag {
	return models.CrisisFlag{
		Timestamp:  now,
		Confidence: result.Confidence,
		Keywords:   result.MatchedTerms,
		Excerpt:    Truncate(message, 100),
		Handled:    false,
	}
}

// Truncate cuts s to at most n characters, not bytes, so multi-byte text
// survives intact.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
