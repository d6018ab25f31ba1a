package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/crisis"
	"github.com/mazungumzo-chat-go/internal/middleware"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/mazungumzo-chat-go/internal/services/ai"
	"github.com/mazungumzo-chat-go/internal/services/cache"
	"github.com/mazungumzo-chat-go/internal/services/insights"
	"github.com/mazungumzo-chat-go/internal/services/storage"
	"github.com/mazungumzo-chat-go/internal/session"
	"github.com/mazungumzo-chat-go/pkg/logger"
)

// Pipeline runs the message flow shared by the web chat endpoint and the
// messaging webhooks: screen, persist, complete, decorate.
type Pipeline struct {
	sessions *session.Manager
	ai       ai.Service
	scorer   *crisis.Scorer
	cache    cache.Service
	analyzer *insights.Analyzer
	storage  *storage.Manager
	security *middleware.SecurityMiddleware
	metrics  *middleware.Metrics
	pseudo   *logger.Pseudonymizer
	logger   *logrus.Logger
}

// Result carries everything a transport needs to answer the user.
// PlainReply is the reply without the crisis banner, for transports that
// deliver crisis resources as a separate message.
type Result struct {
	Reply      string
	PlainReply string
	IsCrisis   bool
	Confidence float64
	Resources  []string
}

func NewPipeline(
	sessions *session.Manager,
	aiService ai.Service,
	scorer *crisis.Scorer,
	cacheService cache.Service,
	analyzer *insights.Analyzer,
	store *storage.Manager,
	security *middleware.SecurityMiddleware,
	metrics *middleware.Metrics,
	pseudo *logger.Pseudonymizer,
	log *logrus.Logger,
) *Pipeline {
	return &Pipeline{
		sessions: sessions,
		ai:       aiService,
		scorer:   scorer,
		cache:    cacheService,
		analyzer: analyzer,
		storage:  store,
		security: security,
		metrics:  metrics,
		pseudo:   pseudo,
		logger:   log,
	}
}

// Process handles one inbound user message end to end. The user message and
// any crisis flag are persisted before the completion call, so a failed
// completion never loses the screening outcome.
func (p *Pipeline) Process(ctx context.Context, userID, platform, language, message string) (*Result, error) {
	p.metrics.RecordMessageReceived(platform)
	now := time.Now()

	sess, err := p.sessions.GetOrCreate(ctx, userID, platform)
	if err != nil {
		p.metrics.RecordMessageProcessed("error")
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if language != sess.LanguagePreference {
		if _, err := p.sessions.UpdateLanguage(ctx, userID, language); err != nil {
			p.logger.WithError(err).Warn("Failed to update language preference")
		}
	}

	userMsg := models.NewUserMessage(message, language, now)

	// Screening sees the current message as part of the history window, so
	// repeated concerning messages escalate even when each one alone would
	// stay below the threshold.
	window := append(append([]models.Message{}, sess.History...), userMsg)
	score := p.scorer.Score(message, window)

	var flag *models.CrisisFlag
	if score.IsCrisis {
		f := crisis.NewFlag(score, message, now)
		flag = &f
	}

	if _, err := p.sessions.RecordUserMessage(ctx, userID, platform, userMsg, flag); err != nil {
		p.metrics.RecordMessageProcessed("error")
		return nil, fmt.Errorf("failed to record message: %w", err)
	}

	if score.IsCrisis {
		logger.LogCrisisDetection(p.logger, p.pseudo, userID, score.Confidence, score.MatchedTerms)
		p.metrics.RecordCrisisDetection(crisis.Band(score.Confidence))

		event := models.CrisisEvent{
			UserID:           userID,
			Timestamp:        now,
			MessageSnippet:   crisis.Truncate(message, 100),
			Confidence:       score.Confidence,
			InterventionSent: crisis.NeedsIntervention(score.Confidence),
		}
		if err := p.storage.LogCrisisEvent(ctx, event); err != nil {
			p.logger.WithError(err).Warn("Failed to log crisis event")
		}
	}

	// Crisis replies are never cached. Everyone else can share a reply to
	// the same message in the same language.
	reply, cached := "", false
	if !score.IsCrisis {
		reply, cached = p.cache.Get(ctx, userID, message, language)
		if cached {
			p.metrics.RecordCacheHit()
		} else {
			p.metrics.RecordCacheMiss()
		}
	}

	if !cached {
		start := time.Now()
		reply, err = p.ai.GenerateResponse(ctx, ai.Request{
			Message:  message,
			History:  sess.History,
			Language: language,
			IsCrisis: score.IsCrisis,
			UserID:   userID,
		})
		if err != nil {
			p.metrics.RecordAIRequest("error", time.Since(start))
			p.metrics.RecordMessageProcessed("error")
			return nil, fmt.Errorf("completion failed: %w", err)
		}
		p.metrics.RecordAIRequest("success", time.Since(start))

		reply = p.security.SanitizeReply(reply)
		if !score.IsCrisis {
			if err := p.cache.Set(ctx, userID, message, language, reply); err != nil {
				p.logger.WithError(err).Warn("Failed to cache reply")
			}
		}
	}

	// History keeps the undecorated reply. The crisis banner and the mood
	// suffix below are presentation only and would pollute later completion
	// prompts if stored.
	replyMsg := models.NewAssistantMessage(reply, language, time.Now())
	if score.IsCrisis {
		replyMsg.Metadata = map[string]string{
			"is_crisis":  "true",
			"confidence": strconv.FormatFloat(score.Confidence, 'f', 2, 64),
		}
	}
	if _, err := p.sessions.AppendMessage(ctx, userID, platform, replyMsg); err != nil {
		p.logger.WithError(err).Warn("Failed to record reply")
	}

	if moodSess, err := p.sessions.RecordMood(ctx, userID, platform, p.analyzer.NewMoodEntry(message)); err != nil {
		p.logger.WithError(err).Warn("Failed to record mood")
	} else {
		analysis := p.analyzer.AnalyzeMood(moodSess.MoodScores)
		reply = p.analyzer.EnhanceResponse(message, reply, analysis)
	}

	plain := reply
	var resources []string
	if score.IsCrisis {
		resources = crisis.SelectResources(score.Confidence)
		if crisis.NeedsIntervention(score.Confidence) {
			reply = crisis.SelectTemplate(score.Confidence, language) + "\n\n" + reply
		}
	}

	logger.WithUser(p.logger, p.pseudo, userID, platform).Info("Chat completed")
	p.metrics.RecordMessageProcessed("success")

	return &Result{
		Reply:      reply,
		PlainReply: plain,
		IsCrisis:   score.IsCrisis,
		Confidence: score.Confidence,
		Resources:  resources,
	}, nil
}
