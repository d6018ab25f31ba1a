package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Request carries everything needed to produce one assistant reply.
type Request struct {
	Message  string
	History  []models.Message
	Language string
	IsCrisis bool
	UserID   string
}

// ProviderHealth reports the outcome of probing one provider.
type ProviderHealth struct {
	Available      bool    `json:"available"`
	Status         string  `json:"status"`
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// Service produces assistant replies for chat requests.
type Service interface {
	GenerateResponse(ctx context.Context, req Request) (string, error)
	HealthCheck(ctx context.Context) map[string]ProviderHealth
	Available() bool
}

// ChainService walks a prioritized list of completion providers and answers
// from the first one that responds.
type ChainService struct {
	cfg     *config.AIConfig
	clients []*providerClient
	logger  *logrus.Logger
}

// NewService builds the provider chain from configuration. Order matters:
// providers are tried in the order they were configured.
func NewService(cfg *config.AIConfig, logger *logrus.Logger) Service {
	clients := make([]*providerClient, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		clients = append(clients, newProviderClient(pc))
		logger.WithFields(logrus.Fields{
			"provider": pc.Name,
			"baseURL":  pc.BaseURL,
			"model":    pc.Model,
		}).Info("Loaded completion provider")
	}

	if len(clients) == 0 {
		logger.Warn("No completion providers configured, serving fallback responses only")
	}

	return &ChainService{
		cfg:     cfg,
		clients: clients,
		logger:  logger,
	}
}

// GenerateResponse asks each provider in turn. When none answers it returns
// the canned fallback rather than an error, so the caller always has
// something to show the user. The only error surfaced is context
// cancellation.
func (s *ChainService) GenerateResponse(ctx context.Context, req Request) (string, error) {
	messages := s.buildMessages(req)

	for _, client := range s.clients {
		reply, err := s.completeWithRetry(ctx, client, messages)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"provider": client.name(),
				"chars":    len(reply),
			}).Info("Completion generated")
			return reply, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.logger.WithError(err).WithField("provider", client.name()).Warn("Provider failed, trying next")
	}

	if len(s.clients) > 0 {
		s.logger.WithField("isCrisis", req.IsCrisis).Warn("All providers failed, using fallback response")
	}
	return FallbackResponse(req.Language, req.IsCrisis), nil
}

// completeWithRetry runs the retry loop for one provider: exponential
// backoff between attempts, no retry once the provider rejects the request
// outright.
func (s *ChainService) completeWithRetry(ctx context.Context, client *providerClient, messages []chatMessage) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		reply, err := client.complete(ctx, messages, s.cfg.MaxTokens, s.cfg.Temperature, s.cfg.RequestTimeout)
		if err == nil {
			return reply, nil
		}

		lastErr = err
		if isClientError(err) {
			return "", err
		}

		s.logger.WithFields(logrus.Fields{
			"provider": client.name(),
			"attempt":  attempt,
			"error":    err.Error(),
		}).Warn("Completion attempt failed")

		if attempt < s.cfg.MaxRetries {
			// Exponential backoff: 2s, 4s, 8s
			waitTime := time.Duration(2<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(waitTime):
			}
		}
	}

	return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
}

// buildMessages assembles the completion transcript: steering prompt, a
// bounded window of recent history, then the new user message.
func (s *ChainService) buildMessages(req Request) []chatMessage {
	messages := []chatMessage{{Role: "system", Content: systemPrompt(req.Language, req.IsCrisis)}}

	history := req.History
	if len(history) > s.cfg.HistoryWindow {
		history = history[len(history)-s.cfg.HistoryWindow:]
	}
	for _, msg := range history {
		if msg.Role == models.RoleUser || msg.Role == models.RoleAssistant {
			messages = append(messages, chatMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	return append(messages, chatMessage{Role: "user", Content: req.Message})
}

// HealthCheck probes every provider with a minimal completion.
func (s *ChainService) HealthCheck(ctx context.Context) map[string]ProviderHealth {
	health := make(map[string]ProviderHealth, len(s.clients))

	for _, client := range s.clients {
		elapsed, err := client.ping(ctx)
		status := ProviderHealth{
			Available:      true,
			Status:         "healthy",
			ResponseTimeMs: float64(elapsed) / float64(time.Millisecond),
		}
		if err != nil {
			status.Status = "error"
			status.Error = err.Error()
			s.logger.WithError(err).WithField("provider", client.name()).Warn("Provider health probe failed")
		}
		health[client.name()] = status
	}

	return health
}

// Available reports whether at least one provider is configured.
func (s *ChainService) Available() bool {
	return len(s.clients) > 0
}
