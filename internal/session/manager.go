package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/mazungumzo-chat-go/internal/services/storage"
	"github.com/mazungumzo-chat-go/pkg/logger"
)

// ErrNotFound is returned by read operations for unknown users. Read paths
// never create sessions as a side effect; only message traffic does.
var ErrNotFound = errors.New("session not found")

// maxMoodEntries bounds the mood history kept per session.
const maxMoodEntries = 10

// Manager mediates all session access. Mutations for one user are
// serialized through a per-user lock; storage only ever holds snapshots
// that are never touched again after saving.
type Manager struct {
	cfg     *config.Config
	storage *storage.Manager
	logger  *logrus.Logger
	pseudo  *logger.Pseudonymizer
	now     func() time.Time

	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

// NewManager creates a new session manager
func NewManager(cfg *config.Config, store *storage.Manager, log *logrus.Logger, pseudo *logger.Pseudonymizer) *Manager {
	manager := &Manager{
		cfg:     cfg,
		storage: store,
		logger:  log,
		pseudo:  pseudo,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}

	// Start cleanup goroutine
	go manager.startCleanup(cfg.Session.CleanupInterval, cfg.Session.InactivityTTL)

	return manager
}

// WithClock replaces the wall clock, used by tests to pin welcome message
// selection and activity windows.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) startCleanup(interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := m.CleanupInactive(ctx, maxAge); err != nil {
			m.logger.WithError(err).Error("Failed to cleanup inactive sessions")
		}
		cancel()
	}
}

// userLock returns the mutex serializing mutations for one user.
func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.RLock()
	lock, exists := m.locks[userID]
	m.mu.RUnlock()
	if exists {
		return lock
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lock, exists = m.locks[userID]; exists {
		return lock
	}
	lock = &sync.Mutex{}
	m.locks[userID] = lock
	return lock
}

// mutate loads the user's session, applies fn to a private copy and saves
// the result, all under the user lock. With create set, a missing session
// is built first; otherwise ErrNotFound is returned.
func (m *Manager) mutate(ctx context.Context, userID, platform string, create bool, fn func(*models.Session)) (*models.Session, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	stored, err := m.storage.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	var session *models.Session
	switch {
	case stored != nil:
		session = cloneSession(stored)
	case create:
		session = m.createLocked(ctx, userID, platform)
	default:
		return nil, ErrNotFound
	}

	fn(session)
	session.LastActivity = m.now()

	if err := m.storage.SaveSession(ctx, cloneSession(session)); err != nil {
		return nil, err
	}
	return session, nil
}

// createLocked builds a brand new session opening with a welcome message.
// The caller holds the user lock.
func (m *Manager) createLocked(ctx context.Context, userID, platform string) *models.Session {
	if platform == "" {
		platform = models.PlatformWeb
	}

	m.enforceSessionCap(ctx)

	now := m.now()
	session := &models.Session{
		UserID:             userID,
		Platform:           platform,
		LanguagePreference: m.cfg.I18n.DefaultLanguage,
		History:            []models.Message{},
		CrisisFlags:        []models.CrisisFlag{},
		CreatedAt:          now,
		LastActivity:       now,
	}

	welcome := models.NewAssistantMessage(m.welcomeMessage(platform), welcomeLanguage(platform), now)
	welcome.Metadata = map[string]string{"type": "welcome"}
	session.History = append(session.History, welcome)

	if err := m.storage.IncrementStat(ctx, storage.StatTotalUsers); err != nil {
		m.logger.WithError(err).Warn("Failed to count new user")
	}
	if err := m.storage.IncrementPlatform(ctx, platform); err != nil {
		m.logger.WithError(err).Warn("Failed to count platform")
	}

	logger.WithUser(m.logger, m.pseudo, userID, platform).Info("Session created")
	return session
}

// enforceSessionCap forces an early sweep when the configured session limit
// is reached. The cap is soft; a burst of brand new users still gets
// sessions.
func (m *Manager) enforceSessionCap(ctx context.Context) {
	if m.cfg.Session.MaxSessions <= 0 {
		return
	}
	stats, err := m.storage.GetUsageStats(ctx)
	if err != nil || stats.ActiveUsers < m.cfg.Session.MaxSessions {
		return
	}

	m.logger.WithField("max_sessions", m.cfg.Session.MaxSessions).Warn("Session limit reached, forcing cleanup")
	if _, err := m.storage.CleanupExpiredSessions(ctx, m.cfg.Session.InactivityTTL); err != nil {
		m.logger.WithError(err).Error("Forced session cleanup failed")
	}
}

// GetOrCreate returns the user's session, creating it on first contact. New
// sessions open with a platform-appropriate welcome message from the
// assistant. The returned session is a private copy safe to read.
func (m *Manager) GetOrCreate(ctx context.Context, userID, platform string) (*models.Session, error) {
	return m.mutate(ctx, userID, platform, true, func(*models.Session) {})
}

// RecordUserMessage appends an inbound user message and, when screening
// found a crisis, its flag in one atomic session update. The flag is
// persisted here so a failed completion never loses it.
func (m *Manager) RecordUserMessage(ctx context.Context, userID, platform string, msg models.Message, flag *models.CrisisFlag) (*models.Session, error) {
	session, err := m.mutate(ctx, userID, platform, true, func(s *models.Session) {
		m.appendBounded(s, msg)
		if flag != nil {
			s.CrisisFlags = append(s.CrisisFlags, *flag)
		}
	})
	if err != nil {
		return nil, err
	}

	m.countMessages(ctx, 1)
	if err := m.storage.IncrementLanguage(ctx, msg.Language); err != nil {
		m.logger.WithError(err).Warn("Failed to count language")
	}
	return session, nil
}

// AppendMessage adds a single message to the user's session.
func (m *Manager) AppendMessage(ctx context.Context, userID, platform string, msg models.Message) (*models.Session, error) {
	session, err := m.mutate(ctx, userID, platform, true, func(s *models.Session) {
		m.appendBounded(s, msg)
	})
	if err != nil {
		return nil, err
	}

	m.countMessages(ctx, 1)
	return session, nil
}

// RecordMood appends a mood reading to the user's session, keeping only the
// most recent entries.
func (m *Manager) RecordMood(ctx context.Context, userID, platform string, entry models.MoodEntry) (*models.Session, error) {
	return m.mutate(ctx, userID, platform, true, func(s *models.Session) {
		s.MoodScores = append(s.MoodScores, entry)
		if len(s.MoodScores) > maxMoodEntries {
			s.MoodScores = s.MoodScores[len(s.MoodScores)-maxMoodEntries:]
		}
	})
}

// appendBounded appends to history and evicts the oldest entries beyond the
// configured bound. Order is never changed.
func (m *Manager) appendBounded(session *models.Session, msg models.Message) {
	session.History = append(session.History, msg)
	if max := m.cfg.Session.MaxHistory; max > 0 && len(session.History) > max {
		session.History = session.History[len(session.History)-max:]
	}
}

func (m *Manager) countMessages(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		if err := m.storage.IncrementStat(ctx, storage.StatTotalMessages); err != nil {
			m.logger.WithError(err).Warn("Failed to count message")
			return
		}
	}
}

// Get returns the session for a user, or ErrNotFound. The result is a
// stored snapshot; callers must treat it as read-only.
func (m *Manager) Get(ctx context.Context, userID string) (*models.Session, error) {
	session, err := m.storage.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

// History returns the most recent messages for a user, newest last.
func (m *Manager) History(ctx context.Context, userID string, limit int) ([]models.Message, error) {
	session, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	history := session.History
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history, nil
}

// UpdateLanguage switches the user's preferred language.
func (m *Manager) UpdateLanguage(ctx context.Context, userID, language string) (*models.Session, error) {
	session, err := m.mutate(ctx, userID, "", false, func(s *models.Session) {
		s.LanguagePreference = language
	})
	if err != nil {
		return nil, err
	}

	logger.WithUser(m.logger, m.pseudo, userID, session.Platform).WithField("language", language).Info("Language preference updated")
	return session, nil
}

// Delete removes a user's session entirely.
func (m *Manager) Delete(ctx context.Context, userID string) error {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.storage.DeleteSession(ctx, userID); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.locks, userID)
	m.mu.Unlock()

	logger.WithUser(m.logger, m.pseudo, userID, "").Info("Session deleted")
	return nil
}

// Summary builds the inspection view of a session.
func (m *Manager) Summary(ctx context.Context, userID string) (*models.SessionSummary, error) {
	session, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, msg := range session.History {
		counts[msg.Role]++
	}

	duration := 0.0
	if len(session.History) > 0 {
		duration = session.LastActivity.Sub(session.CreatedAt).Hours()
	}

	return &models.SessionSummary{
		UserID:               session.UserID,
		Platform:             session.Platform,
		LanguagePreference:   session.LanguagePreference,
		CreatedAt:            session.CreatedAt,
		LastActivity:         session.LastActivity,
		SessionDurationHours: math.Round(duration*100) / 100,
		MessageCounts:        counts,
		TotalMessages:        len(session.History),
		CrisisFlagCount:      len(session.CrisisFlags),
		HasRecentActivity:    m.now().Sub(session.LastActivity) < time.Hour,
	}, nil
}

// Export returns the data portability view of a session. Conversation
// content is withheld unless includeSensitive is set.
func (m *Manager) Export(ctx context.Context, userID string, includeSensitive bool) (*models.ExportData, error) {
	session, err := m.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	export := &models.ExportData{
		UserID:             session.UserID,
		Platform:           session.Platform,
		LanguagePreference: session.LanguagePreference,
		CreatedAt:          session.CreatedAt,
		LastActivity:       session.LastActivity,
		ConversationCount:  len(session.History),
		CrisisFlagsCount:   len(session.CrisisFlags),
	}
	if includeSensitive {
		export.History = session.History
		export.CrisisFlags = session.CrisisFlags
	}
	return export, nil
}

// PlatformStats aggregates the live session population.
func (m *Manager) PlatformStats(ctx context.Context) (*models.PlatformStats, error) {
	sessions, err := m.storage.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.PlatformStats{
		PlatformDistribution: make(map[string]int),
		LanguageDistribution: make(map[string]int),
		TotalSessions:        len(sessions),
	}

	now := m.now()
	for _, session := range sessions {
		stats.PlatformDistribution[session.Platform]++
		stats.LanguageDistribution[session.LanguagePreference]++
		if now.Sub(session.LastActivity) < time.Hour {
			stats.ActiveSessionsLastHour++
		}
		if len(session.CrisisFlags) > 0 {
			stats.SessionsWithCrisisFlags++
		}
	}

	return stats, nil
}

// CleanupInactive evicts sessions idle past maxAge and drops their locks.
func (m *Manager) CleanupInactive(ctx context.Context, maxAge time.Duration) (int, error) {
	removed, err := m.storage.CleanupExpiredSessions(ctx, maxAge)
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		m.pruneLocks(ctx)
		m.logger.WithFields(logrus.Fields{
			"removed": removed,
			"max_age": maxAge.String(),
		}).Info("Cleaned up inactive sessions")
	}
	return removed, nil
}

// pruneLocks drops per-user locks with no backing session. A lock held by
// an in-flight request may be recreated; eviction only targets users idle
// far longer than any request lifetime.
func (m *Manager) pruneLocks(ctx context.Context) {
	sessions, err := m.storage.ListSessions(ctx)
	if err != nil {
		return
	}

	alive := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		alive[session.UserID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for userID := range m.locks {
		if _, ok := alive[userID]; !ok {
			delete(m.locks, userID)
		}
	}
}

// welcomeMessage greets new users. WhatsApp users get a Swahili greeting
// keyed to the time of day; other platforms get the English default.
func (m *Manager) welcomeMessage(platform string) string {
	if platform != models.PlatformWhatsApp {
		return "Hello! 👋 I'm Mazungumzo, your mental health companion. I'm here to listen and support you. How are you feeling today?"
	}

	switch hour := m.now().Hour(); {
	case hour >= 5 && hour < 12:
		return "Habari za asubuhi! 🌅 Mimi ni Mazungumzo, rafiki yako wa msaada wa afya ya akili. Niko hapa kukusikiliza. Unajisikiaje leo?"
	case hour >= 12 && hour < 17:
		return "Habari za mchana! ☀️ Mimi ni Mazungumzo. Nimefurahi kuongea nawe. Je, kuna kitu unachotaka kuongea nami?"
	case hour >= 17 && hour < 21:
		return "Habari za jioni! 🌆 Mimi ni Mazungumzo, niko hapa kukusikiliza na kukusaidia. Unajisikiaje?"
	default:
		return "Habari za usiku! 🌙 Mimi ni Mazungumzo. Naona ni usiku wa manane - unajisikiaje? Niko hapa kama unahitaji mtu wa kuongea naye."
	}
}

func welcomeLanguage(platform string) string {
	if platform == models.PlatformWhatsApp {
		return models.LangSwahili
	}
	return models.LangEnglish
}

// cloneSession deep-copies a session so storage never shares state with
// the live copy being mutated.
func cloneSession(s *models.Session) *models.Session {
	clone := *s
	clone.History = make([]models.Message, len(s.History))
	copy(clone.History, s.History)
	for i, msg := range clone.History {
		if msg.Metadata != nil {
			meta := make(map[string]string, len(msg.Metadata))
			for k, v := range msg.Metadata {
				meta[k] = v
			}
			clone.History[i].Metadata = meta
		}
	}
	clone.CrisisFlags = make([]models.CrisisFlag, len(s.CrisisFlags))
	copy(clone.CrisisFlags, s.CrisisFlags)
	for i, flag := range clone.CrisisFlags {
		if flag.Keywords != nil {
			keywords := make([]string, len(flag.Keywords))
			copy(keywords, flag.Keywords)
			clone.CrisisFlags[i].Keywords = keywords
		}
	}
	if s.MoodScores != nil {
		clone.MoodScores = make([]models.MoodEntry, len(s.MoodScores))
		copy(clone.MoodScores, s.MoodScores)
	}
	return &clone
}
