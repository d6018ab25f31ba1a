package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryStorage implements storage using in-memory cache. Sessions live in
// a go-cache instance with automatic expiry; the crisis log, counters and
// the resource directory are singular aggregates guarded by one mutex.
type MemoryStorage struct {
	sessions *cache.Cache
	logger   *logrus.Logger

	mu        sync.RWMutex
	events    []models.CrisisEvent
	counters  map[string]int
	languages map[string]int
	platforms map[string]int
	updated   time.Time
	resources *models.ResourceDirectory
}

func NewMemoryStorage(cfg *config.Config, logger *logrus.Logger) *MemoryStorage {
	return &MemoryStorage{
		sessions:  cache.New(cfg.Storage.Memory.DefaultExpiration, cfg.Storage.Memory.CleanupInterval),
		counters:  make(map[string]int),
		languages: map[string]int{"english": 0, "swahili": 0},
		platforms: map[string]int{models.PlatformWeb: 0, models.PlatformWhatsApp: 0, models.PlatformSMS: 0},
		updated:   time.Now(),
		resources: defaultResources(),
		logger:    logger,
	}
}

func (m *MemoryStorage) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	key := fmt.Sprintf("session:%s", userID)
	if val, found := m.sessions.Get(key); found {
		return val.(*models.Session), nil
	}
	return nil, nil
}

func (m *MemoryStorage) SaveSession(ctx context.Context, session *models.Session) error {
	key := fmt.Sprintf("session:%s", session.UserID)
	m.sessions.SetDefault(key, session)
	return nil
}

func (m *MemoryStorage) DeleteSession(ctx context.Context, userID string) error {
	key := fmt.Sprintf("session:%s", userID)
	m.sessions.Delete(key)
	return nil
}

func (m *MemoryStorage) ListSessions(ctx context.Context) ([]*models.Session, error) {
	items := m.sessions.Items()
	sessions := make([]*models.Session, 0, len(items))
	for _, item := range items {
		sessions = append(sessions, item.Object.(*models.Session))
	}
	return sessions, nil
}

func (m *MemoryStorage) LogCrisisEvent(ctx context.Context, event models.CrisisEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	if len(m.events) > maxCrisisEvents {
		m.events = m.events[len(m.events)-maxCrisisEvents:]
	}
	m.counters[StatCrisisInterventions]++
	m.updated = time.Now()
	return nil
}

func (m *MemoryStorage) RecentCrisisEvents(ctx context.Context, window time.Duration) ([]models.CrisisEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	recent := make([]models.CrisisEvent, 0)
	for _, e := range m.events {
		if e.Timestamp.After(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent, nil
}

func (m *MemoryStorage) IncrementStat(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counters[name]++
	m.updated = time.Now()
	return nil
}

func (m *MemoryStorage) IncrementLanguage(ctx context.Context, language string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.languages[langKey(language)]++
	m.updated = time.Now()
	return nil
}

func (m *MemoryStorage) IncrementPlatform(ctx context.Context, platform string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.platforms[platform]++
	m.updated = time.Now()
	return nil
}

func (m *MemoryStorage) GetUsageStats(ctx context.Context) (*models.UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := m.sessions.ItemCount()
	stats := &models.UsageStats{
		TotalUsers:          m.counters[StatTotalUsers],
		TotalConversations:  active,
		TotalMessages:       m.counters[StatTotalMessages],
		CrisisInterventions: m.counters[StatCrisisInterventions],
		FeedbackCount:       m.counters[StatFeedbackCount],
		LanguagesUsed:       copyCounts(m.languages),
		Platforms:           copyCounts(m.platforms),
		ActiveUsers:         active,
		RecentCrisisEvents:  countRecentEvents(m.events, 24*time.Hour, time.Now()),
		ResourcesAvailable:  m.resources.Total(),
		LastUpdated:         m.updated,
	}
	ensureCanonicalKeys(stats)
	return stats, nil
}

func (m *MemoryStorage) GetResources(ctx context.Context) (*models.ResourceDirectory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resources, nil
}

func (m *MemoryStorage) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, item := range m.sessions.Items() {
		session, ok := item.Object.(*models.Session)
		if !ok {
			continue
		}
		if session.LastActivity.Before(cutoff) {
			m.sessions.Delete(key)
			removed++
		}
	}
	return removed, nil
}

func copyCounts(src map[string]int) map[string]int {
	dst := make(map[string]int, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
