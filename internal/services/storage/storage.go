package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Counter names understood by IncrementStat.
const (
	StatTotalUsers          = "total_users"
	StatTotalMessages       = "total_messages"
	StatCrisisInterventions = "crisis_interventions"
	StatFeedbackCount       = "feedback_count"
)

// The crisis event log keeps only the newest entries.
const maxCrisisEvents = 100

// Storage interface defines persistence operations. Sessions passed to
// SaveSession are treated as immutable snapshots; callers must not mutate
// them afterwards.
type Storage interface {
	// Session operations
	GetSession(ctx context.Context, userID string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, userID string) error
	ListSessions(ctx context.Context) ([]*models.Session, error)

	// Crisis event log
	LogCrisisEvent(ctx context.Context, event models.CrisisEvent) error
	RecentCrisisEvents(ctx context.Context, window time.Duration) ([]models.CrisisEvent, error)

	// Usage counters
	IncrementStat(ctx context.Context, name string) error
	IncrementLanguage(ctx context.Context, language string) error
	IncrementPlatform(ctx context.Context, platform string) error
	GetUsageStats(ctx context.Context) (*models.UsageStats, error)

	// Resource directory
	GetResources(ctx context.Context) (*models.ResourceDirectory, error)

	// Cleanup operations
	CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error)
}

// Manager manages different storage backends
type Manager struct {
	storage     Storage
	backendType string
	logger      *logrus.Logger
	redisClient *redis.Client // Store redis client reference
}

// NewManager creates a new storage manager
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	manager := &Manager{
		backendType: cfg.Storage.Type,
		logger:      logger,
	}

	switch cfg.Storage.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		manager.storage = redisStorage
		// Store redis client reference
		manager.redisClient = redisStorage.client
	case "memory":
		manager.storage = NewMemoryStorage(cfg, logger)
	case "file":
		fileStorage, err := NewFileStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		manager.storage = fileStorage
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	// Start cleanup goroutine
	go manager.startCleanup(cfg.Session.CleanupInterval, cfg.Session.PersistedTTL)

	return manager, nil
}

func (m *Manager) startCleanup(interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		removed, err := m.storage.CleanupExpiredSessions(ctx, maxAge)
		if err != nil {
			m.logger.WithError(err).Error("Failed to cleanup expired sessions")
		} else if removed > 0 {
			m.logger.WithField("removed", removed).Info("Cleaned up expired sessions")
		}
		cancel()
	}
}

// Delegate methods to underlying storage
func (m *Manager) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	return m.storage.GetSession(ctx, userID)
}

func (m *Manager) SaveSession(ctx context.Context, session *models.Session) error {
	return m.storage.SaveSession(ctx, session)
}

func (m *Manager) DeleteSession(ctx context.Context, userID string) error {
	return m.storage.DeleteSession(ctx, userID)
}

func (m *Manager) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return m.storage.ListSessions(ctx)
}

func (m *Manager) LogCrisisEvent(ctx context.Context, event models.CrisisEvent) error {
	return m.storage.LogCrisisEvent(ctx, event)
}

func (m *Manager) RecentCrisisEvents(ctx context.Context, window time.Duration) ([]models.CrisisEvent, error) {
	return m.storage.RecentCrisisEvents(ctx, window)
}

func (m *Manager) IncrementStat(ctx context.Context, name string) error {
	return m.storage.IncrementStat(ctx, name)
}

func (m *Manager) IncrementLanguage(ctx context.Context, language string) error {
	return m.storage.IncrementLanguage(ctx, language)
}

func (m *Manager) IncrementPlatform(ctx context.Context, platform string) error {
	return m.storage.IncrementPlatform(ctx, platform)
}

func (m *Manager) GetUsageStats(ctx context.Context) (*models.UsageStats, error) {
	return m.storage.GetUsageStats(ctx)
}

func (m *Manager) GetResources(ctx context.Context) (*models.ResourceDirectory, error) {
	return m.storage.GetResources(ctx)
}

func (m *Manager) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	return m.storage.CleanupExpiredSessions(ctx, maxAge)
}

// GetRedisClient returns the Redis client if available
func (m *Manager) GetRedisClient() *redis.Client {
	return m.redisClient
}

// Backend reports which backend is active: redis, memory or file.
func (m *Manager) Backend() string {
	return m.backendType
}

// Ping verifies the backend is reachable. Memory and file backends are
// always reachable once constructed.
func (m *Manager) Ping(ctx context.Context) error {
	if m.redisClient != nil {
		return m.redisClient.Ping(ctx).Err()
	}
	return nil
}

// langKey normalises a language code to the named counter kept in stats.
func langKey(language string) string {
	switch strings.ToLower(language) {
	case "sw", "swahili":
		return "swahili"
	default:
		return "english"
	}
}

// ensureCanonicalKeys guarantees the well-known language and platform
// counters are present in a stats snapshot even before first use.
func ensureCanonicalKeys(stats *models.UsageStats) {
	if stats.LanguagesUsed == nil {
		stats.LanguagesUsed = make(map[string]int)
	}
	if stats.Platforms == nil {
		stats.Platforms = make(map[string]int)
	}
	for _, k := range []string{"english", "swahili"} {
		if _, ok := stats.LanguagesUsed[k]; !ok {
			stats.LanguagesUsed[k] = 0
		}
	}
	for _, k := range []string{models.PlatformWeb, models.PlatformWhatsApp, models.PlatformSMS} {
		if _, ok := stats.Platforms[k]; !ok {
			stats.Platforms[k] = 0
		}
	}
}

func countRecentEvents(events []models.CrisisEvent, window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	count := 0
	for _, e := range events {
		if e.Timestamp.After(cutoff) {
			count++
		}
	}
	return count
}

// defaultResources returns the built-in directory of Kenyan mental health
// services used until an operator provides their own.
func defaultResources() *models.ResourceDirectory {
	return &models.ResourceDirectory{
		CrisisHotlines: []models.Resource{
			{
				Name:        "Kenya Red Cross",
				Number:      "1199",
				Description: "24/7 crisis support line",
				Language:    "English/Swahili",
			},
			{
				Name:        "Befrienders Kenya",
				Number:      "+254 722 178 177",
				Description: "Suicide prevention hotline",
				Language:    "English/Swahili",
			},
		},
		Hospitals: []models.Resource{
			{
				Name:     "Mathari National Teaching & Referral Hospital",
				Location: "Nairobi",
				Phone:    "+254 20 2723841",
				Services: "Psychiatric services, counseling",
			},
			{
				Name:     "Nairobi Hospital - Mental Health Unit",
				Location: "Nairobi",
				Phone:    "+254 719 055555",
				Services: "Private psychiatric care",
			},
		},
		OnlineResources: []models.Resource{
			{
				Name:        "Kenya Association of Professional Counsellors",
				Website:     "kapc.or.ke",
				Description: "Find certified counsellors",
			},
			{
				Name:        "Mental Health Kenya",
				Website:     "mentalhealthkenya.org",
				Description: "Mental health awareness and resources",
			},
		},
		SupportGroups: []models.Resource{
			{
				Name:     "Nairobi Mental Health Support Groups",
				Location: "Various locations in Nairobi",
				Contact:  "Contact through Mental Health Kenya",
			},
		},
	}
}
