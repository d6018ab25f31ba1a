package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	sessionsFile     = "user_sessions.json"
	crisisEventsFile = "crisis_events.json"
	statsFile        = "usage_stats.json"
	resourcesFile    = "mental_health_resources.json"
)

// crisisEventLog is the on-disk shape of the crisis event file.
type crisisEventLog struct {
	Events             []models.CrisisEvent `json:"events"`
	TotalInterventions int                  `json:"total_interventions"`
	LastUpdated        time.Time            `json:"last_updated"`
}

// usageCounters is the on-disk shape of the stats file.
type usageCounters struct {
	TotalUsers          int            `json:"total_users"`
	TotalMessages       int            `json:"total_messages"`
	CrisisInterventions int            `json:"crisis_interventions"`
	FeedbackCount       int            `json:"feedback_count"`
	LanguagesUsed       map[string]int `json:"languages_used"`
	Platforms           map[string]int `json:"platforms"`
	LastUpdated         time.Time      `json:"last_updated"`
}

// FileStorage persists everything as indented JSON files under one
// directory, keeping a full copy in memory for reads. Suited to small
// single-instance deployments without Redis.
type FileStorage struct {
	dir    string
	logger *logrus.Logger

	mu        sync.RWMutex
	sessions  map[string]*models.Session
	events    crisisEventLog
	stats     usageCounters
	resources *models.ResourceDirectory
}

func NewFileStorage(cfg *config.Config, logger *logrus.Logger) (*FileStorage, error) {
	dir := cfg.Storage.File.Directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	storage := &FileStorage{
		dir:      dir,
		logger:   logger,
		sessions: make(map[string]*models.Session),
		stats: usageCounters{
			LanguagesUsed: map[string]int{"english": 0, "swahili": 0},
			Platforms:     map[string]int{models.PlatformWeb: 0, models.PlatformWhatsApp: 0, models.PlatformSMS: 0},
			LastUpdated:   time.Now(),
		},
		resources: defaultResources(),
	}

	// Missing files are created up front so the data directory is complete
	// after first boot.
	for name, target := range map[string]interface{}{
		sessionsFile:     &storage.sessions,
		crisisEventsFile: &storage.events,
		statsFile:        &storage.stats,
		resourcesFile:    storage.resources,
	} {
		loaded, err := loadJSON(storage.path(name), target)
		if err != nil {
			return nil, err
		}
		if !loaded {
			if err := storage.writeJSON(name, target); err != nil {
				return nil, err
			}
		}
	}

	logger.WithField("dir", dir).Info("File storage initialized")
	return storage, nil
}

func (f *FileStorage) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.sessions[userID], nil
}

func (f *FileStorage) SaveSession(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions[session.UserID] = session
	return f.writeJSON(sessionsFile, f.sessions)
}

func (f *FileStorage) DeleteSession(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.sessions[userID]; !ok {
		return nil
	}
	delete(f.sessions, userID)
	return f.writeJSON(sessionsFile, f.sessions)
}

func (f *FileStorage) ListSessions(ctx context.Context) ([]*models.Session, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sessions := make([]*models.Session, 0, len(f.sessions))
	for _, session := range f.sessions {
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (f *FileStorage) LogCrisisEvent(ctx context.Context, event models.CrisisEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events.Events = append(f.events.Events, event)
	if len(f.events.Events) > maxCrisisEvents {
		f.events.Events = f.events.Events[len(f.events.Events)-maxCrisisEvents:]
	}
	f.events.TotalInterventions++
	f.events.LastUpdated = time.Now()
	if err := f.writeJSON(crisisEventsFile, &f.events); err != nil {
		return err
	}

	f.stats.CrisisInterventions++
	f.stats.LastUpdated = time.Now()
	return f.writeJSON(statsFile, &f.stats)
}

func (f *FileStorage) RecentCrisisEvents(ctx context.Context, window time.Duration) ([]models.CrisisEvent, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	recent := make([]models.CrisisEvent, 0)
	for _, e := range f.events.Events {
		if e.Timestamp.After(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent, nil
}

func (f *FileStorage) IncrementStat(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch name {
	case StatTotalUsers:
		f.stats.TotalUsers++
	case StatTotalMessages:
		f.stats.TotalMessages++
	case StatCrisisInterventions:
		f.stats.CrisisInterventions++
	case StatFeedbackCount:
		f.stats.FeedbackCount++
	default:
		return fmt.Errorf("unknown stat counter: %s", name)
	}

	f.stats.LastUpdated = time.Now()
	return f.writeJSON(statsFile, &f.stats)
}

func (f *FileStorage) IncrementLanguage(ctx context.Context, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stats.LanguagesUsed == nil {
		f.stats.LanguagesUsed = make(map[string]int)
	}
	f.stats.LanguagesUsed[langKey(language)]++
	f.stats.LastUpdated = time.Now()
	return f.writeJSON(statsFile, &f.stats)
}

func (f *FileStorage) IncrementPlatform(ctx context.Context, platform string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stats.Platforms == nil {
		f.stats.Platforms = make(map[string]int)
	}
	f.stats.Platforms[platform]++
	f.stats.LastUpdated = time.Now()
	return f.writeJSON(statsFile, &f.stats)
}

func (f *FileStorage) GetUsageStats(ctx context.Context) (*models.UsageStats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	active := len(f.sessions)
	stats := &models.UsageStats{
		TotalUsers:          f.stats.TotalUsers,
		TotalConversations:  active,
		TotalMessages:       f.stats.TotalMessages,
		CrisisInterventions: f.stats.CrisisInterventions,
		FeedbackCount:       f.stats.FeedbackCount,
		LanguagesUsed:       copyCounts(f.stats.LanguagesUsed),
		Platforms:           copyCounts(f.stats.Platforms),
		ActiveUsers:         active,
		RecentCrisisEvents:  countRecentEvents(f.events.Events, 24*time.Hour, time.Now()),
		ResourcesAvailable:  f.resources.Total(),
		LastUpdated:         f.stats.LastUpdated,
	}
	ensureCanonicalKeys(stats)
	return stats, nil
}

func (f *FileStorage) GetResources(ctx context.Context) (*models.ResourceDirectory, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.resources, nil
}

func (f *FileStorage) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for userID, session := range f.sessions {
		if session.LastActivity.Before(cutoff) {
			delete(f.sessions, userID)
			removed++
		}
	}

	if removed > 0 {
		if err := f.writeJSON(sessionsFile, f.sessions); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (f *FileStorage) path(name string) string {
	return filepath.Join(f.dir, name)
}

// writeJSON writes through a temp file so a crash mid-write never leaves a
// truncated data file behind.
func (f *FileStorage) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	path := f.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
