package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	redisSessionPrefix   = "session:"
	redisCrisisEventsKey = "crisis:events"
	redisCountersKey     = "stats:counters"
	redisLanguagesKey    = "stats:languages"
	redisPlatformsKey    = "stats:platforms"
	redisStatsUpdatedKey = "stats:last_updated"
	redisResourcesKey    = "resources:directory"
)

// RedisStorage implements storage using Redis
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.Config, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	storage := &RedisStorage{
		client: client,
		ttl:    cfg.Session.PersistedTTL,
		logger: logger,
	}

	if err := storage.seedResources(ctx); err != nil {
		return nil, err
	}

	return storage, nil
}

func (r *RedisStorage) seedResources(ctx context.Context) error {
	data, err := json.Marshal(defaultResources())
	if err != nil {
		return err
	}
	return r.client.SetNX(ctx, redisResourcesKey, data, 0).Err()
}

func (r *RedisStorage) GetSession(ctx context.Context, userID string) (*models.Session, error) {
	key := redisSessionPrefix + userID
	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}

	return &session, nil
}

func (r *RedisStorage) SaveSession(ctx context.Context, session *models.Session) error {
	key := redisSessionPrefix + session.UserID
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r *RedisStorage) DeleteSession(ctx context.Context, userID string) error {
	key := redisSessionPrefix + userID
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStorage) ListSessions(ctx context.Context) ([]*models.Session, error) {
	sessions := make([]*models.Session, 0)

	iter := r.client.Scan(ctx, 0, redisSessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}

		var session models.Session
		if err := json.Unmarshal([]byte(data), &session); err != nil {
			r.logger.WithError(err).WithField("key", iter.Val()).Warn("Skipping undecodable session")
			continue
		}
		sessions = append(sessions, &session)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

func (r *RedisStorage) LogCrisisEvent(ctx context.Context, event models.CrisisEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := r.client.LPush(ctx, redisCrisisEventsKey, data).Err(); err != nil {
		return err
	}
	if err := r.client.LTrim(ctx, redisCrisisEventsKey, 0, maxCrisisEvents-1).Err(); err != nil {
		return err
	}
	if err := r.client.HIncrBy(ctx, redisCountersKey, StatCrisisInterventions, 1).Err(); err != nil {
		return err
	}

	return r.touchStats(ctx)
}

func (r *RedisStorage) RecentCrisisEvents(ctx context.Context, window time.Duration) ([]models.CrisisEvent, error) {
	entries, err := r.client.LRange(ctx, redisCrisisEventsKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-window)
	events := make([]models.CrisisEvent, 0, len(entries))
	for _, entry := range entries {
		var event models.CrisisEvent
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			continue
		}
		if event.Timestamp.After(cutoff) {
			events = append(events, event)
		}
	}

	return events, nil
}

func (r *RedisStorage) IncrementStat(ctx context.Context, name string) error {
	if err := r.client.HIncrBy(ctx, redisCountersKey, name, 1).Err(); err != nil {
		return err
	}
	return r.touchStats(ctx)
}

func (r *RedisStorage) IncrementLanguage(ctx context.Context, language string) error {
	if err := r.client.HIncrBy(ctx, redisLanguagesKey, langKey(language), 1).Err(); err != nil {
		return err
	}
	return r.touchStats(ctx)
}

func (r *RedisStorage) IncrementPlatform(ctx context.Context, platform string) error {
	if err := r.client.HIncrBy(ctx, redisPlatformsKey, platform, 1).Err(); err != nil {
		return err
	}
	return r.touchStats(ctx)
}

func (r *RedisStorage) GetUsageStats(ctx context.Context) (*models.UsageStats, error) {
	counters, err := r.client.HGetAll(ctx, redisCountersKey).Result()
	if err != nil {
		return nil, err
	}
	languages, err := r.client.HGetAll(ctx, redisLanguagesKey).Result()
	if err != nil {
		return nil, err
	}
	platforms, err := r.client.HGetAll(ctx, redisPlatformsKey).Result()
	if err != nil {
		return nil, err
	}

	active := 0
	iter := r.client.Scan(ctx, 0, redisSessionPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		active++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}

	recent, err := r.RecentCrisisEvents(ctx, 24*time.Hour)
	if err != nil {
		return nil, err
	}

	resources, err := r.GetResources(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.UsageStats{
		TotalUsers:          hashInt(counters, StatTotalUsers),
		TotalConversations:  active,
		TotalMessages:       hashInt(counters, StatTotalMessages),
		CrisisInterventions: hashInt(counters, StatCrisisInterventions),
		FeedbackCount:       hashInt(counters, StatFeedbackCount),
		LanguagesUsed:       hashCounts(languages),
		Platforms:           hashCounts(platforms),
		ActiveUsers:         active,
		RecentCrisisEvents:  len(recent),
		ResourcesAvailable:  resources.Total(),
	}

	if updated, err := r.client.Get(ctx, redisStatsUpdatedKey).Result(); err == nil {
		if ts, perr := time.Parse(time.RFC3339Nano, updated); perr == nil {
			stats.LastUpdated = ts
		}
	}

	ensureCanonicalKeys(stats)
	return stats, nil
}

func (r *RedisStorage) GetResources(ctx context.Context) (*models.ResourceDirectory, error) {
	data, err := r.client.Get(ctx, redisResourcesKey).Result()
	if err == redis.Nil {
		return defaultResources(), nil
	}
	if err != nil {
		return nil, err
	}

	var directory models.ResourceDirectory
	if err := json.Unmarshal([]byte(data), &directory); err != nil {
		return nil, err
	}

	return &directory, nil
}

func (r *RedisStorage) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	// Redis handles expiration automatically
	return 0, nil
}

func (r *RedisStorage) touchStats(ctx context.Context) error {
	return r.client.Set(ctx, redisStatsUpdatedKey, time.Now().Format(time.RFC3339Nano), 0).Err()
}

func hashInt(h map[string]string, field string) int {
	n, _ := strconv.Atoi(h[field])
	return n
}

func hashCounts(h map[string]string) map[string]int {
	counts := make(map[string]int, len(h))
	for k := range h {
		counts[k] = hashInt(h, k)
	}
	return counts
}
