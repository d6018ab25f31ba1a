package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/mazungumzo-chat-go/internal/config"
	"github.com/mazungumzo-chat-go/internal/models"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Service defines reply cache operations. The cache is scoped per user so a
// repeated message (a double send on a flaky connection is common on
// WhatsApp) reuses the reply instead of burning another completion. Crisis
// replies are never cached; every crisis message gets a fresh response.
type Service interface {
	Get(ctx context.Context, userID, message, language string) (string, bool)
	Set(ctx context.Context, userID, message, language, reply string) error
	Clear(ctx context.Context) error
}

// Cache implements the reply cache on an in-process store.
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new reply cache
func NewCache(cfg *config.Config, logger *logrus.Logger) Service {
	if !cfg.Cache.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.Cache.TTL, cfg.Cache.TTL*2),
		logger:  logger,
		maxSize: cfg.Cache.MaxSize,
	}
}

// Get retrieves a cached reply
func (c *Cache) Get(ctx context.Context, userID, message, language string) (string, bool) {
	if !c.enabled {
		return "", false
	}

	key := c.generateKey(userID, message, language)
	if val, found := c.cache.Get(key); found {
		entry := val.(*models.CacheEntry)
		c.logger.WithFields(logrus.Fields{
			"key":      key[:8],
			"language": language,
			"age":      time.Since(entry.CreatedAt),
		}).Debug("Reply cache hit")
		return entry.Reply, true
	}

	return "", false
}

// Set stores a reply in cache
func (c *Cache) Set(ctx context.Context, userID, message, language, reply string) error {
	if !c.enabled {
		return nil
	}

	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Reply cache size limit reached, clearing expired entries")
		c.cache.DeleteExpired()
	}

	key := c.generateKey(userID, message, language)
	entry := &models.CacheEntry{
		Prompt:    message,
		Reply:     reply,
		Language:  language,
		CreatedAt: time.Now(),
	}

	c.cache.SetDefault(key, entry)
	c.logger.WithFields(logrus.Fields{
		"key":      key[:8],
		"language": language,
	}).Debug("Reply cached")

	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Reply cache cleared")
	return nil
}

// generateKey hashes the user, language and message together. Message text
// never appears in a key, so keys are safe to log.
func (c *Cache) generateKey(userID, message, language string) string {
	data := fmt.Sprintf("%s:%s:%s", userID, language, message)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
