package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/sirupsen/logrus"
)

// FileSource is the uncached file reader being fronted.
type FileSource interface {
	FileContents(ctx context.Context, serverID, path string) (string, error)
}

// HitRecorder is told about every lookup outcome.
type HitRecorder interface {
	RecordCacheHit()
	RecordCacheMiss()
}

type entry struct {
	content   string
	fetchedAt time.Time
}

// FileCache keeps recently read server files for a short time so repeated
// questions about the same file do not hit the daemon each time.
// Failed reads are never cached.
type FileCache struct {
	source  FileSource
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
	metrics HitRecorder
}

// NewFileCache creates a new file cache in front of source
func NewFileCache(source FileSource, cfg *config.CacheConfig, logger *logrus.Logger) *FileCache {
	if !cfg.Enabled || cfg.TTL <= 0 {
		return &FileCache{source: source, enabled: false, logger: logger}
	}

	return &FileCache{
		source:  source,
		enabled: true,
		cache:   cache.New(cfg.TTL, cfg.TTL*2),
		logger:  logger,
		maxSize: cfg.MaxSize,
	}
}

// SetMetrics attaches a recorder for hit and miss counts
func (c *FileCache) SetMetrics(m HitRecorder) {
	c.metrics = m
}

// FileContents returns cached content when fresh, otherwise reads through to the source.
func (c *FileCache) FileContents(ctx context.Context, serverID, path string) (string, error) {
	if !c.enabled {
		return c.source.FileContents(ctx, serverID, path)
	}

	key := c.generateKey(serverID, path)
	if val, found := c.cache.Get(key); found {
		e := val.(*entry)
		if c.metrics != nil {
			c.metrics.RecordCacheHit()
		}
		c.logger.WithFields(logrus.Fields{
			"server_id": serverID,
			"path":      path,
			"age":       time.Since(e.fetchedAt),
		}).Debug("File cache hit")
		return e.content, nil
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss()
	}

	content, err := c.source.FileContents(ctx, serverID, path)
	if err != nil {
		return "", err
	}

	if c.maxSize > 0 && c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("File cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
		if c.cache.ItemCount() >= c.maxSize {
			c.cache.Flush()
		}
	}

	c.cache.SetDefault(key, &entry{content: content, fetchedAt: time.Now()})
	return content, nil
}

// Clear removes all cached entries
func (c *FileCache) Clear() {
	if !c.enabled {
		return
	}
	c.cache.Flush()
	c.logger.Info("File cache cleared")
}

// generateKey creates a unique cache key
func (c *FileCache) generateKey(serverID, path string) string {
	data := fmt.Sprintf("%s:%s", serverID, path)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
