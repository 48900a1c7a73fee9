package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/sirupsen/logrus"
)

// NoExpiration marks a key that never expires.
const NoExpiration time.Duration = 0

// Storage is the expiring key-value cache shared by history, usage and settings.
// Single-key operations are atomic; read-modify-write across calls is not.
type Storage interface {
	// Get returns the stored value, or found=false when the key is absent or expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores value with ttl. A ttl of NoExpiration keeps the key forever.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Incr atomically increments the integer at key, creating it at 0 first.
	Incr(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Manager manages different storage backends
type Manager struct {
	storage     Storage
	logger      *logrus.Logger
	redisClient *redis.Client
}

// NewManager creates a new storage manager
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	manager := &Manager{logger: logger}

	switch cfg.Storage.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(cfg, logger)
		if err != nil {
			return nil, err
		}
		manager.storage = redisStorage
		manager.redisClient = redisStorage.client
	case "memory":
		manager.storage = NewMemoryStorage(cfg.Storage.Memory.CleanupInterval, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}

	logger.WithField("type", cfg.Storage.Type).Info("Storage initialized")
	return manager, nil
}

// NewManagerWithStorage wraps an already constructed backend.
func NewManagerWithStorage(storage Storage, logger *logrus.Logger) *Manager {
	return &Manager{storage: storage, logger: logger}
}

// Delegate methods to underlying storage
func (m *Manager) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return m.storage.Get(ctx, key)
}

func (m *Manager) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.storage.Set(ctx, key, value, ttl)
}

func (m *Manager) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return m.storage.SetNX(ctx, key, value, ttl)
}

func (m *Manager) Incr(ctx context.Context, key string) (int64, error) {
	return m.storage.Incr(ctx, key)
}

func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.storage.Delete(ctx, key)
}

func (m *Manager) Close() error {
	return m.storage.Close()
}

// Ping checks that the backend is reachable. The memory backend always is.
func (m *Manager) Ping(ctx context.Context) error {
	if m.redisClient == nil {
		return nil
	}
	if err := m.redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// RedisStorage implements storage using Redis
type RedisStorage struct {
	client *redis.Client
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

	return NewRedisStorageWithClient(client, logger), nil
}

// NewRedisStorageWithClient wraps an existing client without pinging it.
func NewRedisStorageWithClient(client *redis.Client, logger *logrus.Logger) *RedisStorage {
	return &RedisStorage{
		client: client,
		logger: logger,
	}
}

func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStorage) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisStorage) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisStorage) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// MemoryStorage implements storage using in-memory cache
type MemoryStorage struct {
	items  *cache.Cache
	logger *logrus.Logger
}

func NewMemoryStorage(cleanupInterval time.Duration, logger *logrus.Logger) *MemoryStorage {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryStorage{
		items:  cache.New(cache.NoExpiration, cleanupInterval),
		logger: logger,
	}
}

func memoryTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

func (m *MemoryStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found := m.items.Get(key)
	if !found {
		return nil, false, nil
	}
	switch v := val.(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out, true, nil
	case int64:
		return []byte(fmt.Sprintf("%d", v)), true, nil
	default:
		return nil, false, fmt.Errorf("unexpected value type %T for key %s", val, key)
	}
}

func (m *MemoryStorage) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.items.Set(key, stored, memoryTTL(ttl))
	return nil
}

func (m *MemoryStorage) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	stored := make([]byte, len(value))
	copy(stored, value)
	// Add fails when a live item already exists.
	if err := m.items.Add(key, stored, memoryTTL(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryStorage) Incr(ctx context.Context, key string) (int64, error) {
	_ = m.items.Add(key, int64(0), cache.NoExpiration)
	n, err := m.items.IncrementInt64(key, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	m.items.Delete(key)
	return nil
}

func (m *MemoryStorage) Close() error {
	m.items.Flush()
	return nil
}
