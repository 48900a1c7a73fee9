package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/internal/services/storage"
	"github.com/sirupsen/logrus"
)

const (
	totalChatsKey  = "ai_chat_stats:total_chats"
	activeUsersKey = "ai_chat_stats:active_users"
	markerPrefix   = "ai_chat_active_user:"

	DefaultActiveUserTTL = 24 * time.Hour
)

// Recorder records one successful chat for a user.
type Recorder interface {
	RecordChat(ctx context.Context, userID string) error
}

// Counter tracks total chats and an approximate count of users seen within
// the marker window. A user whose marker expired is counted again, so
// active_users only ever grows.
type Counter struct {
	storage   storage.Storage
	markerTTL time.Duration
	logger    *logrus.Logger
}

// NewCounter creates a new usage counter
func NewCounter(store storage.Storage, markerTTL time.Duration, logger *logrus.Logger) *Counter {
	if markerTTL <= 0 {
		markerTTL = DefaultActiveUserTTL
	}
	return &Counter{
		storage:   store,
		markerTTL: markerTTL,
		logger:    logger,
	}
}

// RecordChat increments the total and, on the user's first chat in the window, the active users count.
func (c *Counter) RecordChat(ctx context.Context, userID string) error {
	total, err := c.storage.Incr(ctx, totalChatsKey)
	if err != nil {
		return fmt.Errorf("failed to increment total chats: %w", err)
	}

	fresh, err := c.storage.SetNX(ctx, markerPrefix+userID, []byte("1"), c.markerTTL)
	if err != nil {
		return fmt.Errorf("failed to set active user marker: %w", err)
	}
	if fresh {
		if _, err := c.storage.Incr(ctx, activeUsersKey); err != nil {
			return fmt.Errorf("failed to increment active users: %w", err)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"total_chats": total,
		"new_in_day":  fresh,
	}).Debug("Chat recorded")
	return nil
}

// Stats returns the current counter values.
func (c *Counter) Stats(ctx context.Context) (*models.UsageStats, error) {
	total, err := c.read(ctx, totalChatsKey)
	if err != nil {
		return nil, err
	}
	active, err := c.read(ctx, activeUsersKey)
	if err != nil {
		return nil, err
	}
	return &models.UsageStats{TotalChats: total, ActiveUsers: active}, nil
}

func (c *Counter) read(ctx context.Context, key string) (int64, error) {
	data, found, err := c.storage.Get(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !found {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value for %s: %w", key, err)
	}
	return n, nil
}
