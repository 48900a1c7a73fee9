package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/internal/services/storage"
	"github.com/sirupsen/logrus"
)

const (
	DefaultLimit = 50
	DefaultTTL   = 7 * 24 * time.Hour
)

// Store keeps a capped, expiring log of exchanges per (server, user).
// Concurrent appends to the same key race and the last write wins.
type Store struct {
	storage storage.Storage
	limit   int
	ttl     time.Duration
	logger  *logrus.Logger
	now     func() time.Time
}

// NewStore creates a new history store
func NewStore(store storage.Storage, limit int, ttl time.Duration, logger *logrus.Logger) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		storage: store,
		limit:   limit,
		ttl:     ttl,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func historyKey(serverID, userID string) string {
	return fmt.Sprintf("ai_chat_history:%s:%s", serverID, userID)
}

// Append records one exchange, evicting the oldest entries beyond the limit,
// and resets the expiry of the whole log.
func (s *Store) Append(ctx context.Context, serverID, userID, userMessage, aiResponse string) error {
	exchanges, err := s.Get(ctx, serverID, userID)
	if err != nil {
		return err
	}

	exchanges = append(exchanges, models.ChatExchange{
		Timestamp:   s.now(),
		UserMessage: userMessage,
		AIResponse:  aiResponse,
	})
	if len(exchanges) > s.limit {
		exchanges = exchanges[len(exchanges)-s.limit:]
	}

	data, err := json.Marshal(exchanges)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := s.storage.Set(ctx, historyKey(serverID, userID), data, s.ttl); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"server_id": serverID,
		"user_id":   userID,
		"entries":   len(exchanges),
	}).Debug("History updated")
	return nil
}

// Get returns the stored exchanges oldest first, or an empty slice when
// nothing is stored. It never touches the expiry.
func (s *Store) Get(ctx context.Context, serverID, userID string) ([]models.ChatExchange, error) {
	data, found, err := s.storage.Get(ctx, historyKey(serverID, userID))
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if !found {
		return []models.ChatExchange{}, nil
	}

	var exchanges []models.ChatExchange
	if err := json.Unmarshal(data, &exchanges); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"server_id": serverID,
			"user_id":   userID,
		}).Warn("Discarding unreadable history")
		return []models.ChatExchange{}, nil
	}
	if exchanges == nil {
		exchanges = []models.ChatExchange{}
	}
	return exchanges, nil
}
