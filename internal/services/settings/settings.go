package settings

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"unicode/utf8"

	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// Setting keys as stored in the key-value store.
const (
	KeyGeminiAPIKey = "ai::gemini_api_key"
	KeyEnabled      = "ai::enabled"
	KeyMaxTokens    = "ai::max_tokens"
	KeyTemperature  = "ai::temperature"
)

// Reader is the read side consumed by the chat orchestrator.
type Reader interface {
	Current(ctx context.Context) (*models.Settings, error)
}

// Service manages the runtime assistant settings
type Service struct {
	store     storage.Storage
	logger    *logrus.Logger
	mu        sync.RWMutex
	listeners []func(models.Settings)
}

// NewService creates a new settings service
func NewService(store storage.Storage, logger *logrus.Logger) *Service {
	return &Service{
		store:     store,
		logger:    logger,
		listeners: make([]func(models.Settings), 0),
	}
}

// Current returns the stored settings with typed defaults for every missing key.
func (s *Service) Current(ctx context.Context) (*models.Settings, error) {
	current := models.DefaultSettings()

	apiKey, err := s.GetString(ctx, KeyGeminiAPIKey, "")
	if err != nil {
		return nil, err
	}
	current.GeminiAPIKey = apiKey

	if current.Enabled, err = s.GetBool(ctx, KeyEnabled, current.Enabled); err != nil {
		return nil, err
	}
	if current.MaxTokens, err = s.GetInt(ctx, KeyMaxTokens, current.MaxTokens); err != nil {
		return nil, err
	}
	if current.Temperature, err = s.GetFloat(ctx, KeyTemperature, current.Temperature); err != nil {
		return nil, err
	}

	return &current, nil
}

// Update validates and persists the provided fields, then notifies listeners.
func (s *Service) Update(ctx context.Context, update models.SettingsUpdate) (*models.Settings, error) {
	if err := Validate(update); err != nil {
		return nil, err
	}

	if update.GeminiAPIKey != nil {
		if err := s.Set(ctx, KeyGeminiAPIKey, *update.GeminiAPIKey); err != nil {
			return nil, err
		}
	}
	if update.Enabled != nil {
		if err := s.Set(ctx, KeyEnabled, strconv.FormatBool(*update.Enabled)); err != nil {
			return nil, err
		}
	}
	if update.MaxTokens != nil {
		if err := s.Set(ctx, KeyMaxTokens, strconv.Itoa(*update.MaxTokens)); err != nil {
			return nil, err
		}
	}
	if update.Temperature != nil {
		if err := s.Set(ctx, KeyTemperature, strconv.FormatFloat(*update.Temperature, 'f', -1, 64)); err != nil {
			return nil, err
		}
	}

	current, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"enabled":     current.Enabled,
		"max_tokens":  current.MaxTokens,
		"temperature": current.Temperature,
		"api_key_set": current.GeminiAPIKey != "",
	}).Info("AI settings updated")

	s.notifyChange(*current)
	return current, nil
}

// Validate checks an update against the admin form rules.
func Validate(update models.SettingsUpdate) error {
	if update.GeminiAPIKey != nil && utf8.RuneCountInString(*update.GeminiAPIKey) > models.MaxAPIKeyLength {
		return fmt.Errorf("%w: gemini_api_key cannot exceed %d characters", models.ErrValidation, models.MaxAPIKeyLength)
	}
	if update.MaxTokens != nil && (*update.MaxTokens < models.MinMaxTokens || *update.MaxTokens > models.MaxMaxTokens) {
		return fmt.Errorf("%w: max_tokens must be between %d and %d", models.ErrValidation, models.MinMaxTokens, models.MaxMaxTokens)
	}
	if update.Temperature != nil && (*update.Temperature < models.MinTemperature || *update.Temperature > models.MaxTemperature) {
		return fmt.Errorf("%w: temperature must be between %g and %g", models.ErrValidation, models.MinTemperature, models.MaxTemperature)
	}
	return nil
}

// RegisterChangeListener registers a callback for settings changes
func (s *Service) RegisterChangeListener(listener func(models.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

func (s *Service) notifyChange(current models.Settings) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, listener := range s.listeners {
		listener(current)
	}
}

// Set stores a raw setting value without expiry.
func (s *Service) Set(ctx context.Context, key, value string) error {
	if err := s.store.Set(ctx, key, []byte(value), storage.NoExpiration); err != nil {
		return fmt.Errorf("failed to save setting %s: %w", key, err)
	}
	return nil
}

// GetString returns the stored value or def when the key is absent.
func (s *Service) GetString(ctx context.Context, key, def string) (string, error) {
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	if !found {
		return def, nil
	}
	return string(raw), nil
}

// GetBool returns the stored boolean, falling back to def when absent or unparsable.
func (s *Service) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	raw, err := s.GetString(ctx, key, "")
	if err != nil || raw == "" {
		return def, err
	}
	v, perr := strconv.ParseBool(raw)
	if perr != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "value": raw}).Warn("Invalid boolean setting, using default")
		return def, nil
	}
	return v, nil
}

// GetInt returns the stored integer, falling back to def when absent or unparsable.
func (s *Service) GetInt(ctx context.Context, key string, def int) (int, error) {
	raw, err := s.GetString(ctx, key, "")
	if err != nil || raw == "" {
		return def, err
	}
	v, perr := strconv.Atoi(raw)
	if perr != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "value": raw}).Warn("Invalid integer setting, using default")
		return def, nil
	}
	return v, nil
}

// GetFloat returns the stored float, falling back to def when absent or unparsable.
func (s *Service) GetFloat(ctx context.Context, key string, def float64) (float64, error) {
	raw, err := s.GetString(ctx, key, "")
	if err != nil || raw == "" {
		return def, err
	}
	v, perr := strconv.ParseFloat(raw, 64)
	if perr != nil {
		s.logger.WithFields(logrus.Fields{"key": key, "value": raw}).Warn("Invalid float setting, using default")
		return def, nil
	}
	return v, nil
}

// MaskAPIKey hides all but the last four characters of a key for display.
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}
	runes := []rune(key)
	if len(runes) <= 4 {
		return "****"
	}
	return "****" + string(runes[len(runes)-4:])
}
