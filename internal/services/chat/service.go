package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/internal/services/ai"
	"github.com/serverpanel/ai-assistant/internal/services/settings"
	"github.com/serverpanel/ai-assistant/internal/services/usage"
	"github.com/serverpanel/ai-assistant/pkg/logger"
	"github.com/sirupsen/logrus"
)

// Chat outcomes reported to metrics
const (
	OutcomeSuccess       = "success"
	OutcomeDisabled      = "disabled"
	OutcomeConfiguration = "config_error"
	OutcomeUpstream      = "upstream_error"
	OutcomeError         = "error"
)

// PromptBuilder assembles the prompt for one turn.
type PromptBuilder interface {
	Build(ctx context.Context, serverID, message string, includeLogs bool, filePath string) string
}

// HistoryStore persists exchanges per (server, user).
type HistoryStore interface {
	Append(ctx context.Context, serverID, userID, userMessage, aiResponse string) error
	Get(ctx context.Context, serverID, userID string) ([]models.ChatExchange, error)
}

// MetricsRecorder receives chat and generation outcomes.
type MetricsRecorder interface {
	RecordChat(outcome string)
	RecordAIRequest(model, status string, duration time.Duration)
}

// Service runs the chat pipeline: settings check, prompt, generation, then
// best-effort housekeeping.
type Service struct {
	settings  settings.Reader
	builder   PromptBuilder
	generator ai.Generator
	history   HistoryStore
	usage     usage.Recorder
	metrics   MetricsRecorder
	logger    *logrus.Logger
}

// NewService creates a new chat service
func NewService(
	settingsReader settings.Reader,
	builder PromptBuilder,
	generator ai.Generator,
	history HistoryStore,
	recorder usage.Recorder,
	metrics MetricsRecorder,
	logger *logrus.Logger,
) *Service {
	return &Service{
		settings:  settingsReader,
		builder:   builder,
		generator: generator,
		history:   history,
		usage:     recorder,
		metrics:   metrics,
		logger:    logger,
	}
}

// ProcessChat answers one request. It fails only with ErrFeatureDisabled,
// ErrConfiguration or ErrUpstream; nothing is stored on failure.
func (s *Service) ProcessChat(ctx context.Context, serverID, userID string, req models.ChatRequest) (string, error) {
	log := logger.WithChat(s.logger, serverID, userID)

	current, err := s.settings.Current(ctx)
	if err != nil {
		s.recordChat(OutcomeConfiguration)
		log.WithError(err).Error("Failed to load settings")
		return "", fmt.Errorf("%w: failed to load settings: %v", models.ErrConfiguration, err)
	}
	if !current.Enabled {
		s.recordChat(OutcomeDisabled)
		return "", models.ErrFeatureDisabled
	}

	prompt := s.builder.Build(ctx, serverID, req.Message, req.IncludeLogs, req.FilePath)

	start := time.Now()
	response, err := s.generator.Generate(ctx, prompt, ai.Params{
		APIKey:      current.GeminiAPIKey,
		Temperature: current.Temperature,
		MaxTokens:   current.MaxTokens,
	})
	duration := time.Since(start)

	if err != nil {
		outcome := classify(err)
		s.recordChat(outcome)
		if s.metrics != nil && outcome != OutcomeConfiguration {
			s.metrics.RecordAIRequest(s.generator.Model(), "error", duration)
		}
		log.WithError(err).WithField("outcome", outcome).Error("Chat request failed")
		return "", err
	}

	if s.metrics != nil {
		s.metrics.RecordAIRequest(s.generator.Model(), "success", duration)
	}

	if err := s.history.Append(ctx, serverID, userID, req.Message, response); err != nil {
		log.WithError(err).Warn("Failed to save chat history")
	}
	if err := s.usage.RecordChat(ctx, userID); err != nil {
		log.WithError(err).Warn("Failed to record usage")
	}

	s.recordChat(OutcomeSuccess)
	log.WithFields(logrus.Fields{
		"duration":     duration,
		"prompt_len":   len(prompt),
		"response_len": len(response),
		"include_logs": req.IncludeLogs,
		"has_file":     req.FilePath != "",
	}).Info("Chat request processed")

	return response, nil
}

// GetHistory returns the stored exchanges for the pair, oldest first.
func (s *Service) GetHistory(ctx context.Context, serverID, userID string) ([]models.ChatExchange, error) {
	return s.history.Get(ctx, serverID, userID)
}

func (s *Service) recordChat(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordChat(outcome)
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, models.ErrConfiguration):
		return OutcomeConfiguration
	case errors.Is(err, models.ErrUpstream):
		return OutcomeUpstream
	default:
		return OutcomeError
	}
}
