package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/serverpanel/ai-assistant/internal/i18n"
	"github.com/serverpanel/ai-assistant/internal/middleware"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/internal/services/settings"
	"github.com/sirupsen/logrus"
)

// SettingsService is the admin side of the settings store.
type SettingsService interface {
	Current(ctx context.Context) (*models.Settings, error)
	Update(ctx context.Context, update models.SettingsUpdate) (*models.Settings, error)
}

// StatsReader exposes the usage counters.
type StatsReader interface {
	Stats(ctx context.Context) (*models.UsageStats, error)
}

// AdminHandler serves the operator settings and stats endpoints
type AdminHandler struct {
	settings  SettingsService
	stats     StatsReader
	localizer *i18n.Localizer
	logger    *logrus.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(settingsService SettingsService, stats StatsReader, localizer *i18n.Localizer, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		settings:  settingsService,
		stats:     stats,
		localizer: localizer,
		logger:    logger,
	}
}

// SettingsView is the settings as shown to operators. The key is never echoed back.
type SettingsView struct {
	GeminiAPIKey    string  `json:"gemini_api_key"`
	GeminiAPIKeySet bool    `json:"gemini_api_key_set"`
	Enabled         bool    `json:"enabled"`
	MaxTokens       int     `json:"max_tokens"`
	Temperature     float64 `json:"temperature"`
}

// NewSettingsView masks s for display
func NewSettingsView(s *models.Settings) SettingsView {
	return SettingsView{
		GeminiAPIKey:    settings.MaskAPIKey(s.GeminiAPIKey),
		GeminiAPIKeySet: s.GeminiAPIKey != "",
		Enabled:         s.Enabled,
		MaxTokens:       s.MaxTokens,
		Temperature:     s.Temperature,
	}
}

// GetSettings handles GET /admin/ai/settings
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	current, err := h.settings.Current(r.Context())
	if err != nil {
		h.internalError(w, r, err, "Failed to load settings")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": NewSettingsView(current),
	})
}

// UpdateSettings handles PUT /admin/ai/settings
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	lang := r.Header.Get("Accept-Language")

	var update models.SettingsUpdate
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, h.localizer.Get(lang, i18n.MsgInvalidBody, nil))
		return
	}

	updated, err := h.settings.Update(r.Context(), update)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, h.localizer.Get(lang, i18n.MsgSettingsInvalid, map[string]interface{}{
				"Cause": err.Error(),
			}))
			return
		}
		h.internalError(w, r, err, "Failed to update settings")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"settings": NewSettingsView(updated),
	})
}

// Stats handles GET /admin/ai/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.internalError(w, r, err, "Failed to load usage stats")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

func (h *AdminHandler) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.WithError(err).WithField("request_id", middleware.RequestIDFromContext(r.Context())).Error(msg)
	middleware.WriteError(w, http.StatusInternalServerError,
		h.localizer.Get(r.Header.Get("Accept-Language"), i18n.MsgInternalError, nil))
}
