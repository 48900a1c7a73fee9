package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/i18n"
	"github.com/serverpanel/ai-assistant/internal/middleware"
	"github.com/sirupsen/logrus"
)

// RouterDeps groups what the API router needs
type RouterDeps struct {
	Config    *config.ServerConfig
	Chat      *ChatHandler
	Admin     *AdminHandler
	Limiter   middleware.RateLimiter
	Metrics   *middleware.Metrics
	Localizer *i18n.Localizer
	Logger    *logrus.Logger
	// Ping reports storage reachability for /health. Optional.
	Ping func(ctx context.Context) error
}

// NewRouter builds the public API router
func NewRouter(deps RouterDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID, middleware.Logging(deps.Logger, deps.Metrics))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ping != nil {
			if err := deps.Ping(r.Context()); err != nil {
				deps.Logger.WithError(err).Warn("Health check failed")
				middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	user := router.PathPrefix("/servers/{id}/ai").Subrouter()
	user.Use(middleware.Identity(deps.Config.UserHeader, deps.Localizer))
	user.Handle("/chat", deps.Chat.ValidateRequest(
		middleware.RateLimit(deps.Limiter, deps.Metrics, deps.Localizer)(http.HandlerFunc(deps.Chat.Chat)),
	)).Methods(http.MethodPost)
	user.HandleFunc("/history", deps.Chat.History).Methods(http.MethodGet)

	if deps.Config.AdminToken != "" && deps.Admin != nil {
		admin := router.PathPrefix("/admin/ai").Subrouter()
		admin.Use(middleware.AdminAuth(deps.Config.AdminToken, deps.Localizer))
		admin.HandleFunc("/settings", deps.Admin.GetSettings).Methods(http.MethodGet)
		admin.HandleFunc("/settings", deps.Admin.UpdateSettings).Methods(http.MethodPut)
		admin.HandleFunc("/stats", deps.Admin.Stats).Methods(http.MethodGet)
	} else {
		deps.Logger.Info("Admin token not configured, admin routes disabled")
	}

	return router
}
