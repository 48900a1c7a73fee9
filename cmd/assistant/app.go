package main

import (
	"fmt"
	"net/http"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/handlers"
	"github.com/serverpanel/ai-assistant/internal/i18n"
	"github.com/serverpanel/ai-assistant/internal/middleware"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/internal/services/ai"
	"github.com/serverpanel/ai-assistant/internal/services/cache"
	"github.com/serverpanel/ai-assistant/internal/services/chat"
	"github.com/serverpanel/ai-assistant/internal/services/daemon"
	"github.com/serverpanel/ai-assistant/internal/services/history"
	"github.com/serverpanel/ai-assistant/internal/services/prompt"
	"github.com/serverpanel/ai-assistant/internal/services/settings"
	"github.com/serverpanel/ai-assistant/internal/services/storage"
	"github.com/serverpanel/ai-assistant/internal/services/usage"
	"github.com/sirupsen/logrus"
)

// app holds the wired service graph
type app struct {
	storage  *storage.Manager
	settings *settings.Service
	counter  *usage.Counter
	chat     *chat.Service
	limiter  *middleware.UserRateLimiter
	metrics  *middleware.Metrics
	router   http.Handler
}

// newStores builds the pieces shared by the server and the admin commands
func newStores(cfg *config.Config, log *logrus.Logger, metrics *middleware.Metrics) (*storage.Manager, storage.Storage, error) {
	manager, err := storage.NewManager(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if metrics == nil {
		return manager, manager, nil
	}
	return manager, storage.NewInstrumented(manager, metrics), nil
}

func newApp(cfg *config.Config, log *logrus.Logger) (*app, error) {
	metrics := middleware.NewMetrics()

	manager, store, err := newStores(cfg, log, metrics)
	if err != nil {
		return nil, err
	}

	generator, err := ai.New(&cfg.AI, log)
	if err != nil {
		manager.Close()
		return nil, err
	}

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		manager.Close()
		return nil, fmt.Errorf("failed to initialize i18n: %w", err)
	}

	settingsService := settings.NewService(store, log)
	settingsService.RegisterChangeListener(func(s models.Settings) {
		log.WithFields(logrus.Fields{
			"enabled":    s.Enabled,
			"max_tokens": s.MaxTokens,
		}).Info("Assistant settings changed")
	})

	daemonClient := daemon.NewClient(&cfg.Daemon, log)
	fileCache := cache.NewFileCache(daemonClient, &cfg.Cache, log)
	fileCache.SetMetrics(metrics)

	builder := prompt.NewBuilder(daemonClient, fileCache, &cfg.Chat, log)
	historyStore := history.NewStore(store, cfg.Chat.HistoryLimit, cfg.Chat.HistoryTTL, log)
	counter := usage.NewCounter(store, cfg.Chat.ActiveUserTTL, log)

	chatService := chat.NewService(settingsService, builder, generator, historyStore, counter, metrics, log)
	limiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	router := handlers.NewRouter(handlers.RouterDeps{
		Config:    &cfg.Server,
		Chat:      handlers.NewChatHandler(chatService, localizer, log),
		Admin:     handlers.NewAdminHandler(settingsService, counter, localizer, log),
		Limiter:   limiter,
		Metrics:   metrics,
		Localizer: localizer,
		Logger:    log,
		Ping:      manager.Ping,
	})

	return &app{
		storage:  manager,
		settings: settingsService,
		counter:  counter,
		chat:     chatService,
		limiter:  limiter,
		metrics:  metrics,
		router:   router,
	}, nil
}

func (a *app) Close() error {
	a.limiter.Stop()
	return a.storage.Close()
}
