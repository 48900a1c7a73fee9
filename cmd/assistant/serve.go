package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/serverpanel/ai-assistant/internal/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	log.Info("Starting AI assistant...")

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      a.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var metricsServer *http.Server
	if cfg.Monitoring.Metrics.Enabled {
		metricsServer = middleware.NewMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"port":    cfg.Server.Port,
			"backend": cfg.AI.Backend,
			"model":   cfg.AI.Model,
			"storage": cfg.Storage.Type,
		}).Info("API server listening")
		return listen(apiServer)
	})

	if metricsServer != nil {
		g.Go(func() error {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")
			return listen(metricsServer)
		})
	}

	g.Go(func() error {
		startPeriodicTasks(gctx, a, cfg.Monitoring.StatsInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("API server shutdown failed")
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Error("Metrics server shutdown failed")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("AI assistant stopped")
	return nil
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server on %s failed: %w", server.Addr, err)
	}
	return nil
}

// startPeriodicTasks refreshes the usage gauges until ctx is done
func startPeriodicTasks(ctx context.Context, a *app, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	refreshUsageGauges(ctx, a)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshUsageGauges(ctx, a)
		}
	}
}

func refreshUsageGauges(ctx context.Context, a *app) {
	stats, err := a.counter.Stats(ctx)
	if err != nil {
		log.WithError(err).Warn("Failed to refresh usage metrics")
		return
	}
	a.metrics.SetTotalChats(float64(stats.TotalChats))
	a.metrics.SetActiveUsers(float64(stats.ActiveUsers))
}
