package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/pkg/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string

	cfg *config.Config
	log *logrus.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "assistant",
		Short: "AI chat assistant for game server panels",
		Long: `assistant proxies chat questions about a game server to Gemini.

It enriches each question with recent console output and file excerpts fetched
from the node daemon, keeps a short per-user history, and counts usage.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load env file: %w", err)
			}

			var err error
			cfg, err = config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			log, err = logger.NewLogger(&cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	root.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to .env file")

	root.AddCommand(newServeCmd(), newSettingsCmd(), newStatsCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
