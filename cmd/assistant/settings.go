package main

import (
	"encoding/json"
	"fmt"

	"github.com/serverpanel/ai-assistant/internal/handlers"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/internal/services/settings"
	"github.com/serverpanel/ai-assistant/internal/services/storage"
	"github.com/serverpanel/ai-assistant/internal/services/usage"
	"github.com/spf13/cobra"
)

func newSettingsCmd() *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the assistant settings",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, svc, err := openSettings(cmd)
			if err != nil {
				return err
			}
			defer manager.Close()

			current, err := svc.Current(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, handlers.NewSettingsView(current))
		},
	}

	var (
		apiKey      string
		enabled     bool
		maxTokens   int
		temperature float64
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Change one or more settings",
		Example: `  assistant settings set --api-key AIza... --max-tokens 2000
  assistant settings set --enabled=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var update models.SettingsUpdate
			flags := cmd.Flags()
			if flags.Changed("api-key") {
				update.GeminiAPIKey = &apiKey
			}
			if flags.Changed("enabled") {
				update.Enabled = &enabled
			}
			if flags.Changed("max-tokens") {
				update.MaxTokens = &maxTokens
			}
			if flags.Changed("temperature") {
				update.Temperature = &temperature
			}
			if update == (models.SettingsUpdate{}) {
				return fmt.Errorf("nothing to update: pass at least one flag")
			}
			if err := settings.Validate(update); err != nil {
				return err
			}

			manager, svc, err := openSettings(cmd)
			if err != nil {
				return err
			}
			defer manager.Close()

			updated, err := svc.Update(cmd.Context(), update)
			if err != nil {
				return err
			}
			return printJSON(cmd, handlers.NewSettingsView(updated))
		},
	}
	setCmd.Flags().StringVar(&apiKey, "api-key", "", "Gemini API key (empty string clears it)")
	setCmd.Flags().BoolVar(&enabled, "enabled", true, "Enable or disable the assistant")
	setCmd.Flags().IntVar(&maxTokens, "max-tokens", models.DefaultMaxTokens, "Maximum output tokens (100-4000)")
	setCmd.Flags().Float64Var(&temperature, "temperature", models.DefaultTemperature, "Sampling temperature (0-2)")

	settingsCmd.AddCommand(showCmd, setCmd)
	return settingsCmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the usage counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			warnEphemeral(cmd)
			manager, store, err := newStores(cfg, log, nil)
			if err != nil {
				return err
			}
			defer manager.Close()

			stats, err := usage.NewCounter(store, cfg.Chat.ActiveUserTTL, log).Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		},
	}
}

func openSettings(cmd *cobra.Command) (*storage.Manager, *settings.Service, error) {
	warnEphemeral(cmd)
	manager, store, err := newStores(cfg, log, nil)
	if err != nil {
		return nil, nil, err
	}
	return manager, settings.NewService(store, log), nil
}

// warnEphemeral notes that a memory backend does not outlive this process.
func warnEphemeral(cmd *cobra.Command) {
	if cfg.Storage.Type != "redis" {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: storage type is not redis; values are not shared with a running server")
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
