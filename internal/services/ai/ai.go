package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/sirupsen/logrus"
)

// maxErrorBody caps how much of an upstream error body ends up in an error message.
const maxErrorBody = 500

// Params are the per-request generation settings.
type Params struct {
	// APIKey takes priority over the deployment-level default key.
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// Generator turns one prompt into generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string, params Params) (string, error)
	Model() string
}

// New creates the generation client selected by cfg.Backend
func New(cfg *config.AIConfig, logger *logrus.Logger) (Generator, error) {
	switch cfg.Backend {
	case "", "rest":
		return NewClient(cfg, logger), nil
	case "sdk":
		return NewSDKClient(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unsupported AI backend: %s", cfg.Backend)
	}
}

// resolveKey picks the request key over the fallback. An empty result is a
// configuration error and must stop the request before any network call.
func resolveKey(requestKey, fallback string) (string, error) {
	if key := strings.TrimSpace(requestKey); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(fallback); key != "" {
		return key, nil
	}
	return "", models.ErrConfiguration
}

func truncateBody(body string) string {
	if len(body) <= maxErrorBody {
		return body
	}
	return body[:maxErrorBody] + "..."
}
