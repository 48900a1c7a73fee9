package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// SDKClient generates text through the google genai client library.
// The API key can change at runtime, so a client is built per call.
type SDKClient struct {
	baseURL    string
	apiVersion string
	model      string
	defaultKey string
	timeout    time.Duration
	logger     *logrus.Logger
}

// NewSDKClient creates a new genai-backed generation client
func NewSDKClient(cfg *config.AIConfig, logger *logrus.Logger) *SDKClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SDKClient{
		baseURL:    cfg.BaseURL,
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		defaultKey: cfg.DefaultAPIKey,
		timeout:    timeout,
		logger:     logger,
	}
}

// Model returns the configured model name
func (c *SDKClient) Model() string {
	return c.model
}

// Generate sends the prompt and returns the response text.
func (c *SDKClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	apiKey, err := resolveKey(params.APIKey, c.defaultKey)
	if err != nil {
		return "", err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client, err := genai.NewClient(reqCtx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    c.baseURL,
			APIVersion: c.apiVersion,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to create GenAI client: %v", models.ErrUpstream, err)
	}

	c.logger.WithFields(logrus.Fields{
		"model":      c.model,
		"prompt_len": len(prompt),
	}).Debug("Sending generation request via SDK")

	resp, err := client.Models.GenerateContent(reqCtx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(params.Temperature)),
		MaxOutputTokens: int32(params.MaxTokens),
	})
	if err != nil {
		c.logger.WithError(err).Error("Generation request failed")
		return "", fmt.Errorf("%w: %s", models.ErrUpstream, truncateBody(err.Error()))
	}

	// Only the first part of the first candidate is the answer; a part
	// without text (inline data, function call) counts as missing.
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 || resp.Candidates[0].Content.Parts[0] == nil ||
		resp.Candidates[0].Content.Parts[0].Text == "" {
		return "", fmt.Errorf("%w: invalid response from Gemini API", models.ErrUpstream)
	}

	return resp.Candidates[0].Content.Parts[0].Text, nil
}
