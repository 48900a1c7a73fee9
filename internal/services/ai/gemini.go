package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/sirupsen/logrus"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Client calls the generateContent REST endpoint directly.
// Each call is a single attempt; nothing is retried.
type Client struct {
	baseURL    string
	apiVersion string
	model      string
	defaultKey string
	timeout    time.Duration
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new REST generation client
func NewClient(cfg *config.AIConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v1"
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiVersion: apiVersion,
		model:      cfg.Model,
		defaultKey: cfg.DefaultAPIKey,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Generate sends the prompt and returns the first candidate's text verbatim.
func (c *Client) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	apiKey, err := resolveKey(params.APIKey, c.defaultKey)
	if err != nil {
		return "", err
	}

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     params.Temperature,
			MaxOutputTokens: params.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s",
		c.baseURL, c.apiVersion, url.PathEscape(c.model), url.QueryEscape(apiKey))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", models.ErrUpstream, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.WithFields(logrus.Fields{
		"model":       c.model,
		"prompt_len":  len(prompt),
		"max_tokens":  params.MaxTokens,
		"temperature": params.Temperature,
	}).Debug("Sending generation request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The key travels in the query string, so never echo the URL back.
		return "", fmt.Errorf("%w: failed to send request: %v", models.ErrUpstream, redactURLError(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", models.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   truncateBody(string(body)),
		}).Error("Generation request failed")
		return "", fmt.Errorf("%w: status %d: %s", models.ErrUpstream, resp.StatusCode, truncateBody(string(body)))
	}

	var result generateResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", models.ErrUpstream, err)
	}

	if len(result.Candidates) == 0 ||
		len(result.Candidates[0].Content.Parts) == 0 ||
		result.Candidates[0].Content.Parts[0].Text == nil {
		return "", fmt.Errorf("%w: invalid response from Gemini API", models.ErrUpstream)
	}

	return *result.Candidates[0].Content.Parts[0].Text, nil
}

func redactURLError(err error) error {
	if urlErr, ok := err.(*url.Error); ok {
		return urlErr.Err
	}
	return err
}
