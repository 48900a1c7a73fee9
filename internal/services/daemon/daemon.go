package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps how much of a daemon response is read.
const maxBodyBytes = 1 << 20

// Client talks to the node daemon that hosts the game servers.
// It serves as both the console log source and the file source.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new daemon client
func NewClient(cfg *config.DaemonConfig, logger *logrus.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// RecentLogs returns up to lines of the server's most recent console output.
func (c *Client) RecentLogs(ctx context.Context, serverID string, lines int) (string, error) {
	query := url.Values{}
	query.Set("lines", strconv.Itoa(lines))

	endpoint := fmt.Sprintf("%s/api/servers/%s/logs?%s", c.baseURL, url.PathEscape(serverID), query.Encode())
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return "", err
	}
	return body, nil
}

// FileContents returns the raw content of a file on the server.
func (c *Client) FileContents(ctx context.Context, serverID, path string) (string, error) {
	query := url.Values{}
	query.Set("file", path)

	endpoint := fmt.Sprintf("%s/api/servers/%s/files/contents?%s", c.baseURL, url.PathEscape(serverID), query.Encode())
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return "", err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (string, error) {
	if c.baseURL == "" {
		return "", fmt.Errorf("%w: daemon URL not configured", models.ErrSourceUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", models.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "text/plain, application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.WithField("url", endpoint).Debug("Sending daemon request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", models.ErrSourceUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.WithFields(logrus.Fields{
			"url":    endpoint,
			"status": resp.StatusCode,
		}).Warn("Daemon request failed")
		return "", fmt.Errorf("%w: %s", models.ErrSourceUnavailable, describeStatus(resp.StatusCode))
	}

	return string(body), nil
}

func describeStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "file or endpoint not found"
	case http.StatusUnauthorized, http.StatusForbidden:
		return "permission denied"
	case http.StatusRequestEntityTooLarge:
		return "file is too large"
	default:
		return fmt.Sprintf("daemon returned status %d", status)
	}
}
