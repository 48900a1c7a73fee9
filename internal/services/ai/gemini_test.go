package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL, defaultKey string) *Client {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewClient(&config.AIConfig{
		BaseURL:       baseURL,
		APIVersion:    "v1",
		Model:         "gemini-pro",
		DefaultAPIKey: defaultKey,
		Timeout:       2 * time.Second,
	}, logger)
}

const okBody = `{"candidates":[{"content":{"parts":[{"text":"Your TPS is low because of entity lag."}]}}]}`

func TestGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "request-key", r.URL.Query().Get("key"))

		var body generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body.Contents, 1)
		require.Len(t, body.Contents[0].Parts, 1)
		assert.Equal(t, "the prompt", body.Contents[0].Parts[0].Text)
		assert.Equal(t, 0.4, body.GenerationConfig.Temperature)
		assert.Equal(t, 2000, body.GenerationConfig.MaxOutputTokens)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL, "fallback").Generate(context.Background(), "the prompt", Params{
		APIKey:      "request-key",
		Temperature: 0.4,
		MaxTokens:   2000,
	})
	require.NoError(t, err)
	assert.Equal(t, "Your TPS is low because of entity lag.", text)
}

func TestGenerateUsesFallbackKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fallback", r.URL.Query().Get("key"))
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "fallback").Generate(context.Background(), "p", Params{})
	require.NoError(t, err)
}

func TestGenerateWithoutKeyMakesNoRequest(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "").Generate(context.Background(), "p", Params{APIKey: "  "})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestGenerateServerError(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"internal"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "k").Generate(context.Background(), "p", Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstream)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "no retry")
}

func TestGenerateMissingTextField(t *testing.T) {
	for name, body := range map[string]string{
		"no candidates": `{"candidates":[]}`,
		"no parts":      `{"candidates":[{"content":{"parts":[]}}]}`,
		"no text":       `{"candidates":[{"content":{"parts":[{"inlineData":{}}]}}]}`,
		"not json":      `<html>`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, "k").Generate(context.Background(), "p", Params{})
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrUpstream)
		})
	}
}

func TestGenerateUnreachableDoesNotLeakKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url, "secret-key").Generate(context.Background(), "p", Params{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUpstream)
	assert.NotContains(t, err.Error(), "secret-key")
}

func TestGenerateReturnsTextVerbatim(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"  **bold** <b>raw</b>\n"}]}}]}`))
	}))
	defer server.Close()

	text, err := newTestClient(server.URL, "k").Generate(context.Background(), "p", Params{})
	require.NoError(t, err)
	assert.Equal(t, "  **bold** <b>raw</b>\n", text)
}

func TestNewSelectsBackend(t *testing.T) {
	logger := logrus.New()

	gen, err := New(&config.AIConfig{Backend: "rest", Model: "m"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Client{}, gen)

	gen, err = New(&config.AIConfig{Backend: "sdk", Model: "m"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SDKClient{}, gen)
	assert.Equal(t, "m", gen.Model())

	_, err = New(&config.AIConfig{Backend: "grpc"}, logger)
	assert.Error(t, err)
}

func TestSDKClientWithoutKey(t *testing.T) {
	c := NewSDKClient(&config.AIConfig{Model: "gemini-pro"}, logrus.New())
	_, err := c.Generate(context.Background(), "p", Params{})
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestSDKClientAgainstStub(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-pro:generateContent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(okBody))
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := NewSDKClient(&config.AIConfig{
		BaseURL:    server.URL + "/",
		APIVersion: "v1beta",
		Model:      "gemini-pro",
		Timeout:    2 * time.Second,
	}, logger)

	text, err := c.Generate(context.Background(), "p", Params{APIKey: "k", Temperature: 0.7, MaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, "Your TPS is low because of entity lag.", text)
}

func newSDKStub(t *testing.T, body string) *SDKClient {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewSDKClient(&config.AIConfig{
		BaseURL:    server.URL + "/",
		APIVersion: "v1beta",
		Model:      "gemini-pro",
		Timeout:    2 * time.Second,
	}, logger)
}

func TestSDKClientReturnsFirstPartOnly(t *testing.T) {
	c := newSDKStub(t, `{"candidates":[{"content":{"parts":[{"text":"first"},{"text":"second"}]}}]}`)

	text, err := c.Generate(context.Background(), "p", Params{APIKey: "k", Temperature: 0.7, MaxTokens: 1000})
	require.NoError(t, err)
	assert.Equal(t, "first", text)
}

func TestSDKClientMissingText(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no candidates", `{"candidates":[]}`},
		{"no parts", `{"candidates":[{"content":{"parts":[]}}]}`},
		{"first part without text", `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"aGk="}},{"text":"later"}]}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newSDKStub(t, tt.body)
			_, err := c.Generate(context.Background(), "p", Params{APIKey: "k", Temperature: 0.7, MaxTokens: 1000})
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrUpstream)
			assert.Contains(t, err.Error(), "invalid response from Gemini API")
		})
	}
}
