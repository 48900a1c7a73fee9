package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/serverpanel/ai-assistant/internal/config"
	"github.com/serverpanel/ai-assistant/internal/models"
	"github.com/serverpanel/ai-assistant/internal/services/ai"
	"github.com/serverpanel/ai-assistant/internal/services/history"
	"github.com/serverpanel/ai-assistant/internal/services/prompt"
	"github.com/serverpanel/ai-assistant/internal/services/settings"
	"github.com/serverpanel/ai-assistant/internal/services/storage"
	"github.com/serverpanel/ai-assistant/internal/services/usage"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings struct {
	current models.Settings
	err     error
}

func (f *fakeSettings) Current(ctx context.Context) (*models.Settings, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := f.current
	return &c, nil
}

type fakeBuilder struct {
	calls int
}

func (f *fakeBuilder) Build(ctx context.Context, serverID, message string, includeLogs bool, filePath string) string {
	f.calls++
	return "prompt:" + message
}

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
	params   []ai.Params
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string, params ai.Params) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.params = append(f.params, params)
	return f.response, f.err
}

func (f *fakeGenerator) Model() string { return "fake" }

type fakeHistory struct {
	appended []models.ChatExchange
	err      error
}

func (f *fakeHistory) Append(ctx context.Context, serverID, userID, userMessage, aiResponse string) error {
	if f.err != nil {
		return f.err
	}
	f.appended = append(f.appended, models.ChatExchange{UserMessage: userMessage, AIResponse: aiResponse})
	return nil
}

func (f *fakeHistory) Get(ctx context.Context, serverID, userID string) ([]models.ChatExchange, error) {
	return f.appended, nil
}

type fakeUsage struct {
	users []string
	err   error
}

func (f *fakeUsage) RecordChat(ctx context.Context, userID string) error {
	if f.err != nil {
		return f.err
	}
	f.users = append(f.users, userID)
	return nil
}

type fakeMetrics struct {
	outcomes []string
	ai       []string
}

func (f *fakeMetrics) RecordChat(outcome string) { f.outcomes = append(f.outcomes, outcome) }
func (f *fakeMetrics) RecordAIRequest(model, status string, duration time.Duration) {
	f.ai = append(f.ai, status)
}

type fixture struct {
	settings  *fakeSettings
	builder   *fakeBuilder
	generator *fakeGenerator
	history   *fakeHistory
	usage     *fakeUsage
	metrics   *fakeMetrics
	hook      *test.Hook
	service   *Service
}

func newFixture() *fixture {
	logger, hook := test.NewNullLogger()
	f := &fixture{
		settings:  &fakeSettings{current: models.DefaultSettings()},
		builder:   &fakeBuilder{},
		generator: &fakeGenerator{response: "answer"},
		history:   &fakeHistory{},
		usage:     &fakeUsage{},
		metrics:   &fakeMetrics{},
		hook:      hook,
	}
	f.settings.current.GeminiAPIKey = "key"
	f.service = NewService(f.settings, f.builder, f.generator, f.history, f.usage, f.metrics, logger)
	return f
}

func TestProcessChatSuccess(t *testing.T) {
	f := newFixture()
	f.settings.current.Temperature = 1.2
	f.settings.current.MaxTokens = 3000

	got, err := f.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	require.Len(t, f.generator.prompts, 1)
	assert.Equal(t, "prompt:hello", f.generator.prompts[0])
	assert.Equal(t, ai.Params{APIKey: "key", Temperature: 1.2, MaxTokens: 3000}, f.generator.params[0])
	assert.Equal(t, []models.ChatExchange{{UserMessage: "hello", AIResponse: "answer"}}, f.history.appended)
	assert.Equal(t, []string{"u1"}, f.usage.users)
	assert.Equal(t, []string{OutcomeSuccess}, f.metrics.outcomes)
	assert.Equal(t, []string{"success"}, f.metrics.ai)
}

func TestProcessChatDisabled(t *testing.T) {
	f := newFixture()
	f.settings.current.Enabled = false

	_, err := f.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{Message: "hello"})
	assert.ErrorIs(t, err, models.ErrFeatureDisabled)
	assert.Equal(t, 0, f.builder.calls)
	assert.Empty(t, f.generator.prompts)
	assert.Empty(t, f.history.appended)
	assert.Empty(t, f.usage.users)
	assert.Equal(t, []string{OutcomeDisabled}, f.metrics.outcomes)
}

func TestProcessChatUpstreamFailureStoresNothing(t *testing.T) {
	f := newFixture()
	f.generator.err = fmt.Errorf("%w: status 500", models.ErrUpstream)

	_, err := f.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{Message: "hello"})
	assert.ErrorIs(t, err, models.ErrUpstream)
	assert.Empty(t, f.history.appended)
	assert.Empty(t, f.usage.users)
	assert.Equal(t, []string{OutcomeUpstream}, f.metrics.outcomes)
	assert.Equal(t, []string{"error"}, f.metrics.ai)
}

func TestProcessChatConfigurationError(t *testing.T) {
	f := newFixture()
	f.generator.err = models.ErrConfiguration

	_, err := f.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{Message: "hello"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Empty(t, f.history.appended)
	assert.Equal(t, []string{OutcomeConfiguration}, f.metrics.outcomes)
	assert.Empty(t, f.metrics.ai)
}

func TestProcessChatHousekeepingFailuresAreAbsorbed(t *testing.T) {
	f := newFixture()
	f.history.err = errors.New("redis down")
	f.usage.err = errors.New("redis down")

	got, err := f.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "answer", got)

	var warnings []string
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings = append(warnings, e.Message)
		}
	}
	assert.Contains(t, warnings, "Failed to save chat history")
	assert.Contains(t, warnings, "Failed to record usage")
}

func TestProcessChatSettingsFailureAborts(t *testing.T) {
	f := newFixture()
	f.settings.current.Enabled = false
	f.settings.err = errors.New("redis: connection refused")

	response, err := f.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{Message: "hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Contains(t, err.Error(), "failed to load settings")
	assert.Empty(t, response)

	assert.Equal(t, 0, f.builder.calls)
	assert.Empty(t, f.generator.prompts)
	assert.Empty(t, f.history.appended)
	assert.Empty(t, f.usage.users)
	assert.Equal(t, []string{OutcomeConfiguration}, f.metrics.outcomes)
}

func TestGetHistoryPassesThrough(t *testing.T) {
	f := newFixture()
	f.history.appended = []models.ChatExchange{{UserMessage: "q", AIResponse: "a"}}

	got, err := f.service.GetHistory(context.Background(), "srv", "u1")
	require.NoError(t, err)
	assert.Equal(t, f.history.appended, got)
	assert.Empty(t, f.usage.users)
}

// The remaining tests wire the real collaborators over in-memory storage.

type stubLogs struct {
	err error
}

func (s stubLogs) RecentLogs(ctx context.Context, serverID string, lines int) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "[Server thread/WARN]: Can't keep up! Is the server overloaded?", nil
}

type stubFiles struct {
	err error
}

func (s stubFiles) FileContents(ctx context.Context, serverID, path string) (string, error) {
	return "view-distance=32", s.err
}

type stack struct {
	service  *Service
	settings *settings.Service
	history  *history.Store
	usage    *usage.Counter
	upstream *upstreamRecorder
}

type upstreamRecorder struct {
	mu      sync.Mutex
	prompts []string
}

func (u *upstreamRecorder) record(prompt string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompts = append(u.prompts, prompt)
}

func (u *upstreamRecorder) sent() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.prompts...)
}

func newStack(t *testing.T, status int, body string, logs prompt.LogSource, files prompt.FileSource) *stack {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	rec := &upstreamRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		text := ""
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Contents) > 0 && len(req.Contents[0].Parts) > 0 {
			text = req.Contents[0].Parts[0].Text
		}
		rec.record(text)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	mem := storage.NewMemoryStorage(time.Minute, logger)
	settingsService := settings.NewService(mem, logger)
	historyStore := history.NewStore(mem, 50, time.Hour, logger)
	counter := usage.NewCounter(mem, time.Hour, logger)
	chatCfg := &config.ChatConfig{LogLines: 30, MaxFileChars: 5000, SourceTimeout: time.Second}
	builder := prompt.NewBuilder(logs, files, chatCfg, logger)
	generator := ai.NewClient(&config.AIConfig{
		BaseURL:    server.URL,
		APIVersion: "v1",
		Model:      "gemini-pro",
		Timeout:    2 * time.Second,
	}, logger)

	return &stack{
		service:  NewService(settingsService, builder, generator, historyStore, counter, nil, logger),
		settings: settingsService,
		history:  historyStore,
		usage:    counter,
		upstream: rec,
	}
}

const okBody = `{"candidates":[{"content":{"parts":[{"text":"Reduce your view distance."}]}}]}`

func setKey(t *testing.T, s *settings.Service) {
	t.Helper()
	key := "AIza-test"
	_, err := s.Update(context.Background(), models.SettingsUpdate{GeminiAPIKey: &key})
	require.NoError(t, err)
}

func TestLaggingServerScenario(t *testing.T) {
	s := newStack(t, http.StatusOK, okBody, stubLogs{}, stubFiles{})
	setKey(t, s.settings)
	ctx := context.Background()

	got, err := s.service.ProcessChat(ctx, "srv", "u1", models.ChatRequest{
		Message:     "What's lagging my server?",
		IncludeLogs: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Reduce your view distance.", got)

	require.Len(t, s.upstream.sent(), 1)
	sent := s.upstream.sent()[0]
	assert.True(t, strings.HasPrefix(sent, "User message: What's lagging my server?\n\nRecent console logs:\n"))
	assert.Contains(t, sent, "Can't keep up!")

	exchanges, err := s.history.Get(ctx, "srv", "u1")
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "What's lagging my server?", exchanges[0].UserMessage)

	stats, err := s.usage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.TotalChats)
	assert.Equal(t, int64(1), stats.ActiveUsers)
}

func TestSourceFailuresStillSucceed(t *testing.T) {
	s := newStack(t, http.StatusOK, okBody, stubLogs{err: errors.New("daemon offline")}, stubFiles{err: errors.New("permission denied")})
	setKey(t, s.settings)

	_, err := s.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{
		Message:     "help",
		IncludeLogs: true,
		FilePath:    "/server.properties",
	})
	require.NoError(t, err)

	require.Len(t, s.upstream.sent(), 1)
	sent := s.upstream.sent()[0]
	assert.Contains(t, sent, "Console logs not available: daemon offline")
	assert.Contains(t, sent, "Unable to read file: permission denied")
}

func TestNoKeyAnywhereMakesNoGenerationCall(t *testing.T) {
	s := newStack(t, http.StatusOK, okBody, stubLogs{}, stubFiles{})

	_, err := s.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, models.ErrConfiguration)
	assert.Empty(t, s.upstream.sent())
}

func TestUpstream500LeavesStoresUnchanged(t *testing.T) {
	s := newStack(t, http.StatusInternalServerError, `{"error":{"code":500}}`, stubLogs{}, stubFiles{})
	setKey(t, s.settings)
	ctx := context.Background()

	_, err := s.service.ProcessChat(ctx, "srv", "u1", models.ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, models.ErrUpstream)

	exchanges, err := s.history.Get(ctx, "srv", "u1")
	require.NoError(t, err)
	assert.Empty(t, exchanges)

	stats, err := s.usage.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalChats)
	assert.Equal(t, int64(0), stats.ActiveUsers)
}

func TestDisabledLeavesStoresUnchanged(t *testing.T) {
	s := newStack(t, http.StatusOK, okBody, stubLogs{}, stubFiles{})
	setKey(t, s.settings)
	disabled := false
	_, err := s.settings.Update(context.Background(), models.SettingsUpdate{Enabled: &disabled})
	require.NoError(t, err)

	_, err = s.service.ProcessChat(context.Background(), "srv", "u1", models.ChatRequest{Message: "hi"})
	assert.ErrorIs(t, err, models.ErrFeatureDisabled)
	assert.Empty(t, s.upstream.sent())

	stats, err := s.usage.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalChats)
}
