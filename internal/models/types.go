package models

import (
	"time"
)

// ChatRequest is the validated inbound chat payload.
type ChatRequest struct {
	Message     string `json:"message"`
	IncludeLogs bool   `json:"include_logs"`
	FilePath    string `json:"file_path,omitempty"`
}

// Inbound request limits, counted in characters.
const (
	MaxMessageLength  = 2000
	MaxFilePathLength = 500
)

// ChatExchange is one stored user/assistant turn.
type ChatExchange struct {
	Timestamp   time.Time `json:"timestamp"`
	UserMessage string    `json:"user_message"`
	AIResponse  string    `json:"ai_response"`
}

// Settings is the global admin-controlled assistant configuration.
type Settings struct {
	GeminiAPIKey string  `json:"gemini_api_key"`
	Enabled      bool    `json:"enabled"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
}

// Settings bounds and defaults
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.7
	MinMaxTokens       = 100
	MaxMaxTokens       = 4000
	MinTemperature     = 0.0
	MaxTemperature     = 2.0
	MaxAPIKeyLength    = 255
)

// DefaultSettings returns the settings used when nothing has been stored.
func DefaultSettings() Settings {
	return Settings{
		Enabled:     true,
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}
}

// SettingsUpdate carries the fields accepted by a settings write. Nil fields are left unchanged.
type SettingsUpdate struct {
	GeminiAPIKey *string  `json:"gemini_api_key"`
	Enabled      *bool    `json:"enabled"`
	MaxTokens    *int     `json:"max_tokens"`
	Temperature  *float64 `json:"temperature"`
}

// UsageStats is a snapshot of the coarse usage counters.
type UsageStats struct {
	TotalChats  int64 `json:"total_chats"`
	ActiveUsers int64 `json:"active_users"`
}
