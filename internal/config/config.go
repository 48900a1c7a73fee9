package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	AI         AIConfig         `mapstructure:"ai"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Daemon     DaemonConfig     `mapstructure:"daemon"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// UserHeader carries the user id set by the authenticating proxy in front of us.
	UserHeader string `mapstructure:"user_header"`
	AdminToken string `mapstructure:"admin_token"`
}

type AIConfig struct {
	// Backend selects the generation client: "rest" or "sdk".
	Backend       string        `mapstructure:"backend"`
	BaseURL       string        `mapstructure:"base_url"`
	APIVersion    string        `mapstructure:"api_version"`
	Model         string        `mapstructure:"model"`
	DefaultAPIKey string        `mapstructure:"default_api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type ChatConfig struct {
	LogLines      int           `mapstructure:"log_lines"`
	MaxFileChars  int           `mapstructure:"max_file_chars"`
	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	HistoryLimit  int           `mapstructure:"history_limit"`
	HistoryTTL    time.Duration `mapstructure:"history_ttl"`
	ActiveUserTTL time.Duration `mapstructure:"active_user_ttl"`
}

type DaemonConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	// StatsInterval controls how often usage gauges are refreshed from storage.
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.user_header", "X-User-Id")

	v.SetDefault("ai.backend", "rest")
	v.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("ai.api_version", "v1")
	v.SetDefault("ai.model", "gemini-pro")
	v.SetDefault("ai.timeout", 30*time.Second)

	v.SetDefault("chat.log_lines", 30)
	v.SetDefault("chat.max_file_chars", 5000)
	v.SetDefault("chat.source_timeout", 10*time.Second)
	v.SetDefault("chat.history_limit", 50)
	v.SetDefault("chat.history_ttl", 7*24*time.Hour)
	v.SetDefault("chat.active_user_ttl", 24*time.Hour)

	v.SetDefault("daemon.timeout", 10*time.Second)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.memory.cleanup_interval", 10*time.Minute)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 30*time.Second)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 20)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")
	v.SetDefault("monitoring.stats_interval", 5*time.Minute)

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en", "zh"})
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.BindEnv("ai.default_api_key", "GEMINI_API_KEY")
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.admin_token", "ADMIN_TOKEN")
	v.BindEnv("daemon.base_url", "DAEMON_URL")
	v.BindEnv("daemon.token", "DAEMON_TOKEN")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Handle Redis address special case
	if redisHost := v.GetString("REDIS_HOST"); redisHost != "" {
		redisPort := v.GetString("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}
	if cfg.Server.UserHeader == "" {
		return fmt.Errorf("server user header is required")
	}
	switch cfg.AI.Backend {
	case "rest", "sdk":
	default:
		return fmt.Errorf("unsupported ai backend: %s", cfg.AI.Backend)
	}
	if cfg.AI.Model == "" {
		return fmt.Errorf("ai model is required")
	}
	if cfg.AI.Timeout <= 0 {
		return fmt.Errorf("ai timeout must be positive")
	}
	if cfg.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history limit must be positive")
	}
	if cfg.Chat.MaxFileChars <= 0 {
		return fmt.Errorf("chat max file chars must be positive")
	}
	if cfg.Storage.Type == "redis" && cfg.Storage.Redis.Addr == "" {
		return fmt.Errorf("redis address is required for redis storage")
	}
	return nil
}
