package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	AI         AIConfig         `mapstructure:"ai"`
	Crisis     CrisisConfig     `mapstructure:"crisis"`
	Session    SessionConfig    `mapstructure:"session"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	WhatsApp   WhatsAppConfig   `mapstructure:"whatsapp"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type AIConfig struct {
	Providers      []ProviderConfig `mapstructure:"providers"`
	MaxTokens      int              `mapstructure:"max_tokens"`
	Temperature    float64          `mapstructure:"temperature"`
	RequestTimeout time.Duration    `mapstructure:"request_timeout"`
	MaxRetries     int              `mapstructure:"max_retries"`
	HistoryWindow  int              `mapstructure:"history_window"`
}

type ProviderConfig struct {
	Name    string            `mapstructure:"name"`
	BaseURL string            `mapstructure:"base_url"`
	APIKey  string            `mapstructure:"api_key"`
	Model   string            `mapstructure:"model"`
	Headers map[string]string `mapstructure:"headers"`
}

type CrisisConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

type SessionConfig struct {
	MaxHistory      int           `mapstructure:"max_history"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	InactivityTTL   time.Duration `mapstructure:"inactivity_ttl"`
	PersistedTTL    time.Duration `mapstructure:"persisted_ttl"`
}

type StorageConfig struct {
	Type   string          `mapstructure:"type"`
	Redis  RedisConfig     `mapstructure:"redis"`
	Memory MemoryConfig    `mapstructure:"memory"`
	File   FileStoreConfig `mapstructure:"file"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type FileStoreConfig struct {
	Directory string `mapstructure:"directory"`
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

type WhatsAppConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AccountSID  string `mapstructure:"account_sid"`
	AuthToken   string `mapstructure:"auth_token"`
	FromNumber  string `mapstructure:"from_number"`
	VerifyToken string `mapstructure:"verify_token"`
	AppSecret   string `mapstructure:"app_secret"`
}

type LoggingConfig struct {
	Level        string     `mapstructure:"level"`
	Format       string     `mapstructure:"format"`
	Output       string     `mapstructure:"output"`
	File         FileConfig `mapstructure:"file"`
	PseudonymKey string     `mapstructure:"pseudonym_key"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
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

// LoadConfig loads configuration from an optional YAML file and environment
// variables. Every tunable has a default; a missing file is only an error
// when a path was given explicitly.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("app.environment", "ENVIRONMENT")
	v.BindEnv("server.host", "HOST")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("crisis.confidence_threshold", "CRISIS_CONFIDENCE_THRESHOLD")
	v.BindEnv("storage.redis.addr", "REDIS_ADDR")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("whatsapp.account_sid", "TWILIO_ACCOUNT_SID")
	v.BindEnv("whatsapp.auth_token", "TWILIO_AUTH_TOKEN")
	v.BindEnv("whatsapp.from_number", "TWILIO_WHATSAPP_NUMBER")
	v.BindEnv("whatsapp.verify_token", "WHATSAPP_VERIFY_TOKEN")
	v.BindEnv("whatsapp.app_secret", "WHATSAPP_APP_SECRET")
	v.BindEnv("logging.pseudonym_key", "LOG_PSEUDONYM_KEY")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Redis host/port may arrive as separate env vars.
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	loadProvidersFromEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "Mazungumzo AI")
	v.SetDefault("app.description", "Mental Health Chat Companion for Kenya")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("ai.max_tokens", 200)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.request_timeout", 15*time.Second)
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.history_window", 6)

	v.SetDefault("crisis.confidence_threshold", 0.5)

	v.SetDefault("session.max_history", 50)
	v.SetDefault("session.max_sessions", 10000)
	v.SetDefault("session.cleanup_interval", time.Hour)
	v.SetDefault("session.inactivity_ttl", 24*time.Hour)
	v.SetDefault("session.persisted_ttl", 7*24*time.Hour)

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.memory.default_expiration", 24*time.Hour)
	v.SetDefault("storage.memory.cleanup_interval", time.Hour)
	v.SetDefault("storage.file.directory", "data")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 100)
	v.SetDefault("rate_limit.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file.path", "logs/server.log")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	v.SetDefault("monitoring.metrics.enabled", true)
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "en")
	v.SetDefault("i18n.languages", []string{"en", "sw"})
}

// loadProvidersFromEnv assembles the completion provider chain from
// environment variables when the config file did not define one. Cerebras is
// tried first, OpenRouter second, matching the hosted deployment.
func loadProvidersFromEnv(cfg *Config) {
	if len(cfg.AI.Providers) > 0 {
		return
	}

	if key := os.Getenv("CEREBRAS_API_KEY"); key != "" {
		baseURL := os.Getenv("CEREBRAS_BASE_URL")
		if baseURL == "" {
			baseURL = "https://api.cerebras.ai/v1"
		}
		model := os.Getenv("CEREBRAS_MODEL")
		if model == "" {
			model = "qwen-3-32b"
		}
		cfg.AI.Providers = append(cfg.AI.Providers, ProviderConfig{
			Name:    "cerebras",
			BaseURL: baseURL,
			APIKey:  key,
			Model:   model,
		})
	}

	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		baseURL := os.Getenv("OPENROUTER_BASE_URL")
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		model := os.Getenv("OPENROUTER_MODEL")
		if model == "" {
			model = "qwen/qwen3-8b:free"
		}
		cfg.AI.Providers = append(cfg.AI.Providers, ProviderConfig{
			Name:    "openrouter",
			BaseURL: baseURL,
			APIKey:  key,
			Model:   model,
			Headers: map[string]string{
				"HTTP-Referer": "https://mazungumzo-ai.hackathon",
				"X-Title":      "Mazungumzo AI Hackathon",
			},
		})
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Crisis.ConfidenceThreshold <= 0 || cfg.Crisis.ConfidenceThreshold > 1 {
		return fmt.Errorf("crisis confidence threshold must be in (0, 1], got %v", cfg.Crisis.ConfidenceThreshold)
	}
	if cfg.Session.MaxHistory <= 0 {
		return fmt.Errorf("session max_history must be positive")
	}
	switch cfg.Storage.Type {
	case "memory", "redis", "file":
	default:
		return fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
	for _, p := range cfg.AI.Providers {
		if p.Name == "" || p.BaseURL == "" || p.Model == "" {
			return fmt.Errorf("provider %q needs name, base_url and model", p.Name)
		}
	}
	if cfg.WhatsApp.Enabled {
		if cfg.WhatsApp.AccountSID == "" || cfg.WhatsApp.AuthToken == "" || cfg.WhatsApp.FromNumber == "" {
			return fmt.Errorf("whatsapp enabled but twilio credentials are incomplete")
		}
	}
	return nil
}
