// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Whitelist  WhitelistConfig  `mapstructure:"whitelist"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Games      GamesConfig      `mapstructure:"games"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// BotConfig holds Telegram bot configuration.
type BotConfig struct {
	Token       string        `mapstructure:"token"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

// LogConfig holds logger configuration. An empty File logs to stderr only.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StoreConfig selects where the state snapshot lives.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AdminConfig holds the static admin allow-list.
type AdminConfig struct {
	IDs []int64 `mapstructure:"ids"`
}

// WhitelistConfig holds chat whitelist configuration.
type WhitelistConfig struct {
	Chats []int64 `mapstructure:"chats"`
}

// ModerationConfig holds the warning threshold and default mute.
type ModerationConfig struct {
	MaxWarnings  int           `mapstructure:"max_warnings"`
	MuteDuration time.Duration `mapstructure:"mute_duration"`
}

// GamesConfig holds game-specific configuration.
type GamesConfig struct {
	Hunt   HuntConfig   `mapstructure:"hunt"`
	Garden GardenConfig `mapstructure:"garden"`
}

// HuntConfig holds slipper hunt configuration.
type HuntConfig struct {
	Rows    int           `mapstructure:"rows"`
	Cols    int           `mapstructure:"cols"`
	Timeout time.Duration `mapstructure:"timeout"`
	Reward  int64         `mapstructure:"reward"`
}

// GardenConfig holds pumpkin garden configuration.
type GardenConfig struct {
	HourUnit      time.Duration `mapstructure:"hour_unit"`
	MaxSize       int           `mapstructure:"max_size"`
	RewardPerUnit int64         `mapstructure:"reward_per_unit"`
}

// ProviderConfig holds inference API configuration.
type ProviderConfig struct {
	Token          string        `mapstructure:"token"`
	BaseURL        string        `mapstructure:"base_url"`
	TextModel      string        `mapstructure:"text_model"`
	SentimentModel string        `mapstructure:"sentiment_model"`
	SpeechModel    string        `mapstructure:"speech_model"`
	ImageModel     string        `mapstructure:"image_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryWait      time.Duration `mapstructure:"retry_wait"`
}

// SchedulerConfig holds cron specs of the periodic jobs.
type SchedulerConfig struct {
	AdminRefresh   string `mapstructure:"admin_refresh"`
	MessageCleanup string `mapstructure:"message_cleanup"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase
	// e.g., BOT_TOKEN, STORE_PATH, PROVIDER_TOKEN
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional, env vars can provide everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// HF_TOKEN is the conventional name for the inference token
	if v.GetString("provider.token") == "" {
		_ = v.BindEnv("provider.token", "PROVIDER_TOKEN", "HF_TOKEN")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that have no usable fallback.
func (c *Config) Validate() error {
	if c.Bot.Token == "" {
		return fmt.Errorf("bot token is required (set BOT_TOKEN)")
	}
	switch c.Store.Backend {
	case BackendFile, BackendPostgres, BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Moderation.MaxWarnings < 1 {
		return fmt.Errorf("moderation.max_warnings must be at least 1, got %d", c.Moderation.MaxWarnings)
	}
	if c.Games.Hunt.Rows < 1 || c.Games.Hunt.Cols < 1 {
		return fmt.Errorf("games.hunt grid must be at least 1x1, got %dx%d", c.Games.Hunt.Rows, c.Games.Hunt.Cols)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.poll_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "data/state.json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "cinderella")
	v.SetDefault("database.name", "cinderella")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	v.SetDefault("moderation.max_warnings", 3)
	v.SetDefault("moderation.mute_duration", "1h")

	// Game defaults
	v.SetDefault("games.hunt.rows", 3)
	v.SetDefault("games.hunt.cols", 3)
	v.SetDefault("games.hunt.timeout", "60s")
	v.SetDefault("games.hunt.reward", 100)
	v.SetDefault("games.garden.hour_unit", "1h")
	v.SetDefault("games.garden.max_size", 10)
	v.SetDefault("games.garden.reward_per_unit", 10)

	v.SetDefault("provider.token", "")
	v.SetDefault("provider.base_url", "https://api-inference.huggingface.co/models")
	v.SetDefault("provider.text_model", "microsoft/DialoGPT-medium")
	v.SetDefault("provider.sentiment_model", "bhadresh-savani/distilbert-base-uncased-emotion")
	v.SetDefault("provider.speech_model", "facebook/mms-tts-eng")
	v.SetDefault("provider.image_model", "runwayml/stable-diffusion-v1-5")
	v.SetDefault("provider.timeout", "60s")
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.retry_wait", "2s")

	v.SetDefault("scheduler.admin_refresh", "@every 30m")
	v.SetDefault("scheduler.message_cleanup", "@every 5m")
}

// IsAdmin checks if a user ID is in the static admin list.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Admin.IDs, userID)
}

// IsChatAllowed checks if a chat ID is in the whitelist.
func (c *Config) IsChatAllowed(chatID int64) bool {
	// Empty whitelist means all chats are allowed
	if len(c.Whitelist.Chats) == 0 {
		return true
	}
	return slices.Contains(c.Whitelist.Chats, chatID)
}
