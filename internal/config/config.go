package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultHTTPTimeout bounds every backend request.
	DefaultHTTPTimeout = 15 * time.Second
	// DefaultDatabasePath is where local preferences and metrics are kept.
	DefaultDatabasePath = "data/oneplate.db"
	// DefaultLocale is used until the user picks one.
	DefaultLocale = "en"
	// DefaultPort is the bot's HTTP port.
	DefaultPort = "8080"
)

// Config holds the configuration for the application.
type Config struct {
	APIURL       string        `yaml:"api_url"`
	DatabasePath string        `yaml:"database_path"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	Locale       string        `yaml:"locale"`

	// Telegram Config
	TelegramBotToken       string  `yaml:"telegram_bot_token"`
	TelegramWebhookURL     string  `yaml:"telegram_webhook_url"`
	TelegramAllowedUserIDs []int64 `yaml:"telegram_allowed_user_ids"`
	AdminTelegramID        int64   `yaml:"admin_telegram_id"`
	Port                   string  `yaml:"port"`
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	cfg := defaults()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a YAML config file and then applies environment overrides.
// An empty path behaves like NewFromEnv.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsAllowedTelegramUser reports whether id may talk to the bot.
func (c *Config) IsAllowedTelegramUser(id int64) bool {
	for _, allowed := range c.TelegramAllowedUserIDs {
		if allowed == id {
			return true
		}
	}
	return false
}

func defaults() *Config {
	return &Config{
		DatabasePath: DefaultDatabasePath,
		HTTPTimeout:  DefaultHTTPTimeout,
		Locale:       DefaultLocale,
		Port:         DefaultPort,
	}
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("ONEPLATE_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("ONEPLATE_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("ONEPLATE_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ONEPLATE_HTTP_TIMEOUT %q: %w", v, err)
		}
		c.HTTPTimeout = d
	}
	if v := os.Getenv("ONEPLATE_LOCALE"); v != "" {
		c.Locale = v
	}

	// Telegram Config (Optional for CLI, required for Bot)
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.TelegramBotToken = v
	}
	if v := os.Getenv("TELEGRAM_WEBHOOK_URL"); v != "" {
		c.TelegramWebhookURL = v
	}
	if v := os.Getenv("TELEGRAM_ALLOWED_USER_IDS"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
		}
		c.TelegramAllowedUserIDs = ids
	}
	if v := os.Getenv("ADMIN_TELEGRAM_ID"); v != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ADMIN_TELEGRAM_ID %q: %w", v, err)
		}
		c.AdminTelegramID = id
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("ONEPLATE_API_URL environment variable not set")
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	return nil
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a user id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
