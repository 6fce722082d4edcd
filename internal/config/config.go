package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	PostgresURL        string `mapstructure:"POSTGRES_URL"`
	RedisAddr          string `mapstructure:"REDIS_ADDR"`
	ServerPort         string `mapstructure:"SERVER_PORT"`
	ScrapeWorkers      int    `mapstructure:"SCRAPE_WORKERS"`
	ScrapeTimeoutMs    int    `mapstructure:"SCRAPE_TIMEOUT_MS"`
	ScrapeMonths       int    `mapstructure:"SCRAPE_MONTHS"`
	Headless           bool   `mapstructure:"HEADLESS"`
	UserAgent          string `mapstructure:"USER_AGENT"`
	AcceptLanguage     string `mapstructure:"ACCEPT_LANGUAGE"`
	MaxRetries         int    `mapstructure:"MAX_RETRIES"`
	DeduplicationHours int    `mapstructure:"DEDUPLICATION_HOURS"`
	FallbackCurrency   string `mapstructure:"FALLBACK_CURRENCY"`
	MaxAmenities       int    `mapstructure:"MAX_AMENITIES"`
	NavRateEveryMs     int    `mapstructure:"NAV_RATE_EVERY_MS"`
}

// ScrapeTimeout returns the navigation timeout as a duration.
func (c *Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.ScrapeTimeoutMs) * time.Millisecond
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	// This allows configuration purely through environment variables in production
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SCRAPE_WORKERS", 4)
	viper.SetDefault("SCRAPE_TIMEOUT_MS", 30000)
	viper.SetDefault("SCRAPE_MONTHS", 2)
	viper.SetDefault("HEADLESS", true)
	viper.SetDefault("USER_AGENT", "")
	viper.SetDefault("ACCEPT_LANGUAGE", "en-US,en;q=0.9")
	viper.SetDefault("MAX_RETRIES", 2)
	viper.SetDefault("DEDUPLICATION_HOURS", 6)
	viper.SetDefault("FALLBACK_CURRENCY", "EUR")
	viper.SetDefault("MAX_AMENITIES", 10)
	viper.SetDefault("NAV_RATE_EVERY_MS", 2000)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
