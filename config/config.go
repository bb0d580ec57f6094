package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fenilmodi00/nextipo-backend/models"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	AdminToken  string

	LogLevel  string
	LogFormat string
	LogFile   string

	Source      SourceConfig
	Sync        SyncConfig
	PremiumFeed PremiumFeedConfig
	Database    DatabaseConfig
}

// SourceConfig describes the upstream IPO listing endpoint
type SourceConfig struct {
	BaseURL          string
	PageSize         int
	HTTPTimeout      time.Duration
	MaxRetryAttempts int
	RetryBaseDelay   time.Duration
	PolitenessDelay  time.Duration
}

// SyncConfig holds scheduling and reconciliation settings for ingestion
type SyncConfig struct {
	Strategy          models.SyncStrategy
	OnStartup         bool
	StartupDelay      time.Duration
	Interval          time.Duration // zero disables periodic sync
	TriggersPerMinute int
}

// PremiumFeedConfig holds the grey market premium table scraper settings
type PremiumFeedConfig struct {
	URL             string // empty disables the feed
	Renderer        string // "colly" or "chromedp"
	NameColumn      int
	PremiumColumn   int
	RefreshInterval time.Duration
	RenderTimeout   time.Duration
}

// DatabaseConfig holds database connection pool configuration
type DatabaseConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

// DefaultDatabaseConfig returns the pool settings used when nothing is overridden
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		PingTimeout:     5 * time.Second,
	}
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current process environment
func FromEnv() *Config {
	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
		LogFile:     getEnv("LOG_FILE", ""),

		Source: SourceConfig{
			BaseURL:          strings.TrimRight(getEnv("IPO_SOURCE_URL", "https://ipopremium.in"), "/"),
			PageSize:         getEnvInt("IPO_SOURCE_PAGE_SIZE", 1000),
			HTTPTimeout:      time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
			MaxRetryAttempts: getEnvInt("HTTP_MAX_RETRIES", 2),
			RetryBaseDelay:   getEnvDuration("HTTP_RETRY_BASE_DELAY", time.Second),
			PolitenessDelay:  getEnvDuration("HTTP_POLITENESS_DELAY", 500*time.Millisecond),
		},
		Sync: SyncConfig{
			Strategy:          getEnvStrategy("SYNC_STRATEGY", models.SyncAppend),
			OnStartup:         getEnvBool("SYNC_ON_STARTUP", true),
			StartupDelay:      getEnvDuration("SYNC_STARTUP_DELAY", time.Second),
			Interval:          getEnvDuration("SYNC_INTERVAL", 0),
			TriggersPerMinute: getEnvInt("SYNC_TRIGGER_PER_MINUTE", 6),
		},
		PremiumFeed: PremiumFeedConfig{
			URL:             getEnv("PREMIUM_FEED_URL", ""),
			Renderer:        strings.ToLower(getEnv("PREMIUM_FEED_RENDERER", "colly")),
			NameColumn:      getEnvInt("PREMIUM_FEED_NAME_COLUMN", 0),
			PremiumColumn:   getEnvInt("PREMIUM_FEED_PREMIUM_COLUMN", 1),
			RefreshInterval: getEnvDuration("PREMIUM_REFRESH_INTERVAL", time.Hour),
			RenderTimeout:   getEnvDuration("PREMIUM_RENDER_TIMEOUT", 45*time.Second),
		},
		Database: DefaultDatabaseConfig(),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvBool(key string, fallback bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %t", key, raw, fallback)
		return fallback
	}
	return value
}

// getEnvDuration accepts Go durations ("90s", "1h") and bare seconds ("30")
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value < 0 {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return value
}

func getEnvStrategy(key string, fallback models.SyncStrategy) models.SyncStrategy {
	raw := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	switch models.SyncStrategy(raw) {
	case "":
		return fallback
	case models.SyncAppend, models.SyncUpsert:
		return models.SyncStrategy(raw)
	default:
		logrus.Warnf("Invalid %s value: %s, using default %s", key, raw, fallback)
		return fallback
	}
}
