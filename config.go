package visitmetrics

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/log"

	"github.com/eringen/visitmetrics/analytics"
)

// Analytics store drivers.
const (
	DriverSQLite     = "sqlite"
	DriverClickHouse = "clickhouse"
)

// SiteConfig holds all configuration for a visitmetrics server.
type SiteConfig struct {
	Name string // Dashboard title (default "Visits")
	Addr string // Listen address (default ":3000")

	AnalyticsDriver       string                     // "sqlite" (default) or "clickhouse"
	AnalyticsDatabasePath string                     // SQLite path (default "data/analytics.db")
	ClickHouse            analytics.ClickHouseConfig // Used when AnalyticsDriver is "clickhouse"
	AnalyticsSalt         string                     // Hash salt for IPs and user agents; empty is allowed
	AnalyticsRateLimit    int                        // Ingest requests per IP per minute (default 120, negative disables)

	AdminPassword     string // Admin login password
	AdminPasswordHash string // bcrypt hash, preferred over AdminPassword when set
	SessionSecret     string // Required: session encryption secret
	CookieSecure      bool   // Set true for HTTPS

	LogLevel string // debug, info, warn, error (default "info")
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "Visits"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.AnalyticsDriver == "" {
		c.AnalyticsDriver = DriverSQLite
	}
	if c.AnalyticsDatabasePath == "" {
		c.AnalyticsDatabasePath = "data/analytics.db"
	}
	if c.AnalyticsRateLimit == 0 {
		c.AnalyticsRateLimit = 120
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// ConfigFromEnv builds a SiteConfig from environment variables, loading a
// .env file from the working directory first when one exists. Variables
// already set in the environment win over the file.
func ConfigFromEnv() SiteConfig {
	_ = godotenv.Load()

	return SiteConfig{
		Name:                  os.Getenv("SITE_NAME"),
		Addr:                  os.Getenv("ADDR"),
		AnalyticsDriver:       strings.ToLower(os.Getenv("ANALYTICS_DRIVER")),
		AnalyticsDatabasePath: os.Getenv("ANALYTICS_DATABASE_PATH"),
		ClickHouse: analytics.ClickHouseConfig{
			Addr:     EnvOr("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: EnvOr("CLICKHOUSE_DB", "default"),
			Username: EnvOr("CLICKHOUSE_USER", "default"),
			Password: os.Getenv("CLICKHOUSE_PASSWORD"),
		},
		AnalyticsSalt:      os.Getenv("ANALYTICS_SALT"),
		AnalyticsRateLimit: envInt("ANALYTICS_RATE_LIMIT", 0),
		AdminPassword:      os.Getenv("ADMIN_PASSWORD"),
		AdminPasswordHash:  os.Getenv("ADMIN_PASSWORD_HASH"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		CookieSecure:       envBool("COOKIE_SECURE"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
	}
}

// EnvOr returns the value of the environment variable key, or fallback if empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}

// logLevel maps a level name to the echo logger level.
func logLevel(name string) log.Lvl {
	switch strings.ToLower(name) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are registered.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithEventStore uses store instead of opening one from the config.
// The App takes ownership and closes it.
func WithEventStore(store analytics.EventStore) Option {
	return func(a *App) {
		a.Store = store
	}
}
