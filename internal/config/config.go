package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process-wide settings. Every field has an environment
// variable; cobra flags in cmd/kwhmedio override them.
type Config struct {
	// Port the HTTP API listens on.
	Port string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// APIBaseURL is the CKAN action root of the ANEEL open-data portal.
	APIBaseURL string
	// HTTPTimeout is applied to every paginated upstream request. Zero means
	// no timeout.
	HTTPTimeout time.Duration
	// PageSize is the number of records requested per upstream page.
	PageSize int

	// DBDriver selects the snapshot store: memory, sqlite, postgres,
	// postgrespool or redis. Empty means memory, which only survives as
	// long as the process.
	DBDriver string
	// DBDSN is the driver specific connection string (file path, postgres
	// URL or redis address).
	DBDSN string
	// AutoMigrate runs goose migrations on startup for sql drivers.
	AutoMigrate bool

	// WarmSchedule is either integer seconds or a standard cron expression.
	WarmSchedule string

	// APITokens lists "name:role:bcrypt-hash[:expiry]" entries that may use
	// the admin endpoints. Empty disables them.
	APITokens string
}

// FromEnv builds a Config from environment variables, with sane defaults.
func FromEnv() Config {
	return Config{
		Port:         getenv("PORT", "8000"),
		LogLevel:     getenv("KWHMEDIO_LOG_LEVEL", "info"),
		APIBaseURL:   getenv("KWHMEDIO_API_BASE_URL", "https://dadosabertos.aneel.gov.br/api/3/action"),
		HTTPTimeout:  getDuration("KWHMEDIO_HTTP_TIMEOUT", 30*time.Second),
		PageSize:     getInt("KWHMEDIO_PAGE_SIZE", 100),
		DBDriver:     os.Getenv("KWHMEDIO_DB_DRIVER"),
		DBDSN:        os.Getenv("KWHMEDIO_DB_DSN"),
		AutoMigrate:  getBool("KWHMEDIO_AUTO_MIGRATE"),
		WarmSchedule: getenv("KWHMEDIO_WARM_SCHEDULE", "0 6 * * *"),
		APITokens:    os.Getenv("KWHMEDIO_API_TOKENS"),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// getDuration accepts a Go duration ("45s") or integer seconds ("45").
func getDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d >= 0 {
		return d
	}
	if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
		return time.Duration(v) * time.Second
	}
	return def
}

func getBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
