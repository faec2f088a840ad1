package app

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer string // Issuer claim stamped into every token

	DatabaseFile  string // Path to SQLite database file (default: ./sitepass.db)
	MasterKeyPath string // Path to master key file for sealing signing secrets

	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 7 days)
	SessionTTL time.Duration // Session record lifetime (default: 7 days)

	RotationInterval time.Duration // Scheduled secret rotation period; 0 disables (default: 24h)
	GracePeriod      time.Duration // How long retired secrets keep verifying (default: one rotation interval)
	SecretRetention  time.Duration // How long retired secrets stay in the database (default: 2x grace)
	SecretBytes      int           // Entropy of generated signing secrets (default: 64)

	RefreshRotateOnUse bool // Mint a new refresh token on every refresh (default: false)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping sweep interval (default: 1h)
}

func LoadConfig() Config {
	// A missing .env file is fine; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := Config{
		Issuer:        getEnvOrDefault("SITEPASS_ISSUER", "sitepass"),
		DatabaseFile:  getEnvOrDefault("SITEPASS_DATABASE_FILE", "sitepass.db"),
		MasterKeyPath: os.Getenv("SITEPASS_MASTER_KEY_PATH"),

		AccessTTL:  getEnvDurationOrDefault("SITEPASS_ACCESS_TTL", 15*time.Minute),
		RefreshTTL: getEnvDurationOrDefault("SITEPASS_REFRESH_TTL", 7*24*time.Hour),
		SessionTTL: getEnvDurationOrDefault("SITEPASS_SESSION_TTL", 7*24*time.Hour),

		RotationInterval: getEnvDurationOrDefault("SITEPASS_ROTATION_INTERVAL", 24*time.Hour),
		SecretBytes:      getEnvIntOrDefault("SITEPASS_SECRET_BYTES", 64),

		RefreshRotateOnUse: getEnvBoolOrDefault("SITEPASS_REFRESH_ROTATE_ON_USE", false),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	// Tokens signed just before a rotation stay verifiable for one full
	// rotation interval unless a tighter grace is configured.
	cfg.GracePeriod = getEnvDurationOrDefault("SITEPASS_GRACE_PERIOD", cfg.RotationInterval)
	cfg.SecretRetention = getEnvDurationOrDefault("SITEPASS_SECRET_RETENTION", 2*cfg.GracePeriod)

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are read as minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
