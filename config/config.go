package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds the runtime settings read from the environment.
type Config struct {
	Port            string
	DBDriver        string
	DatabaseURL     string
	SQLitePath      string
	JWTSecret       string
	AllowedOrigins  []string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// Load reads the configuration from environment variables. Call godotenv.Load first
// if a .env file should be honoured.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		DBDriver:       strings.ToLower(getEnvOrDefault("DB_DRIVER", DriverSQLite)),
		SQLitePath:     getEnvOrDefault("SQLITE_PATH", "docshare.db"),
		JWTSecret:      strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:       getEnvOrDefault("LOG_LEVEL", "info"),
	}

	timeout, err := time.ParseDuration(getEnvOrDefault("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout = timeout

	switch cfg.DBDriver {
	case DriverPostgres:
		cfg.DatabaseURL = postgresURL()
	case DriverSQLite:
		cfg.DatabaseURL = cfg.SQLitePath
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	return cfg, nil
}

// postgresURL prefers DATABASE_URL and otherwise assembles one from the DB_* parts.
func postgresURL() string {
	if url := strings.TrimSpace(os.Getenv("DATABASE_URL")); url != "" {
		return url
	}
	dbUser := getEnvOrDefault("DB_USER", "postgres")
	dbPass := strings.TrimSpace(os.Getenv("DB_PASSWORD"))
	dbHost := getEnvOrDefault("DB_HOST", "localhost")
	dbPort := getEnvOrDefault("DB_PORT", "5432")
	dbName := getEnvOrDefault("DB_NAME", "docshare")
	sslMode := getEnvOrDefault("DB_SSLMODE", "require")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", dbUser, dbPass, dbHost, dbPort, dbName, sslMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
