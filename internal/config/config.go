// Package config loads process configuration from the environment (via a
// .env file when present, then os.Getenv), the same way the teacher's
// main.go read its settings, lifted here into one typed, fail-fast-checked
// struct.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is every environment-derived setting the application needs at
// startup. godotenv.Load tolerates a missing .env file so production
// deployments that set real environment variables need not ship one.
type Config struct {
	MicroserviceName string
	ServiceVersion   string

	PollingInterval   time.Duration
	MaxConcurrentJobs int
	ShutdownTimeout   time.Duration
	JobTimeout        time.Duration

	OracleDSN      string
	OracleUser     string
	OraclePassword string
	OracleTable    string

	LogConsoleJSON bool
	Debug          bool

	OTelLogsEndpoint   string
	OTelTracesEndpoint string
	OTelUser           string
	OTelPassword       string

	HTTPHost string
	HTTPPort string

	MongoDBURI               string
	MongoDBDatabase          string
	MongoDBHeartbeatInterval time.Duration
	MongoDBKeyTTL            time.Duration
	MongoDBMaxPoolSize       int
	MongoDBMinPoolSize       int

	DevMode bool
}

// Load reads .env (if present) then the process environment, applying
// defaults and validating required fields. Oracle credentials are only
// required outside dev mode since dev mode runs the in-memory queue
// backend instead of a durable one.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{
		MicroserviceName: os.Getenv("MICROSERVICE_NAME"),
		ServiceVersion:   getString("SERVICE_VERSION", "0.0.0"),

		PollingInterval:   getSeconds("POLLING_INTERVAL_SECONDS", 5),
		MaxConcurrentJobs: getInt("MAX_CONCURRENT_JOBS", 10),
		ShutdownTimeout:   getSeconds("SHUTDOWN_TIMEOUT_SECONDS", 60),
		JobTimeout:        getSeconds("JOB_TIMEOUT_SECONDS", 300),

		OracleDSN:      os.Getenv("ORACLE_DSN"),
		OracleUser:     os.Getenv("ORACLE_USER"),
		OraclePassword: os.Getenv("ORACLE_PASSWORD"),
		OracleTable:    getString("ORACLE_TABLE", "MICRO_SVC"),

		LogConsoleJSON: getBool("LOG_CONSOLE_JSON", false),
		Debug:          getBool("DEBUG", false),

		OTelLogsEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"),
		OTelTracesEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"),
		OTelUser:           os.Getenv("OTEL_EXPORTER_OTLP_USER"),
		OTelPassword:       os.Getenv("OTEL_EXPORTER_OTLP_PASSWORD"),

		HTTPHost: getString("HTTP_HOST", "0.0.0.0"),
		HTTPPort: getString("HTTP_PORT", "8000"),

		MongoDBURI:               os.Getenv("MONGODB_URI"),
		MongoDBDatabase:          os.Getenv("MONGODB_DATABASE"),
		MongoDBHeartbeatInterval: getSeconds("MONGODB_HEARTBEAT_SECONDS", 30),
		MongoDBKeyTTL:            getSeconds("MONGODB_KEY_TTL_SECONDS", 90),
		MongoDBMaxPoolSize:       getInt("MONGODB_MAX_POOL_SIZE", 2),
		MongoDBMinPoolSize:       getInt("MONGODB_MIN_POOL_SIZE", 1),

		DevMode: getBool("DEV_MODE", false),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.MicroserviceName == "" {
		return fmt.Errorf("config: MICROSERVICE_NAME is required")
	}
	if !c.DevMode {
		if c.OracleUser == "" || c.OraclePassword == "" {
			return fmt.Errorf("config: ORACLE_USER and ORACLE_PASSWORD are required unless DEV_MODE=true")
		}
	}
	if c.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("config: MAX_CONCURRENT_JOBS must be positive, got %d", c.MaxConcurrentJobs)
	}
	return nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(getInt(key, defSeconds)) * time.Second
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
