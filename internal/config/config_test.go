package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"MICROSERVICE_NAME", "SERVICE_VERSION", "POLLING_INTERVAL_SECONDS",
		"MAX_CONCURRENT_JOBS", "SHUTDOWN_TIMEOUT_SECONDS", "JOB_TIMEOUT_SECONDS",
		"ORACLE_DSN", "ORACLE_USER", "ORACLE_PASSWORD", "ORACLE_TABLE",
		"LOG_CONSOLE_JSON", "DEBUG", "HTTP_HOST", "HTTP_PORT",
		"MONGODB_URI", "DEV_MODE",
	}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadFailsWithoutMicroserviceName(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEV_MODE", "true")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when MICROSERVICE_NAME is unset")
	}
}

func TestLoadRequiresOracleCredentialsOutsideDevMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("MICROSERVICE_NAME", "test-service")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when ORACLE_USER/ORACLE_PASSWORD are unset outside dev mode")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MICROSERVICE_NAME", "test-service")
	t.Setenv("DEV_MODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServiceVersion != "0.0.0" {
		t.Fatalf("expected default service version, got %q", cfg.ServiceVersion)
	}
	if cfg.PollingInterval != 5*time.Second {
		t.Fatalf("expected default polling interval of 5s, got %v", cfg.PollingInterval)
	}
	if cfg.MaxConcurrentJobs != 10 {
		t.Fatalf("expected default MaxConcurrentJobs of 10, got %d", cfg.MaxConcurrentJobs)
	}
	if cfg.HTTPPort != "8000" {
		t.Fatalf("expected default HTTP port 8000, got %q", cfg.HTTPPort)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MICROSERVICE_NAME", "test-service")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("MAX_CONCURRENT_JOBS", "25")
	t.Setenv("LOG_CONSOLE_JSON", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxConcurrentJobs != 25 {
		t.Fatalf("expected MaxConcurrentJobs=25, got %d", cfg.MaxConcurrentJobs)
	}
	if !cfg.LogConsoleJSON {
		t.Fatal("expected LogConsoleJSON=true")
	}
}
