package config

import (
	"strings"
	"testing"
	"time"

	"github.com/evvec/ps-tracker/internal/platform/logging"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "test-token")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AppEnv != EnvDev {
		t.Fatalf("AppEnv = %q, want dev", cfg.AppEnv)
	}
	if cfg.ServiceName != "ps-tracker" {
		t.Fatalf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.OmedaTimeout != 10*time.Second {
		t.Fatalf("OmedaTimeout = %v, want 10s", cfg.OmedaTimeout)
	}
	if cfg.FetchWorkers != 8 {
		t.Fatalf("FetchWorkers = %d, want 8", cfg.FetchWorkers)
	}
	if cfg.RefreshHour != 4 {
		t.Fatalf("RefreshHour = %d, want 4", cfg.RefreshHour)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if !cfg.OmedaCircuitEnabled {
		t.Fatalf("circuit breaker should default on")
	}
}

func TestLoadRequiresTelegramToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TELEGRAM_TOKEN") {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestLoadRejectsInvalidAppEnv(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "APP_ENV") {
		t.Fatalf("expected invalid APP_ENV error, got %v", err)
	}
}

func TestLoadRejectsOutOfRangeRefreshHour(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("REFRESH_HOUR", "24")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "REFRESH_HOUR") {
		t.Fatalf("expected REFRESH_HOUR error, got %v", err)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("OMEDA_TIMEOUT", "ten seconds")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "OMEDA_TIMEOUT") {
		t.Fatalf("expected OMEDA_TIMEOUT error, got %v", err)
	}
}

func TestLoadUptraceRequiresDSN(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "UPTRACE_DSN") {
		t.Fatalf("expected UPTRACE_DSN error, got %v", err)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("FETCH_WORKERS", "16")
	t.Setenv("REFRESH_HOUR", "0")
	t.Setenv("OMEDA_BASE_URL", "https://example.test/players")
	t.Setenv("OMEDA_CACHE_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AppEnv != EnvProd {
		t.Fatalf("AppEnv = %q, want prod", cfg.AppEnv)
	}
	if cfg.LogLevel != logging.LevelDebug {
		t.Fatalf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.FetchWorkers != 16 {
		t.Fatalf("FetchWorkers = %d, want 16", cfg.FetchWorkers)
	}
	if cfg.RefreshHour != 0 {
		t.Fatalf("RefreshHour = %d, want 0", cfg.RefreshHour)
	}
	if cfg.OmedaBaseURL != "https://example.test/players" {
		t.Fatalf("OmedaBaseURL = %q", cfg.OmedaBaseURL)
	}
	if cfg.OmedaCacheEnabled {
		t.Fatalf("cache override ignored")
	}
}
