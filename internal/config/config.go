package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/evvec/ps-tracker/internal/platform/logging"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration for the bot.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string

	DBURL string

	TelegramToken       string
	TelegramBaseURL     string
	TelegramTimeout     time.Duration
	TelegramPollTimeout time.Duration

	OmedaBaseURL               string
	OmedaTimeout               time.Duration
	OmedaMaxRetries            int
	OmedaCircuitEnabled        bool
	OmedaCircuitFailureCount   int
	OmedaCircuitOpenTimeout    time.Duration
	OmedaCircuitHalfOpenMaxReq int
	OmedaCacheEnabled          bool
	OmedaCacheTTL              time.Duration

	FetchWorkers int
	RefreshHour  int

	UptraceEnabled bool
	UptraceDSN     string

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string

	LogLevel logging.Level
}

func Load() (Config, error) {
	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:          appEnv,
		ServiceName:     getEnv("APP_NAME", "ps-tracker"),
		ServiceVersion:  getEnv("APP_VERSION", "dev"),
		DBURL:           strings.TrimSpace(getEnv("DB_URL", "")),
		TelegramToken:   strings.TrimSpace(getEnv("TELEGRAM_TOKEN", "")),
		TelegramBaseURL: strings.TrimSpace(getEnv("TELEGRAM_BASE_URL", "")),
		OmedaBaseURL:    strings.TrimSpace(getEnv("OMEDA_BASE_URL", "")),
		UptraceDSN:      strings.TrimSpace(getEnv("UPTRACE_DSN", "")),
	}

	if cfg.TelegramToken == "" {
		return Config{}, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	cfg.TelegramTimeout, err = time.ParseDuration(getEnv("TELEGRAM_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse TELEGRAM_TIMEOUT: %w", err)
	}

	cfg.TelegramPollTimeout, err = time.ParseDuration(getEnv("TELEGRAM_POLL_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse TELEGRAM_POLL_TIMEOUT: %w", err)
	}

	cfg.OmedaTimeout, err = time.ParseDuration(getEnv("OMEDA_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse OMEDA_TIMEOUT: %w", err)
	}

	cfg.OmedaMaxRetries, err = getEnvAsInt("OMEDA_MAX_RETRIES", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse OMEDA_MAX_RETRIES: %w", err)
	}
	if cfg.OmedaMaxRetries < 0 {
		return Config{}, fmt.Errorf("OMEDA_MAX_RETRIES must be >= 0")
	}

	cfg.OmedaCircuitEnabled, err = strconv.ParseBool(getEnv("OMEDA_CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse OMEDA_CIRCUIT_ENABLED: %w", err)
	}

	cfg.OmedaCircuitFailureCount, err = getEnvAsInt("OMEDA_CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse OMEDA_CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if cfg.OmedaCircuitFailureCount < 1 {
		return Config{}, fmt.Errorf("OMEDA_CIRCUIT_FAILURE_COUNT must be >= 1")
	}

	cfg.OmedaCircuitOpenTimeout, err = time.ParseDuration(getEnv("OMEDA_CIRCUIT_OPEN_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse OMEDA_CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if cfg.OmedaCircuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("OMEDA_CIRCUIT_OPEN_TIMEOUT must be > 0")
	}

	cfg.OmedaCircuitHalfOpenMaxReq, err = getEnvAsInt("OMEDA_CIRCUIT_HALF_OPEN_MAX_REQ", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse OMEDA_CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if cfg.OmedaCircuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("OMEDA_CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}

	cfg.OmedaCacheEnabled, err = strconv.ParseBool(getEnv("OMEDA_CACHE_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse OMEDA_CACHE_ENABLED: %w", err)
	}

	cfg.OmedaCacheTTL, err = time.ParseDuration(getEnv("OMEDA_CACHE_TTL", "1m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse OMEDA_CACHE_TTL: %w", err)
	}
	if cfg.OmedaCacheEnabled && cfg.OmedaCacheTTL <= 0 {
		return Config{}, fmt.Errorf("OMEDA_CACHE_TTL must be > 0 when OMEDA_CACHE_ENABLED=true")
	}

	cfg.FetchWorkers, err = getEnvAsInt("FETCH_WORKERS", 8)
	if err != nil {
		return Config{}, fmt.Errorf("parse FETCH_WORKERS: %w", err)
	}
	if cfg.FetchWorkers < 1 {
		return Config{}, fmt.Errorf("FETCH_WORKERS must be >= 1")
	}

	cfg.RefreshHour, err = getEnvAsInt("REFRESH_HOUR", 4)
	if err != nil {
		return Config{}, fmt.Errorf("parse REFRESH_HOUR: %w", err)
	}
	if cfg.RefreshHour < 0 || cfg.RefreshHour > 23 {
		return Config{}, fmt.Errorf("REFRESH_HOUR must be between 0 and 23")
	}

	cfg.UptraceEnabled, err = strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}

	cfg.PyroscopeEnabled, err = strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	cfg.PyroscopeAppName = getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName)
	cfg.PyroscopeAuthToken = strings.TrimSpace(getEnv("PYROSCOPE_AUTH_TOKEN", ""))
	cfg.PyroscopeBasicAuthUser = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_USER", ""))
	cfg.PyroscopeBasicAuthPassword = strings.TrimSpace(getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}

	cfg.LogLevel = parseLogLevel(getEnv("APP_LOG_LEVEL", "info"))

	return cfg, nil
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}
