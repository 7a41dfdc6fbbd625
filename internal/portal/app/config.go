package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Issuer        string `yaml:"issuer"`          // Issuer claim for access tokens (default: portal)
	PublicBaseURL string `yaml:"public_base_url"` // Prefix of form share URLs

	KeyStorageMode string `yaml:"key_storage_mode"` // ephemeral or file (default: ephemeral)
	KeyDir         string `yaml:"key_dir"`          // PEM directory for file mode (default: ./keys)
	NumKeys        int    `yaml:"num_keys"`         // Signing keys to keep (default: 1, max: 10)
	PepperFile     string `yaml:"pepper_file"`      // Password pepper file (default: ./pepper)

	DatabaseDriver string `yaml:"database_driver"` // sqlite or postgres (default: sqlite)
	DatabaseFile   string `yaml:"database_file"`   // SQLite path (default: ./portal.db)
	DatabaseURL    string `yaml:"database_url"`    // Postgres connection string
	RedisAddr      string `yaml:"redis_addr"`      // Activity tracker backend; empty keeps it in memory
	RedisPrefix    string `yaml:"redis_prefix"`    // Key prefix for the activity tracker

	AccessTTL          time.Duration `yaml:"access_token_ttl"`     // default: 15m
	RefreshTTL         time.Duration `yaml:"refresh_token_ttl"`    // default: 168h
	RefreshRotation    bool          `yaml:"refresh_rotation"`     // default: true
	InviteTTL          time.Duration `yaml:"invite_code_ttl"`      // default: 2h
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"` // default: 15m

	AuditBufferSize int  `yaml:"audit_buffer_size"`  // default: 1024
	AuditDropIfFull bool `yaml:"audit_drop_if_full"` // default: false

	Env                  string        `yaml:"env"`                   // dev, staging, prod (default: dev)
	LogLevel             string        `yaml:"log_level"`             // debug, info, warn, error (default: info)
	LogFormat            string        `yaml:"log_format"`            // json or text (default: json)
	Addr                 string        `yaml:"addr"`                  // Listen address (default: :8080)
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"` // default: 10s
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"` // default: 1h
}

func DefaultConfig() Config {
	return Config{
		Issuer:               "portal",
		KeyStorageMode:       "ephemeral",
		KeyDir:               "keys",
		NumKeys:              1,
		PepperFile:           "pepper",
		DatabaseDriver:       "sqlite",
		DatabaseFile:         "portal.db",
		RedisPrefix:          "portal:activity",
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           7 * 24 * time.Hour,
		RefreshRotation:      true,
		InviteTTL:            2 * time.Hour,
		SessionIdleTimeout:   15 * time.Minute,
		AuditBufferSize:      1024,
		Env:                  "dev",
		LogLevel:             "info",
		LogFormat:            "json",
		Addr:                 ":8080",
		ShutdownGracePeriod:  10 * time.Second,
		HousekeepingInterval: time.Hour,
	}
}

// LoadConfig layers the defaults, an optional YAML file and the
// environment, in that order. An empty path falls back to
// PORTAL_CONFIG_FILE.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("PORTAL_CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - operator supplied config path
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.Issuer = getEnvOrDefault("PORTAL_ISSUER", cfg.Issuer)
	cfg.PublicBaseURL = getEnvOrDefault("PUBLIC_BASE_URL", cfg.PublicBaseURL)
	cfg.KeyStorageMode = getEnvOrDefault("PORTAL_KEY_STORAGE_MODE", cfg.KeyStorageMode)
	cfg.KeyDir = getEnvOrDefault("PORTAL_KEY_DIR", cfg.KeyDir)
	cfg.NumKeys = getEnvIntOrDefault("PORTAL_NUM_KEYS", cfg.NumKeys)
	cfg.PepperFile = getEnvOrDefault("PORTAL_PEPPER_FILE", cfg.PepperFile)

	cfg.DatabaseDriver = getEnvOrDefault("DATABASE_DRIVER", cfg.DatabaseDriver)
	cfg.DatabaseFile = getEnvOrDefault("DATABASE_FILE", cfg.DatabaseFile)
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPrefix = getEnvOrDefault("REDIS_PREFIX", cfg.RedisPrefix)

	cfg.AccessTTL = getEnvDurationOrDefault("ACCESS_TOKEN_TTL", cfg.AccessTTL)
	cfg.RefreshTTL = getEnvDurationOrDefault("REFRESH_TOKEN_TTL", cfg.RefreshTTL)
	cfg.RefreshRotation = getEnvBoolOrDefault("REFRESH_ROTATION", cfg.RefreshRotation)
	cfg.InviteTTL = getEnvDurationOrDefault("INVITE_CODE_TTL", cfg.InviteTTL)
	cfg.SessionIdleTimeout = getEnvDurationOrDefault("SESSION_IDLE_TIMEOUT", cfg.SessionIdleTimeout)

	cfg.AuditBufferSize = getEnvIntOrDefault("AUDIT_BUFFER_SIZE", cfg.AuditBufferSize)
	cfg.AuditDropIfFull = getEnvBoolOrDefault("AUDIT_DROP_IF_FULL", cfg.AuditDropIfFull)

	cfg.Env = getEnvOrDefault("ENV", cfg.Env)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)
	cfg.Addr = getEnvOrDefault("PORTAL_ADDR", cfg.Addr)
	if port := getEnvIntOrDefault("PORT", 0); port > 0 {
		cfg.Addr = fmt.Sprintf(":%d", port)
	}
	cfg.ShutdownGracePeriod = getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)
	cfg.HousekeepingInterval = getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", cfg.HousekeepingInterval)

	return cfg, cfg.Validate()
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.DatabaseDriver {
	case "sqlite":
		if c.DatabaseFile == "" {
			errs = append(errs, errors.New("database_file is required for sqlite"))
		}
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.DatabaseDriver))
	}
	switch c.KeyStorageMode {
	case "ephemeral", "file":
	default:
		errs = append(errs, fmt.Errorf("unknown key storage mode %q", c.KeyStorageMode))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.InviteTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("session_idle_timeout must be positive"))
	}
	return errors.Join(errs...)
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

	if b, err := strconv.ParseBool(value); err == nil {
		return b
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

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
