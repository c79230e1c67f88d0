package fitAuth

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full client configuration. Field tags map it onto FITAUTH_*
// environment variables.
type Config struct {
	Storage StorageConfig `envPrefix:"STORAGE_"`
	API     APIConfig     `envPrefix:"API_"`
	Logout  LogoutConfig  `envPrefix:"LOGOUT_"`
	Restore RestoreConfig `envPrefix:"RESTORE_"`
	Audit   AuditConfig   `envPrefix:"AUDIT_"`
	Metrics MetricsConfig `envPrefix:"METRICS_"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageBackend selects the credential store backend built by the Builder
// when no KV is supplied explicitly.
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageRedis  StorageBackend = "redis"
	StorageFile   StorageBackend = "file"
)

// StorageConfig controls credential persistence.
type StorageConfig struct {
	Backend   StorageBackend `env:"BACKEND"`
	KeyPrefix string         `env:"KEY_PREFIX"`
	FilePath  string         `env:"FILE_PATH"`
	RedisAddr string         `env:"REDIS_ADDR"`
	RedisDB   int            `env:"REDIS_DB"`
	// RedisTTL bounds how long credentials survive in Redis. Zero keeps them
	// until logout.
	RedisTTL time.Duration `env:"REDIS_TTL"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig controls the request interceptor.
type APIConfig struct {
	BaseURL   string        `env:"BASE_URL"`
	Timeout   time.Duration `env:"TIMEOUT"`
	UserAgent string        `env:"USER_AGENT"`
}

/*
====================================
LOGOUT CONFIG
====================================
*/

// LogoutConfig tunes the global logout coordinator.
type LogoutConfig struct {
	// Cooldown collapses logout triggers arriving shortly after a completed
	// logout. It only needs to be long enough to absorb a burst of requests
	// failing together.
	Cooldown time.Duration `env:"COOLDOWN"`
	// ResetDelay is how long the in-progress flag stays set after a logout
	// sequence completes.
	ResetDelay time.Duration `env:"RESET_DELAY"`
	// EntryRoute is the unauthenticated entry point navigated to on logout.
	EntryRoute string `env:"ENTRY_ROUTE"`
}

/*
====================================
RESTORE CONFIG
====================================
*/

// RestoreConfig controls startup restore.
type RestoreConfig struct {
	RejectExpiredTokens bool          `env:"REJECT_EXPIRED_TOKENS"`
	ClockSkew           time.Duration `env:"CLOCK_SKEW"`
}

// AuditConfig controls the async lifecycle event dispatcher.
type AuditConfig struct {
	Enabled    bool `env:"ENABLED"`
	BufferSize int  `env:"BUFFER_SIZE"`
	DropIfFull bool `env:"DROP_IF_FULL"`
}

type MetricsConfig struct {
	Enabled                 bool `env:"ENABLED"`
	EnableLatencyHistograms bool `env:"ENABLE_LATENCY_HISTOGRAMS"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultEntryRoute is the route navigated to after logout.
const DefaultEntryRoute = "auth/login"

func defaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Backend:   StorageMemory,
			KeyPrefix: "fitauth",
		},
		API: APIConfig{
			Timeout:   15 * time.Second,
			UserAgent: "fitAuth/1",
		},
		Logout: LogoutConfig{
			Cooldown:   2 * time.Second,
			ResetDelay: 500 * time.Millisecond,
			EntryRoute: DefaultEntryRoute,
		},
		Restore: RestoreConfig{
			RejectExpiredTokens: true,
			ClockSkew:           30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	return cfg
}

// LoadConfigFromEnv starts from the defaults, loads the optional .env files
// (missing files are ignored) and overlays FITAUTH_* environment variables.
func LoadConfigFromEnv(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := defaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "FITAUTH_"}); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the client cannot run with. Every error
// wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	// Storage
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if strings.TrimSpace(c.Storage.RedisAddr) == "" {
			return invalid("Storage RedisAddr required for redis backend")
		}
		if c.Storage.RedisTTL < 0 {
			return invalid("Storage RedisTTL must be >= 0")
		}
	case StorageFile:
		if strings.TrimSpace(c.Storage.FilePath) == "" {
			return invalid("Storage FilePath required for file backend")
		}
	default:
		return invalid("unsupported Storage Backend")
	}
	if strings.ContainsAny(c.Storage.KeyPrefix, " \t\n") {
		return invalid("Storage KeyPrefix must not contain whitespace")
	}

	// API
	if c.API.BaseURL != "" {
		u, err := url.Parse(c.API.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return invalid("API BaseURL must be an absolute URL")
		}
	}
	if c.API.Timeout < 0 {
		return invalid("API Timeout must be >= 0")
	}

	// Logout
	if c.Logout.Cooldown < 0 {
		return invalid("Logout Cooldown must be >= 0")
	}
	if c.Logout.ResetDelay < 0 {
		return invalid("Logout ResetDelay must be >= 0")
	}
	if strings.TrimSpace(c.Logout.EntryRoute) == "" {
		return invalid("Logout EntryRoute must be set")
	}

	// Restore
	if c.Restore.ClockSkew < 0 {
		return invalid("Restore ClockSkew must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalid("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
