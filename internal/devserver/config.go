package devserver

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/MrEthical07/fitAuth/internal/rate"
)

// Config controls the dev server.
type Config struct {
	Addr string `env:"ADDR" envDefault:"127.0.0.1:8088"`
	// JWTSecret signs access tokens. A random secret is generated when empty,
	// which invalidates every token on restart.
	JWTSecret  string        `env:"JWT_SECRET"`
	Issuer     string        `env:"ISSUER" envDefault:"fitauth-devserver"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"0s"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	// EnableRevoke exposes POST /dev/sessions/revoke.
	EnableRevoke bool `env:"ENABLE_REVOKE" envDefault:"true"`
	// SeedDemoUsers creates a demo coach and student at startup.
	SeedDemoUsers bool `env:"SEED_DEMO_USERS" envDefault:"true"`

	// RedisAddr backs the login throttle. The binary embeds miniredis when empty.
	RedisAddr        string        `env:"REDIS_ADDR"`
	MaxLoginAttempts int           `env:"MAX_LOGIN_ATTEMPTS" envDefault:"5"`
	LoginCooldown    time.Duration `env:"LOGIN_COOLDOWN" envDefault:"10m"`
}

// RateConfig maps the throttle settings onto the limiter config.
func (c Config) RateConfig() rate.Config {
	cfg := rate.DefaultConfig()
	cfg.MaxLoginAttempts = c.MaxLoginAttempts
	cfg.LoginCooldownDuration = c.LoginCooldown
	return cfg
}

// LoadConfig reads optional .env files and FITAUTH_DEV_* variables.
func LoadConfig(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "FITAUTH_DEV_"}); err != nil {
		return Config{}, fmt.Errorf("parse dev server config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the envDefault values without reading the environment.
func DefaultConfig() Config {
	var cfg Config
	_ = env.ParseWithOptions(&cfg, env.Options{
		Prefix:      "FITAUTH_DEV_",
		Environment: map[string]string{},
	})
	return cfg
}

func (c *Config) secret() ([]byte, error) {
	if c.JWTSecret != "" {
		if len(c.JWTSecret) < 32 {
			return nil, errors.New("devserver: JWT secret must be at least 32 bytes")
		}
		return []byte(c.JWTSecret), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
