package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the login throttle parameters.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	// KeyPrefix namespaces counters when the Redis instance is shared.
	KeyPrefix string
}

// DefaultConfig allows five failures per email within ten minutes.
func DefaultConfig() Config {
	return Config{
		EnableIPThrottle:      true,
		MaxLoginAttempts:      5,
		LoginCooldownDuration: 10 * time.Minute,
		KeyPrefix:             "fitauth-dev",
	}
}

// Limiter counts failed logins per email and optionally per client IP in
// Redis fixed windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a Limiter backed by redisClient.
func New(redisClient redis.UniversalClient, cfg Config) (*Limiter, error) {
	if redisClient == nil {
		return nil, errors.New("rate: nil redis client")
	}
	if cfg.MaxLoginAttempts <= 0 || cfg.LoginCooldownDuration <= 0 {
		return nil, errors.New("rate: attempts and cooldown must be > 0")
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}, nil
}

// CheckLogin returns ErrRateLimited once the email or IP has used up its
// failure budget for the current window.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if err := l.checkCounter(ctx, l.loginUserKey(email)); err != nil {
		return err
	}

	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip)); err != nil {
			return err
		}
	}

	return nil
}

// IncrementLogin records a failed login. It returns ErrRateLimited when the
// failure exhausts the budget.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	count, err := l.incrementWithTTL(ctx, l.loginUserKey(email))
	if err != nil {
		return err
	}
	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.loginIPKey(ip))
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxLoginAttempts) {
			return ErrRateLimited
		}
	}

	return nil
}

// ResetLogin clears the email counter after a successful login.
func (l *Limiter) ResetLogin(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.loginUserKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginAttempts returns the failures recorded for email in the current
// window. Unknown emails report zero.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginUserKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) loginUserKey(email string) string {
	return l.config.KeyPrefix + ":login:" + strings.ToLower(strings.TrimSpace(email))
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.KeyPrefix + ":login-ip:" + ip
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed window: the TTL is set on the first hit only.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.LoginCooldownDuration).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
