package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	l, err := New(rdb, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, mr
}

func TestLoginBudgetExhausts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginAttempts = 3
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.IncrementLogin(ctx, "A@fit.dev", ""); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := l.CheckLogin(ctx, "a@fit.dev", ""); err != nil {
		t.Fatalf("expected budget left, got %v", err)
	}
	if err := l.IncrementLogin(ctx, "a@fit.dev", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.CheckLogin(ctx, "a@fit.dev", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	n, err := l.LoginAttempts(ctx, "a@fit.dev")
	if err != nil || n != 3 {
		t.Fatalf("LoginAttempts = %d, %v", n, err)
	}
}

func TestWindowExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginAttempts = 1
	cfg.LoginCooldownDuration = time.Minute
	l, mr := newLimiter(t, cfg)
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@fit.dev", "")
	if err := l.CheckLogin(ctx, "a@fit.dev", ""); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if err := l.CheckLogin(ctx, "a@fit.dev", ""); err != nil {
		t.Fatalf("expected window reset, got %v", err)
	}
}

func TestIPThrottleSpansEmails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginAttempts = 2
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@fit.dev", "10.0.0.1")
	_ = l.IncrementLogin(ctx, "b@fit.dev", "10.0.0.1")

	if err := l.CheckLogin(ctx, "c@fit.dev", "10.0.0.1"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected IP throttle, got %v", err)
	}
	if err := l.CheckLogin(ctx, "c@fit.dev", "10.0.0.2"); err != nil {
		t.Fatalf("other IP should pass, got %v", err)
	}
}

func TestResetLogin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxLoginAttempts = 1
	l, _ := newLimiter(t, cfg)
	ctx := context.Background()

	_ = l.IncrementLogin(ctx, "a@fit.dev", "")
	if err := l.ResetLogin(ctx, "a@fit.dev"); err != nil {
		t.Fatalf("ResetLogin: %v", err)
	}
	if err := l.CheckLogin(ctx, "a@fit.dev", ""); err != nil {
		t.Fatalf("expected reset, got %v", err)
	}
}

func TestRedisDownSurfaces(t *testing.T) {
	l, mr := newLimiter(t, DefaultConfig())
	mr.Close()

	if err := l.CheckLogin(context.Background(), "a@fit.dev", ""); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Fatal("expected error for nil client")
	}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer rdb.Close()
	if _, err := New(rdb, Config{}); err == nil {
		t.Fatal("expected error for zero config")
	}
}
