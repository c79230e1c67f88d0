package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/fitAuth/internal/devserver"
	"github.com/MrEthical07/fitAuth/internal/rate"
)

func main() {
	envFile := flag.String("env", ".env", "optional dotenv file")
	addr := flag.String("addr", "", "listen address, overrides FITAUTH_DEV_ADDR")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := devserver.LoadConfig(*envFile)
	if err != nil {
		logger.Error("devserver: load config failed", slog.Any("error", err))
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}

	rdb, closeRedis, err := throttleRedis(cfg.RedisAddr, logger)
	if err != nil {
		logger.Error("devserver: redis failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeRedis()

	limiter, err := rate.New(rdb, cfg.RateConfig())
	if err != nil {
		logger.Error("devserver: login throttle config invalid", slog.Any("error", err))
		os.Exit(1)
	}

	srv, err := devserver.New(cfg, devserver.WithLogger(logger), devserver.WithLoginLimiter(limiter))
	if err != nil {
		logger.Error("devserver: init failed", slog.Any("error", err))
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("devserver: shutdown failed", slog.Any("error", err))
		}
	}()

	logger.Info("devserver: listening",
		slog.String("addr", cfg.Addr),
		slog.Bool("seed_demo_users", cfg.SeedDemoUsers),
		slog.Bool("revoke_endpoint", cfg.EnableRevoke))

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("devserver: serve failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("devserver: stopped")
}

// throttleRedis connects to addr, or starts an embedded miniredis when addr
// is empty.
func throttleRedis(addr string, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		logger.Info("devserver: login throttle on redis", slog.String("addr", addr))
		return rdb, func() { _ = rdb.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	logger.Info("devserver: login throttle on embedded miniredis", slog.String("addr", mr.Addr()))
	return rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}, nil
}
