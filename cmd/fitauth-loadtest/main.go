package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	fitAuth "github.com/MrEthical07/fitAuth"
	"github.com/MrEthical07/fitAuth/apiclient"
	"github.com/MrEthical07/fitAuth/internal/devserver"
	"github.com/MrEthical07/fitAuth/session"
)

// Runs authenticated traffic against an in-process dev server, revokes the
// session server-side and fires a burst of requests that all see 401. A
// healthy build reports exactly one executed logout and one navigation.
func main() {
	var (
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 2000, "authenticated requests before revocation")
		burst       = flag.Int("burst", 256, "requests fired after revocation")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "fitauth-loadtest", "credential key prefix")
	)
	flag.Parse()

	if *concurrency <= 0 || *ops <= 0 || *burst <= 0 {
		fmt.Fprintln(os.Stderr, "concurrency, ops, and burst must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		rdb     redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = rdb.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = rdb.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	srv, err := devserver.New(devserver.DefaultConfig(), devserver.WithLogger(quiet))
	if err != nil {
		fmt.Fprintf(os.Stderr, "dev server: %v\n", err)
		os.Exit(1)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var navigations atomic.Int64
	cfg := fitAuth.DefaultConfig()
	cfg.API.BaseURL = ts.URL
	cfg.Storage.Backend = fitAuth.StorageRedis
	cfg.Storage.RedisAddr = addr
	cfg.Storage.KeyPrefix = *prefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	client, err := fitAuth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(quiet).
		WithNavigator(fitAuth.NavigatorFunc(func(string) error {
			navigations.Add(1)
			return nil
		})).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build client: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if _, err := client.Login(ctx, session.Credentials{
		Email:    devserver.DemoStudentEmail,
		Password: devserver.DemoPassword,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	authed := runPhase(ctx, client.API(), *ops, *concurrency)

	srv.Revoke(devserver.DemoStudentEmail)
	storm := runPhase(ctx, client.API(), *burst, *concurrency)
	client.Coordinator().Wait()

	snap := client.MetricsSnapshot()

	fmt.Println("---- results ----")
	printStats("authenticated", authed)
	printStats("revoked", storm)
	fmt.Printf("forced logouts: triggered=%d executed=%d suppressed=%d navigations=%d state=%s\n",
		snap.Counters[fitAuth.MetricForcedLogoutTriggered],
		snap.Counters[fitAuth.MetricForcedLogoutExecuted],
		snap.Counters[fitAuth.MetricForcedLogoutSuppressed],
		navigations.Load(),
		client.State().Status(),
	)

	if snap.Counters[fitAuth.MetricForcedLogoutExecuted] != 1 || navigations.Load() != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one logout sequence")
		os.Exit(1)
	}
}

func runPhase(ctx context.Context, api *apiclient.Client, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		expired   int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := api.Workouts(ctx)
				d := time.Since(t0)
				switch {
				case errors.Is(err, apiclient.ErrSessionExpired):
					atomic.AddInt64(&expired, 1)
				case err != nil:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	s := computeStats(total, latencies, failures)
	s.expired = expired
	return s
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	expired  int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d expired=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.expired,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
