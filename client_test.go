package fitAuth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/fitAuth/apiclient"
	"github.com/MrEthical07/fitAuth/credstore"
	"github.com/MrEthical07/fitAuth/internal/devserver"
	"github.com/MrEthical07/fitAuth/password"
	"github.com/MrEthical07/fitAuth/session"
)

type routeRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *routeRecorder) Replace(route string) error {
	r.mu.Lock()
	r.routes = append(r.routes, route)
	r.mu.Unlock()
	return nil
}

func (r *routeRecorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.routes...)
}

func startDevServer(t *testing.T) (*devserver.Server, *httptest.Server) {
	t.Helper()
	srv, err := devserver.New(devserver.DefaultConfig(), devserver.WithPasswordConfig(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	}))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func buildClient(t *testing.T, baseURL string, nav Navigator, kv credstore.KV) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.Logout.Cooldown = 2 * time.Second
	cfg.Logout.ResetDelay = 20 * time.Millisecond
	cfg.Metrics.Enabled = true

	b := New().WithConfig(cfg).WithNavigator(nav)
	if kv != nil {
		b.WithKV(kv)
	}
	c, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClientLoginAndRestore(t *testing.T) {
	_, ts := startDevServer(t)
	kv := credstore.NewMemoryKV()
	ctx := context.Background()

	c := buildClient(t, ts.URL, &routeRecorder{}, kv)
	assert.Equal(t, StatusUnauthenticated, c.Restore(ctx).Status())

	sess, err := c.Login(ctx, session.Credentials{Email: devserver.DemoCoachEmail, Password: devserver.DemoPassword})
	require.NoError(t, err)
	assert.Equal(t, session.RoleCoach, sess.Role)
	assert.Empty(t, sess.RefreshToken)

	workouts, err := c.API().Workouts(ctx)
	require.NoError(t, err)
	assert.Len(t, workouts, 1)

	// A second client over the same storage restores without the network.
	restarted := buildClient(t, "http://127.0.0.1:1", &routeRecorder{}, kv)
	state := restarted.Restore(ctx)
	require.Equal(t, StatusAuthenticated, state.Status())
	role, _ := state.Role()
	assert.Equal(t, session.RoleCoach, role)
}

func TestClientServerRevocationLogsOutOnce(t *testing.T) {
	srv, ts := startDevServer(t)
	nav := &routeRecorder{}
	ctx := context.Background()

	c := buildClient(t, ts.URL, nav, nil)
	_, err := c.Login(ctx, session.Credentials{Email: devserver.DemoStudentEmail, Password: devserver.DemoPassword})
	require.NoError(t, err)

	srv.Revoke(devserver.DemoStudentEmail)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			time.Sleep(time.Duration(i) * 25 * time.Millisecond)
			_, errs[i] = c.API().Workouts(ctx)
		}(i)
	}
	wg.Wait()
	c.Coordinator().Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, apiclient.IsSessionExpired(err), "got %v", err)
	}

	assert.Equal(t, StatusUnauthenticated, c.State().Status())
	stored, err := c.Store().Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Equal(t, []string{DefaultEntryRoute}, nav.list())

	snap := c.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricForcedLogoutExecuted])
}

func TestClientLogoutRevokesServerSession(t *testing.T) {
	_, ts := startDevServer(t)
	ctx := context.Background()

	c := buildClient(t, ts.URL, &routeRecorder{}, nil)
	sess, err := c.Login(ctx, session.Credentials{Email: devserver.DemoStudentEmail, Password: devserver.DemoPassword})
	require.NoError(t, err)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, StatusUnauthenticated, c.State().Status())

	req, err := http.NewRequest(http.MethodGet, ts.URL+apiclient.PathMe, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClientRegisterValidationError(t *testing.T) {
	_, ts := startDevServer(t)
	ctx := context.Background()

	c := buildClient(t, ts.URL, &routeRecorder{}, nil)
	_, err := c.Register(ctx, session.Registration{
		Name:        "Ana",
		Email:       devserver.DemoStudentEmail,
		Password:    "long-enough",
		AccountType: session.AccountTypeStudent,
	})
	require.Error(t, err)

	apiErr, ok := apiclient.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "already registered", apiErr.FieldMessage("email"))
	assert.Equal(t, StatusUnauthenticated, c.State().Status())
}

func TestClientWithRedisStorage(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	_, ts := startDevServer(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.API.BaseURL = ts.URL
	cfg.Storage.Backend = StorageRedis
	cfg.Storage.RedisAddr = mr.Addr()
	c, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = c.Login(ctx, session.Credentials{Email: devserver.DemoStudentEmail, Password: devserver.DemoPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	require.NoError(t, c.Logout(ctx))
	assert.Empty(t, mr.Keys())
}

func TestBuilderRejectsSecondGlobalClient(t *testing.T) {
	coord := NewCoordinator(nil)

	first, err := New().WithCoordinator(coord).Build()
	require.NoError(t, err)
	t.Cleanup(first.Close)

	_, err = New().WithCoordinator(coord).Build()
	assert.ErrorIs(t, err, ErrAlreadyWired)
}

func TestBuilderSingleUse(t *testing.T) {
	b := New()
	c, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(c.Close)

	_, err = b.Build()
	assert.ErrorIs(t, err, ErrBuilderUsed)
}

func TestSharedCoordinatorReceivesClientWiring(t *testing.T) {
	coord := NewCoordinator(nil)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Logout.ResetDelay = 0

	var fallbacks atomic.Int32
	c, err := New().WithConfig(cfg).WithCoordinator(coord).WithFallbackRedirect(func(route string) error {
		assert.Equal(t, DefaultEntryRoute, route)
		fallbacks.Add(1)
		return nil
	}).Build()
	require.NoError(t, err)
	t.Cleanup(c.Close)

	require.True(t, coord.PerformLogout(ctx, ReasonManual))
	assert.Equal(t, int32(1), fallbacks.Load())

	snap := c.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[MetricForcedLogoutTriggered])
	assert.Equal(t, uint64(1), snap.Counters[MetricForcedLogoutExecuted])
	assert.Equal(t, uint64(1), snap.Counters[MetricNavigationFallback])
}

func TestSharedCoordinatorUntouchedWhenWiringFails(t *testing.T) {
	t.Run("mutator already wired", func(t *testing.T) {
		coord := NewCoordinator(nil)
		require.NoError(t, coord.SetStateMutator(func() {}))

		_, err := New().WithCoordinator(coord).Build()
		require.ErrorIs(t, err, ErrAlreadyWired)

		w := coord.wired()
		assert.Nil(t, w.store)
		require.NoError(t, coord.SetStore(StoreClearerFunc(func(context.Context) error { return nil })))
	})

	t.Run("navigator already wired", func(t *testing.T) {
		coord := NewCoordinator(nil)
		require.NoError(t, coord.SetNavigator(&routeRecorder{}))

		cfg := DefaultConfig()
		cfg.Metrics.Enabled = true
		_, err := New().WithConfig(cfg).WithCoordinator(coord).WithNavigator(&routeRecorder{}).Build()
		require.ErrorIs(t, err, ErrAlreadyWired)

		w := coord.wired()
		assert.Nil(t, w.store)
		assert.Nil(t, w.mutator)
		assert.Nil(t, w.metrics)
	})
}

func TestClientAuditTrail(t *testing.T) {
	srv, ts := startDevServer(t)
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.API.BaseURL = ts.URL
	cfg.Logout.ResetDelay = 0
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := NewChannelSink(16)
	c, err := New().WithConfig(cfg).WithNavigator(&routeRecorder{}).WithAuditSink(sink).Build()
	require.NoError(t, err)

	_, err = c.Login(ctx, session.Credentials{Email: devserver.DemoCoachEmail, Password: devserver.DemoPassword})
	require.NoError(t, err)
	srv.Revoke(devserver.DemoCoachEmail)
	_, err = c.API().Workouts(ctx)
	require.Error(t, err)
	c.Close()

	var events []AuditEvent
	for len(sink.Events()) > 0 {
		events = append(events, <-sink.Events())
	}
	require.GreaterOrEqual(t, len(events), 2)

	login := events[0]
	assert.Equal(t, AuditLogin, login.Kind)
	assert.True(t, login.Success)
	assert.Equal(t, string(session.AccountTypePersonalTrainer), login.AccountType)

	var forced *AuditEvent
	for i := range events {
		if events[i].Kind == AuditForcedLogout {
			forced = &events[i]
		}
	}
	require.NotNil(t, forced)
	assert.Equal(t, ReasonSessionExpired, forced.Reason)
	assert.NotEmpty(t, forced.LogoutID)
	assert.True(t, forced.Success)
}
