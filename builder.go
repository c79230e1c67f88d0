package fitAuth

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/fitAuth/apiclient"
	"github.com/MrEthical07/fitAuth/credstore"
)

// Builder assembles a Client: credential store, state machine, request
// interceptor and logout coordinator, wired together once.
type Builder struct {
	config Config
	kv     credstore.KV
	redis  redis.UniversalClient

	backend     Backend
	navigator   Navigator
	fallback    func(routeID string) error
	logger      *slog.Logger
	auditSink   AuditSink
	httpClient  *http.Client
	coordinator *Coordinator
	global      bool

	built bool
}

// New returns a Builder with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithKV supplies the credential KV directly, overriding Storage.Backend.
func (b *Builder) WithKV(kv credstore.KV) *Builder {
	b.kv = kv
	return b
}

// WithRedis supplies the client used when Storage.Backend is redis. The
// caller keeps ownership; Close does not close it.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithBackend replaces the HTTP auth backend, mostly for tests.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithNavigator wires the navigation service into the coordinator.
func (b *Builder) WithNavigator(nav Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithFallbackRedirect sets the redirect used when navigation is unavailable.
func (b *Builder) WithFallbackRedirect(fn func(routeID string) error) *Builder {
	b.fallback = fn
	return b
}

// WithLogger sets the logger shared by every component.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets where lifecycle events go when Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHTTPClient replaces the interceptor's *http.Client.
func (b *Builder) WithHTTPClient(hc *http.Client) *Builder {
	b.httpClient = hc
	return b
}

// WithCoordinator uses c instead of building a private coordinator. c must
// not have a state mutator or store wired yet; Build hands it the rest of the
// client's wiring as well.
func (b *Builder) WithCoordinator(c *Coordinator) *Builder {
	b.coordinator = c
	return b
}

// UseGlobalCoordinator wires the process-wide Default coordinator. Only one
// Client per process can do so.
func (b *Builder) UseGlobalCoordinator() *Builder {
	b.global = true
	return b
}

// WithMetricsEnabled toggles the lifecycle counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms enables the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build wires the store, state machine, interceptor and coordinator.
//
// Build may return an error when the configuration is invalid, a storage
// backend cannot be created or the coordinator is already wired.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{config: cfg, logger: logger}

	// -------- CREDENTIAL STORE --------
	kv, err := b.buildKV(cfg, c)
	if err != nil {
		return nil, err
	}
	c.store = credstore.New(kv,
		credstore.WithPrefix(cfg.Storage.KeyPrefix),
		credstore.WithLogger(logger),
	)

	c.metrics = NewMetrics(cfg.Metrics)
	c.audit = newAuditDispatcher(cfg.Audit, b.auditSink)

	// -------- LOGOUT COORDINATOR --------
	coord := b.coordinator
	switch {
	case b.global:
		coord = Default()
	case coord == nil:
		coord = NewCoordinator(nil)
	}

	// -------- REQUEST INTERCEPTOR --------
	backend := b.backend
	if cfg.API.BaseURL != "" {
		opts := []apiclient.Option{
			apiclient.WithTimeout(cfg.API.Timeout),
			apiclient.WithUserAgent(cfg.API.UserAgent),
			apiclient.WithLogger(logger),
		}
		if b.httpClient != nil {
			opts = append(opts, apiclient.WithHTTPClient(b.httpClient))
		}
		api, err := apiclient.New(cfg.API.BaseURL, c.store, coord, opts...)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.api = api
		c.auth = apiclient.NewAuthAPI(api)
		if backend == nil {
			backend = c.auth
		}
	}

	// -------- STATE MACHINE --------
	c.machine = NewMachine(c.store, backend,
		WithMachineLogger(logger),
		WithRestoreConfig(cfg.Restore),
		WithMachineMetrics(c.metrics),
		withMachineAudit(c.audit),
	)

	// A shared coordinator is either fully wired to this client or untouched.
	err = coord.attach(wiring{
		mutator:   c.machine.ForceClear,
		navigator: b.navigator,
		store:     c.store,
		fallback:  b.fallback,
		logger:    logger,
		metrics:   c.metrics,
		audit:     c.audit,
	}, cfg.Logout)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("wire logout coordinator: %w", err)
	}
	c.coordinator = coord

	b.built = true

	return c, nil
}

func (b *Builder) buildKV(cfg Config, c *Client) (credstore.KV, error) {
	if b.kv != nil {
		return b.kv, nil
	}

	switch cfg.Storage.Backend {
	case StorageFile:
		return credstore.NewFileKV(cfg.Storage.FilePath), nil
	case StorageRedis:
		rdb := b.redis
		if rdb == nil {
			own := redis.NewClient(&redis.Options{
				Addr: cfg.Storage.RedisAddr,
				DB:   cfg.Storage.RedisDB,
			})
			c.ownedRedis = own
			rdb = own
		}
		return credstore.NewRedisKV(rdb, cfg.Storage.RedisTTL), nil
	default:
		return credstore.NewMemoryKV(), nil
	}
}
