package fitAuth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/fitAuth/internal/audit"
)

// Navigator replaces the whole navigation stack with routeID, so back
// navigation cannot return to an authenticated screen.
type Navigator interface {
	Replace(routeID string) error
}

// NavigatorFunc adapts a plain func to Navigator.
type NavigatorFunc func(routeID string) error

// Replace calls f(routeID).
func (f NavigatorFunc) Replace(routeID string) error {
	return f(routeID)
}

// LogoutRequest identifies one executed forced-logout sequence.
type LogoutRequest struct {
	ID        uuid.UUID
	Reason    string
	Timestamp time.Time
}

// Reasons passed to the coordinator by this module.
const (
	ReasonSessionExpired = "session_expired"
	ReasonManual         = "manual"
)

const storeClearTimeout = 5 * time.Second

// Coordinator guarantees that a burst of session-invalid events runs the
// logout sequence (state clear, storage wipe, navigation) exactly once.
//
// The state mutator and navigator are injected after construction by the
// composition root; until then logout degrades to storage wipe plus the
// fallback redirect.
type Coordinator struct {
	mu            sync.Mutex
	cfg           LogoutConfig
	inProgress    bool
	lastCompleted time.Time
	lastRequest   LogoutRequest

	wireMu sync.RWMutex
	w      wiring

	now func() time.Time
	wg  sync.WaitGroup
}

// wiring is everything a Client hands to its coordinator.
type wiring struct {
	mutator   func()
	navigator Navigator
	store     StoreClearer
	fallback  func(routeID string) error

	logger  *slog.Logger
	metrics *Metrics
	audit   *audit.Dispatcher
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLogoutConfig sets cooldown, reset delay and entry route.
func WithLogoutConfig(cfg LogoutConfig) CoordinatorOption {
	return func(c *Coordinator) {
		c.cfg = normalizeLogoutConfig(cfg)
	}
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.w.logger = l
		}
	}
}

// WithCoordinatorMetrics records forced-logout counters into metrics.
func WithCoordinatorMetrics(m *Metrics) CoordinatorOption {
	return func(c *Coordinator) {
		c.w.metrics = m
	}
}

// WithFallbackRedirect sets the redirect used when no navigator is wired or
// the navigator fails.
func WithFallbackRedirect(fn func(routeID string) error) CoordinatorOption {
	return func(c *Coordinator) {
		c.w.fallback = fn
	}
}

// WithCoordinatorClock replaces time.Now for cooldown bookkeeping.
func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func withCoordinatorAudit(d *audit.Dispatcher) CoordinatorOption {
	return func(c *Coordinator) {
		c.w.audit = d
	}
}

// NewCoordinator creates an isolated coordinator. store may be nil and set
// later with SetStore.
func NewCoordinator(store StoreClearer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cfg: defaultConfig().Logout,
		w: wiring{
			store:  store,
			logger: slog.Default(),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	defaultCoordinator     *Coordinator
	defaultCoordinatorOnce sync.Once
)

// Default returns the process-wide coordinator.
func Default() *Coordinator {
	defaultCoordinatorOnce.Do(func() {
		defaultCoordinator = NewCoordinator(nil)
	})
	return defaultCoordinator
}

func normalizeLogoutConfig(cfg LogoutConfig) LogoutConfig {
	if cfg.EntryRoute == "" {
		cfg.EntryRoute = DefaultEntryRoute
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.ResetDelay < 0 {
		cfg.ResetDelay = 0
	}
	return cfg
}

/*
====================================
INJECTION
====================================
*/

// SetStateMutator wires the func that clears the auth state synchronously,
// normally Machine.ForceClear. It succeeds once.
func (c *Coordinator) SetStateMutator(fn func()) error {
	if fn == nil {
		return ErrNilDependency
	}
	c.wireMu.Lock()
	defer c.wireMu.Unlock()
	if c.w.mutator != nil {
		return ErrAlreadyWired
	}
	c.w.mutator = fn
	return nil
}

// SetNavigator wires the navigation service. It succeeds once.
func (c *Coordinator) SetNavigator(nav Navigator) error {
	if nav == nil {
		return ErrNilDependency
	}
	c.wireMu.Lock()
	defer c.wireMu.Unlock()
	if c.w.navigator != nil {
		return ErrAlreadyWired
	}
	c.w.navigator = nav
	return nil
}

// SetStore wires the credential store wiped during logout. It succeeds once.
func (c *Coordinator) SetStore(store StoreClearer) error {
	if store == nil {
		return ErrNilDependency
	}
	c.wireMu.Lock()
	defer c.wireMu.Unlock()
	if c.w.store != nil {
		return ErrAlreadyWired
	}
	c.w.store = store
	return nil
}

// Configure replaces the logout tuning. It applies to sequences started
// afterwards.
func (c *Coordinator) Configure(cfg LogoutConfig) {
	c.mu.Lock()
	c.cfg = normalizeLogoutConfig(cfg)
	c.mu.Unlock()
}

// attach wires a whole client at once. w.mutator and w.store are required;
// the other fields replace the coordinator's only when set. Nothing changes
// when a set-once dependency is already wired.
func (c *Coordinator) attach(w wiring, cfg LogoutConfig) error {
	if w.mutator == nil || w.store == nil {
		return ErrNilDependency
	}

	c.wireMu.Lock()
	if c.w.mutator != nil || c.w.store != nil || (w.navigator != nil && c.w.navigator != nil) {
		c.wireMu.Unlock()
		return ErrAlreadyWired
	}
	c.w.mutator = w.mutator
	c.w.store = w.store
	if w.navigator != nil {
		c.w.navigator = w.navigator
	}
	if w.fallback != nil {
		c.w.fallback = w.fallback
	}
	if w.logger != nil {
		c.w.logger = w.logger
	}
	if w.metrics != nil {
		c.w.metrics = w.metrics
	}
	if w.audit != nil {
		c.w.audit = w.audit
	}
	c.wireMu.Unlock()

	c.Configure(cfg)
	return nil
}

func (c *Coordinator) wired() wiring {
	c.wireMu.RLock()
	defer c.wireMu.RUnlock()
	return c.w
}

/*
====================================
LOGOUT SEQUENCE
====================================
*/

// InProgress reports whether a logout sequence holds the guard.
func (c *Coordinator) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inProgress
}

// LastRequest returns the most recent executed request, if any.
func (c *Coordinator) LastRequest() (LogoutRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRequest, c.lastRequest.ID != uuid.Nil
}

// PerformLogout runs the whole logout sequence and returns once navigation
// was attempted. It returns false when the request was collapsed into a
// sequence that is running or finished within the cooldown.
func (c *Coordinator) PerformLogout(ctx context.Context, reason string) bool {
	req, cfg, ok := c.begin(reason)
	if !ok {
		return false
	}
	c.finish(ctx, req, cfg)
	return true
}

// Trigger is the non-blocking form used by the request interceptor. The guard
// and the state clear run before Trigger returns; the storage wipe and
// navigation continue on a goroutine.
func (c *Coordinator) Trigger(reason string) bool {
	req, cfg, ok := c.begin(reason)
	if !ok {
		return false
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeClearTimeout)
		defer cancel()
		c.finish(ctx, req, cfg)
	}()
	return true
}

// Wait blocks until every started logout sequence has finished and its audit
// events reached the sink.
func (c *Coordinator) Wait() {
	c.wg.Wait()
	c.wired().audit.Flush()
}

func (c *Coordinator) begin(reason string) (LogoutRequest, LogoutConfig, bool) {
	w := c.wired()
	w.metrics.Inc(MetricForcedLogoutTriggered)
	now := c.now()

	c.mu.Lock()
	cfg := c.cfg
	if c.inProgress {
		c.mu.Unlock()
		c.suppressed(w, reason, audit.CauseInProgress)
		return LogoutRequest{}, cfg, false
	}
	if !c.lastCompleted.IsZero() && now.Sub(c.lastCompleted) < cfg.Cooldown {
		c.mu.Unlock()
		c.suppressed(w, reason, audit.CauseCooldown)
		return LogoutRequest{}, cfg, false
	}
	c.inProgress = true
	req := LogoutRequest{ID: uuid.New(), Reason: reason, Timestamp: now}
	c.lastRequest = req
	c.wg.Add(1)
	c.mu.Unlock()

	if w.mutator == nil {
		w.logger.Warn("fitAuth: logout without state mutator", slog.String("reason", reason))
	} else {
		w.mutator()
	}

	return req, cfg, true
}

func (c *Coordinator) suppressed(w wiring, reason, cause string) {
	w.metrics.Inc(MetricForcedLogoutSuppressed)
	w.logger.Debug("fitAuth: logout suppressed",
		slog.String("reason", reason),
		slog.String("cause", cause))
	w.audit.Record(AuditEvent{
		Kind:   AuditForcedLogoutSuppressed,
		Reason: reason,
		Cause:  cause,
	})
}

func (c *Coordinator) finish(ctx context.Context, req LogoutRequest, cfg LogoutConfig) {
	defer c.wg.Done()
	defer c.complete(cfg)

	w := c.wired()

	var clearErr error
	if w.store == nil {
		w.logger.Warn("fitAuth: logout without credential store", slog.String("request_id", req.ID.String()))
	} else if clearErr = w.store.Clear(ctx); clearErr != nil {
		w.metrics.Inc(MetricStoreClearFailure)
		w.logger.Warn("fitAuth: clear credentials during logout failed",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", clearErr))
	}

	c.navigate(w, req, cfg.EntryRoute)

	w.metrics.Inc(MetricForcedLogoutExecuted)
	w.audit.Record(AuditEvent{
		Kind:     AuditForcedLogout,
		LogoutID: req.ID.String(),
		Reason:   req.Reason,
		Success:  clearErr == nil,
		Error:    errString(clearErr),
	})
}

func (c *Coordinator) navigate(w wiring, req LogoutRequest, route string) {
	if w.navigator != nil {
		err := w.navigator.Replace(route)
		if err == nil {
			return
		}
		w.logger.Warn("fitAuth: navigator failed, using fallback redirect",
			slog.String("request_id", req.ID.String()),
			slog.Any("error", err))
	}

	w.metrics.Inc(MetricNavigationFallback)
	if w.fallback == nil {
		w.logger.Warn("fitAuth: no navigation available after logout",
			slog.String("route", route),
			slog.Any("error", ErrNavigationUnavailable))
		return
	}
	if err := w.fallback(route); err != nil {
		w.logger.Warn("fitAuth: fallback redirect failed",
			slog.String("route", route),
			slog.Any("error", err))
	}
}

// complete records the finish time and schedules the in-progress reset.
func (c *Coordinator) complete(cfg LogoutConfig) {
	c.mu.Lock()
	c.lastCompleted = c.now()
	c.mu.Unlock()

	if cfg.ResetDelay <= 0 {
		c.release()
		return
	}
	time.AfterFunc(cfg.ResetDelay, c.release)
}

func (c *Coordinator) release() {
	c.mu.Lock()
	c.inProgress = false
	c.mu.Unlock()
}
