package fitAuth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/fitAuth/internal/audit"
	"github.com/MrEthical07/fitAuth/jwt"
	"github.com/MrEthical07/fitAuth/session"
)

// Machine owns the single authoritative auth State.
//
// Every transition happens under one mutex. ForceClear and Logout bump a
// generation counter; login, registration and restore capture the generation
// when they start and drop their result if it moved, so a logout always wins
// over a response that was already on the wire.
type Machine struct {
	mu         sync.Mutex
	state      State
	generation uint64

	// persistMu orders session writes against superseded-login rollbacks.
	persistMu sync.Mutex

	listeners    []listener
	nextListener uint64
	pending      []State
	delivering   bool

	store   SessionStore
	backend Backend
	restore RestoreConfig
	logger  *slog.Logger
	metrics *Metrics
	audit   *audit.Dispatcher
	now     func() time.Time
}

type listener struct {
	id uint64
	fn func(State)
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithMachineLogger sets the logger for best-effort failures.
func WithMachineLogger(l *slog.Logger) MachineOption {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithRestoreConfig overrides the restore expiry policy.
func WithRestoreConfig(cfg RestoreConfig) MachineOption {
	return func(m *Machine) {
		m.restore = cfg
	}
}

// WithMachineMetrics records lifecycle counters into metrics.
func WithMachineMetrics(metrics *Metrics) MachineOption {
	return func(m *Machine) {
		m.metrics = metrics
	}
}

// WithClock replaces time.Now, used for restore expiry checks and latency.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func withMachineAudit(d *audit.Dispatcher) MachineOption {
	return func(m *Machine) {
		m.audit = d
	}
}

// NewMachine creates a Machine in the Unknown state. backend may be nil for a
// restore-only client; Login and Register then fail with
// ErrBackendNotConfigured.
func NewMachine(store SessionStore, backend Backend, opts ...MachineOption) *Machine {
	m := &Machine{
		store:   store,
		backend: backend,
		restore: defaultConfig().Restore,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

/*
====================================
OBSERVATION
====================================
*/

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe registers fn for every subsequent transition and returns a cancel
// func. Listeners run outside the state lock in publication order; a listener
// may call back into the Machine, in which case the resulting transition is
// delivered after the current one.
func (m *Machine) Subscribe(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	m.nextListener++
	id := m.nextListener
	m.listeners = append(m.listeners, listener{id: id, fn: fn})
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// publishLocked requires m.mu.
func (m *Machine) publishLocked(next State) {
	m.state = next
	m.pending = append(m.pending, next)
}

// flush delivers queued transitions. Only one goroutine delivers at a time;
// others leave their transitions to it.
func (m *Machine) flush() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.pending) > 0 {
		batch := m.pending
		m.pending = nil
		listeners := append([]listener(nil), m.listeners...)
		m.mu.Unlock()

		for _, st := range batch {
			for _, l := range listeners {
				l.fn(st)
			}
		}

		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}

// begin bumps the generation so older in-flight attempts are superseded, then
// publishes Loading.
func (m *Machine) begin() uint64 {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.publishLocked(loadingState())
	m.mu.Unlock()
	m.flush()
	return gen
}

func (m *Machine) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen
}

// tryPublish queues next only if gen is still current. The caller flushes.
func (m *Machine) tryPublish(gen uint64, next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return false
	}
	m.publishLocked(next)
	return true
}

func (m *Machine) commit(gen uint64, next State) bool {
	ok := m.tryPublish(gen, next)
	m.flush()
	return ok
}

/*
====================================
RESTORE
====================================
*/

// Restore loads a persisted session once at startup.
//
// Only the first call acts: it moves Unknown to Loading and reads storage.
// Concurrent and later calls return the current state without touching
// storage. Storage failures and malformed data restore as Unauthenticated.
func (m *Machine) Restore(ctx context.Context) State {
	m.mu.Lock()
	if m.state.status != StatusUnknown {
		st := m.state
		m.mu.Unlock()
		return st
	}
	gen := m.generation
	m.publishLocked(loadingState())
	m.mu.Unlock()
	m.flush()

	sess, err := m.store.Load(ctx)
	if err != nil {
		m.logger.Warn("fitAuth: restore failed, continuing unauthenticated", slog.Any("error", err))
		sess = nil
	}

	expired := false
	if sess != nil && m.restore.RejectExpiredTokens {
		if info, ierr := jwt.Inspect(sess.AccessToken); ierr == nil && info.ExpiredAt(m.now(), m.restore.ClockSkew) {
			expired = true
			sess = nil
			m.metrics.Inc(MetricRestoreExpired)
			m.logger.Info("fitAuth: stored access token expired, discarding session",
				slog.Time("expires_at", info.ExpiresAt))
			m.clearIfCurrent(ctx, gen)
		}
	}

	next := unauthenticatedState()
	if sess != nil {
		next = authenticatedState(sess)
	}

	if !m.commit(gen, next) {
		m.metrics.Inc(MetricSessionSuperseded)
		return m.State()
	}

	ev := sessionEvent(AuditRestore, sess)
	if sess != nil {
		m.metrics.Inc(MetricRestoreHit)
	} else {
		m.metrics.Inc(MetricRestoreMiss)
		if expired {
			ev.Reason = "expired"
		}
	}
	m.audit.Record(ev)

	return next
}

// clearIfCurrent wipes storage unless a newer login already owns it.
func (m *Machine) clearIfCurrent(ctx context.Context, gen uint64) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()
	if !m.current(gen) {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.metrics.Inc(MetricStoreClearFailure)
		m.logger.Warn("fitAuth: clear expired session failed", slog.Any("error", err))
	}
}

/*
====================================
LOGIN / REGISTER
====================================
*/

// Login authenticates with the backend and persists the resulting session.
//
// On success the state is Authenticated and a copy of the session is
// returned. Any failure leaves the state Unauthenticated (unless a newer
// operation owns it) and returns the error. If a logout ran while the call
// was in flight, the result is discarded and ErrSessionSuperseded returned.
func (m *Machine) Login(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	start := m.now()
	sess, err := m.authenticate(ctx, func(ctx context.Context) (*session.AuthResult, error) {
		return m.backend.Login(ctx, creds)
	})
	m.metrics.Observe(MetricLoginLatency, m.now().Sub(start))

	if err != nil {
		m.metrics.Inc(MetricLoginFailure)
		m.audit.Record(AuditEvent{Kind: AuditLogin, Error: errString(err)})
		return nil, err
	}

	m.metrics.Inc(MetricLoginSuccess)
	m.audit.Record(sessionEvent(AuditLogin, sess))
	return sess, nil
}

// Register creates an account and signs in with the returned session.
// Failure semantics match Login.
func (m *Machine) Register(ctx context.Context, reg session.Registration) (*session.Session, error) {
	sess, err := m.authenticate(ctx, func(ctx context.Context) (*session.AuthResult, error) {
		return m.backend.Register(ctx, reg)
	})
	if err != nil {
		m.metrics.Inc(MetricRegisterFailure)
		m.audit.Record(AuditEvent{Kind: AuditRegister, Error: errString(err)})
		return nil, err
	}

	m.metrics.Inc(MetricRegisterSuccess)
	m.audit.Record(sessionEvent(AuditRegister, sess))
	return sess, nil
}

func (m *Machine) authenticate(ctx context.Context, call func(context.Context) (*session.AuthResult, error)) (*session.Session, error) {
	if m.backend == nil {
		return nil, ErrBackendNotConfigured
	}

	gen := m.begin()

	res, err := call(ctx)
	if err != nil {
		m.fail(gen)
		return nil, err
	}

	sess, err := session.FromAuthResult(res)
	if err != nil {
		m.fail(gen)
		return nil, err
	}

	return m.establish(ctx, gen, sess)
}

func (m *Machine) establish(ctx context.Context, gen uint64, sess *session.Session) (*session.Session, error) {
	err := m.persist(ctx, gen, sess)
	// listeners run after persistMu is released so they may call Logout
	m.flush()
	if err != nil {
		return nil, err
	}
	return sess.Clone(), nil
}

func (m *Machine) persist(ctx context.Context, gen uint64, sess *session.Session) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if !m.current(gen) {
		return m.superseded()
	}

	if err := m.store.Save(ctx, sess); err != nil {
		m.metrics.Inc(MetricSessionPersistFailure)
		m.tryPublish(gen, unauthenticatedState())
		return err
	}

	if !m.tryPublish(gen, authenticatedState(sess)) {
		// A logout ran between the write and the publish. Its wipe may have
		// landed before our write, so wipe again.
		if err := m.store.Clear(ctx); err != nil {
			m.metrics.Inc(MetricStoreClearFailure)
			m.logger.Warn("fitAuth: clear superseded session failed", slog.Any("error", err))
		}
		return m.superseded()
	}
	return nil
}

func (m *Machine) superseded() error {
	m.metrics.Inc(MetricSessionSuperseded)
	m.audit.Record(AuditEvent{Kind: AuditSessionSuperseded})
	return ErrSessionSuperseded
}

func (m *Machine) fail(gen uint64) {
	m.commit(gen, unauthenticatedState())
}

/*
====================================
LOGOUT
====================================
*/

// Logout ends the current session.
//
// The backend is notified best-effort with the current access token, the
// store is cleared and the state becomes Unauthenticated. Notification
// failures are only logged. A store failure is logged and returned after the
// transition; it never blocks it. Logout is safe with no session held.
func (m *Machine) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.generation++
	gen := m.generation
	var token, userID string
	if m.state.session != nil {
		token = m.state.session.AccessToken
		userID = m.state.session.Profile.ID
	}
	m.mu.Unlock()

	if token != "" && m.backend != nil {
		if err := m.backend.Logout(ctx, token); err != nil {
			m.logger.Warn("fitAuth: backend logout notification failed", slog.Any("error", err))
		}
	}

	m.persistMu.Lock()
	clearErr := m.store.Clear(ctx)
	m.persistMu.Unlock()
	if clearErr != nil {
		m.metrics.Inc(MetricStoreClearFailure)
		m.logger.Warn("fitAuth: clear credentials during logout failed", slog.Any("error", clearErr))
	}

	// A login started after this logout owns the state now.
	m.commit(gen, unauthenticatedState())

	m.metrics.Inc(MetricLogout)
	m.audit.Record(AuditEvent{
		Kind:    AuditLogout,
		UserID:  userID,
		Success: clearErr == nil,
		Error:   errString(clearErr),
	})

	return clearErr
}

// ForceClear moves to Unauthenticated immediately, without I/O, and
// supersedes every in-flight login, registration and restore. It is the
// state mutator the logout coordinator calls before wiping storage.
func (m *Machine) ForceClear() {
	m.mu.Lock()
	m.generation++
	m.publishLocked(unauthenticatedState())
	m.mu.Unlock()
	m.flush()
}

// IsSuperseded reports whether err means a result was dropped by a logout.
func IsSuperseded(err error) bool {
	return errors.Is(err, ErrSessionSuperseded)
}
