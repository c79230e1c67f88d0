package fitAuth

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/fitAuth/apiclient"
	"github.com/MrEthical07/fitAuth/credstore"
	"github.com/MrEthical07/fitAuth/internal/audit"
	"github.com/MrEthical07/fitAuth/session"
)

// Client is the assembled session lifecycle: one credential store, one state
// machine, one request interceptor and the logout coordinator they share.
// Build it with New().Build().
type Client struct {
	config      Config
	logger      *slog.Logger
	store       *credstore.Store
	machine     *Machine
	coordinator *Coordinator
	api         *apiclient.Client
	auth        *apiclient.AuthAPI
	metrics     *Metrics
	audit       *audit.Dispatcher
	ownedRedis  *redis.Client
}

// Machine returns the auth state machine.
func (c *Client) Machine() *Machine {
	return c.machine
}

// Coordinator returns the logout coordinator wired to this client.
func (c *Client) Coordinator() *Coordinator {
	return c.coordinator
}

// Store returns the credential store.
func (c *Client) Store() *credstore.Store {
	return c.store
}

// API returns the request interceptor, or nil when no API base URL is
// configured.
func (c *Client) API() *apiclient.Client {
	return c.api
}

// Auth returns the HTTP auth backend, or nil when no API base URL is
// configured.
func (c *Client) Auth() *apiclient.AuthAPI {
	return c.auth
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// State returns the current auth state.
func (c *Client) State() State {
	return c.machine.State()
}

// Restore loads the persisted session once.
func (c *Client) Restore(ctx context.Context) State {
	return c.machine.Restore(ctx)
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	return c.machine.Login(ctx, creds)
}

// Register creates an account and signs in.
func (c *Client) Register(ctx context.Context, reg session.Registration) (*session.Session, error) {
	return c.machine.Register(ctx, reg)
}

// Logout ends the session on user request.
func (c *Client) Logout(ctx context.Context) error {
	return c.machine.Logout(ctx)
}

// MetricsSnapshot returns the lifecycle counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// Metrics returns the live counters, for exporters.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// Close waits for running logout sequences, flushes audit events and closes
// a Redis client the builder created itself.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.coordinator != nil {
		c.coordinator.Wait()
	}
	if c.audit != nil {
		c.audit.Close()
	}
	if c.ownedRedis != nil {
		if err := c.ownedRedis.Close(); err != nil {
			c.logger.Warn("fitAuth: close redis failed", slog.Any("error", err))
		}
	}
}
