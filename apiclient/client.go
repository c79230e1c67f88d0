package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/fitAuth/credstore"
)

// TokenSource supplies the bearer token attached to authenticated requests.
// credstore.Store implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// LogoutTrigger starts a forced logout without blocking the caller.
// fitAuth.Coordinator implements it.
type LogoutTrigger interface {
	Trigger(reason string) bool
}

// ReasonSessionExpired is the reason passed to the LogoutTrigger on a 401.
const ReasonSessionExpired = "session_expired"

const (
	headerRequestID   = "X-Request-ID"
	defaultUserAgent  = "fitAuth/1"
	defaultTimeout    = 15 * time.Second
	maxErrorBodyBytes = 1 << 20

	// DefaultMaxResponseBytes caps successful response bodies.
	DefaultMaxResponseBytes = 32 << 20
)

// Request describes one API call.
type Request struct {
	Method string
	// Path is joined to the client's base URL.
	Path  string
	Query url.Values
	// Body is JSON encoded when non-nil.
	Body any
	// Public requests (login, register) carry no stored bearer token and
	// never trigger a logout.
	Public bool
	// BearerToken, when set, is sent instead of the stored token.
	BearerToken string
}

// Client is the interceptor every API call goes through.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	tokens    TokenSource
	logout    LogoutTrigger
	userAgent string
	logger    *slog.Logger
	maxBody   int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxResponseBytes caps successful response bodies. Larger bodies fail
// with ErrResponseTooLarge instead of being decoded.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for baseURL. tokens and logout may be nil: requests
// then go out unauthenticated and 401s only return ErrSessionExpired.
func New(baseURL string, tokens TokenSource, logout LogoutTrigger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid base url %q", ErrNoBaseURL, baseURL)
	}

	c := &Client{
		baseURL:   u,
		http:      &http.Client{Timeout: defaultTimeout},
		tokens:    tokens,
		logout:    logout,
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
		maxBody:   DefaultMaxResponseBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Get is shorthand for an authenticated GET.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

// Post is shorthand for an authenticated POST.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Do performs req and decodes a successful response into out.
//
// A 401 on an authenticated request fires the logout trigger before Do
// returns, and the error matches ErrSessionExpired. Other failures are
// returned as *APIError. out may be nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	httpReq, authed, err := c.build(ctx, req)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &APIError{Message: transportMessage(err), cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && !req.Public {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return c.sessionExpired(req, httpReq.Header.Get(headerRequestID), authed)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if err != nil {
			return &APIError{Status: 0, Message: "read response: " + err.Error(), cause: err}
		}
		return decodeError(resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return &APIError{Status: 0, Message: "read response: " + err.Error(), cause: err}
	}
	if int64(len(body)) > c.maxBody {
		return &APIError{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("response exceeds %d bytes", c.maxBody),
			cause:   ErrResponseTooLarge,
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapEnvelope(body), out); err != nil {
		return &APIError{
			Status:  resp.StatusCode,
			Message: "decode response: " + err.Error(),
			cause:   err,
		}
	}
	return nil
}

func (c *Client) build(ctx context.Context, req Request) (*http.Request, bool, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, false, &APIError{Message: "encode request: " + err.Error(), cause: err}
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, false, &APIError{Message: "build request: " + err.Error(), cause: err}
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set(headerRequestID, uuid.NewString())

	authed := false
	if req.BearerToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.BearerToken)
		authed = !req.Public
	} else if !req.Public && c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		switch {
		case err == nil && token != "":
			httpReq.Header.Set("Authorization", "Bearer "+token)
			authed = true
		case err != nil && !isNoToken(err):
			c.logger.Warn("fitAuth: read access token failed, sending unauthenticated",
				slog.String("path", req.Path),
				slog.Any("error", err))
		}
	}

	return httpReq, authed, nil
}

func (c *Client) sessionExpired(req Request, requestID string, authed bool) error {
	if !authed {
		return fmt.Errorf("%w: %s %s sent without credentials", ErrSessionExpired, req.Method, req.Path)
	}
	if c.logout != nil {
		started := c.logout.Trigger(ReasonSessionExpired)
		c.logger.Info("fitAuth: session rejected by server",
			slog.String("path", req.Path),
			slog.String("request_id", requestID),
			slog.Bool("logout_started", started))
	}
	return ErrSessionExpired
}

func isNoToken(err error) bool {
	return errors.Is(err, credstore.ErrNoToken)
}

func transportMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "request timed out"
		}
		return "network error: " + urlErr.Err.Error()
	}
	return "network error: " + err.Error()
}
