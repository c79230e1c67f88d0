package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/fitAuth/credstore"
	"github.com/MrEthical07/fitAuth/session"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) AccessToken(context.Context) (string, error) {
	return s.token, s.err
}

type countingTrigger struct {
	calls   atomic.Int32
	reasons chan string
}

func newCountingTrigger() *countingTrigger {
	return &countingTrigger{reasons: make(chan string, 16)}
}

func (c *countingTrigger) Trigger(reason string) bool {
	c.calls.Add(1)
	c.reasons <- reason
	return true
}

func newTestClient(t *testing.T, h http.HandlerFunc, tokens TokenSource, trigger LogoutTrigger) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, tokens, trigger)
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("", nil, nil)
	require.ErrorIs(t, err, ErrNoBaseURL)

	_, err = New("not a url", nil, nil)
	require.ErrorIs(t, err, ErrNoBaseURL)
}

func TestDoAttachesBearerAndRequestID(t *testing.T) {
	var gotAuth, gotID string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotID = r.Header.Get(headerRequestID)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}, staticTokens{token: "tok-1"}, nil)

	var out map[string]bool
	require.NoError(t, c.Get(context.Background(), "/me", &out))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.NotEmpty(t, gotID)
	assert.True(t, out["ok"])
}

func TestPublicRequestSkipsStoredToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}, staticTokens{token: "tok-1"}, nil)

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Public: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestUnauthorizedWithTokenTriggersLogoutBeforeReturning(t *testing.T) {
	trigger := newCountingTrigger()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"token revoked"}`))
	}, staticTokens{token: "stale"}, trigger)

	err := c.Get(context.Background(), "/workouts", nil)
	require.Error(t, err)
	assert.True(t, IsSessionExpired(err))
	assert.Equal(t, int32(1), trigger.calls.Load())
	assert.Equal(t, ReasonSessionExpired, <-trigger.reasons)

	_, isAPI := AsAPIError(err)
	assert.False(t, isAPI, "session expiry is its own category")
}

func TestUnauthorizedWithoutTokenDoesNotTrigger(t *testing.T) {
	trigger := newCountingTrigger()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, staticTokens{err: credstore.ErrNoToken}, trigger)

	err := c.Get(context.Background(), "/workouts", nil)
	assert.True(t, IsSessionExpired(err))
	assert.Zero(t, trigger.calls.Load())
}

func TestUnauthorizedOnPublicRequestIsValidationError(t *testing.T) {
	trigger := newCountingTrigger()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"invalid email or password"}`))
	}, staticTokens{token: "tok"}, trigger)

	err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/auth/login", Public: true}, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid email or password", apiErr.Message)
	assert.False(t, IsSessionExpired(err))
	assert.Zero(t, trigger.calls.Load())
}

func TestFieldErrorsAreNormalized(t *testing.T) {
	trigger := newCountingTrigger()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"validation failed","errors":{"email":["already registered"],"password":["too short"]}}`))
	}, staticTokens{token: "tok"}, trigger)

	err := c.Post(context.Background(), "/auth/register", map[string]string{"email": "x"}, nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsValidation())
	assert.Equal(t, "already registered", apiErr.FieldMessage("email"))
	assert.Equal(t, "validation failed (email: already registered; password: too short)", apiErr.Summary())
	assert.Zero(t, trigger.calls.Load())
}

func TestErrorWithoutBodyUsesStatusText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil, nil)

	err := c.Get(context.Background(), "/me", nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "Internal Server Error", apiErr.Message)
}

func TestTransportFailureHasStatusZero(t *testing.T) {
	trigger := newCountingTrigger()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, staticTokens{token: "tok"}, trigger)
	require.NoError(t, err)

	err = c.Get(context.Background(), "/me", nil)
	apiErr, ok := AsAPIError(err)
	require.True(t, ok)
	assert.True(t, apiErr.IsTransport())
	assert.NotNil(t, errors.Unwrap(apiErr))
	assert.Zero(t, trigger.calls.Load())
}

func TestEnvelopeUnwrapping(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "envelope", body: `{"success":true,"data":{"name":"Ana"},"meta":{}}`, want: "Ana"},
		{name: "plain", body: `{"name":"Bo"}`, want: "Bo"},
		{name: "data plus foreign key is not an envelope", body: `{"data":{"name":"X"},"name":"Cy"}`, want: "Cy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}, nil, nil)

			var out struct {
				Name string `json:"name"`
			}
			require.NoError(t, c.Get(context.Background(), "/x", &out))
			assert.Equal(t, tc.want, out.Name)
		})
	}
}

func TestNoContentLeavesOutUntouched(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, nil, nil)

	out := map[string]string{"keep": "me"}
	require.NoError(t, c.Get(context.Background(), "/x", &out))
	assert.Equal(t, "me", out["keep"])
}

func TestLargeSuccessBodyDecodes(t *testing.T) {
	notes := strings.Repeat("squat ", 300_000)
	handler := func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": map[string]string{"notes": notes}})
	}

	c := newTestClient(t, handler, nil, nil)
	var out struct {
		Notes string `json:"notes"`
	}
	require.NoError(t, c.Get(context.Background(), "/workouts", &out))
	assert.Len(t, out.Notes, len(notes))

	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	small, err := New(srv.URL, nil, nil, WithMaxResponseBytes(1024))
	require.NoError(t, err)

	err = small.Get(context.Background(), "/workouts", &out)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.Status)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestAuthAPILoginAndLogout(t *testing.T) {
	var logoutAuth string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds session.Credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": session.AuthResult{
				Token:       "access-1",
				AccountType: session.AccountTypePersonalTrainer,
				Profile:     session.Profile{ID: "c1", Name: "Coach", Email: creds.Email},
			},
		})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		logoutAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	})

	trigger := newCountingTrigger()
	c := newTestClient(t, mux.ServeHTTP, staticTokens{token: "stored"}, trigger)
	api := NewAuthAPI(c)

	res, err := api.Login(context.Background(), session.Credentials{Email: "coach@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "access-1", res.Token)
	assert.Equal(t, session.AccountTypePersonalTrainer, res.AccountType)
	assert.Equal(t, "coach@example.com", res.Profile.Email)

	err = api.Logout(context.Background(), "access-1")
	require.Error(t, err)
	assert.Equal(t, "Bearer access-1", logoutAuth)
	assert.Zero(t, trigger.calls.Load(), "logout notification must never start another logout")
}
