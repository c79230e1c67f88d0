package apiclient

import (
	"context"
	"net/http"

	"github.com/MrEthical07/fitAuth/session"
)

// Auth endpoint paths.
const (
	PathLogin    = "/auth/login"
	PathRegister = "/auth/register"
	PathLogout   = "/auth/logout"
	PathMe       = "/me"
	PathWorkouts = "/workouts"
)

// AuthAPI implements the auth backend over a Client.
type AuthAPI struct {
	client *Client
}

// NewAuthAPI wraps client.
func NewAuthAPI(client *Client) *AuthAPI {
	return &AuthAPI{client: client}
}

// Login posts credentials to /auth/login.
func (a *AuthAPI) Login(ctx context.Context, creds session.Credentials) (*session.AuthResult, error) {
	var res session.AuthResult
	err := a.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   PathLogin,
		Body:   creds,
		Public: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Register posts the sign-up form to /auth/register.
func (a *AuthAPI) Register(ctx context.Context, reg session.Registration) (*session.AuthResult, error) {
	var res session.AuthResult
	err := a.client.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   PathRegister,
		Body:   reg,
		Public: true,
	}, &res)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Logout tells the server to revoke accessToken.
//
// The token is passed explicitly because the store may already be cleared
// when this runs. The request is marked public so a 401 here never fires a
// second logout.
func (a *AuthAPI) Logout(ctx context.Context, accessToken string) error {
	return a.client.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        PathLogout,
		Public:      true,
		BearerToken: accessToken,
	}, nil)
}

// Me returns the profile of the signed-in user.
func (a *AuthAPI) Me(ctx context.Context) (*session.Profile, error) {
	var p session.Profile
	if err := a.client.Get(ctx, PathMe, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
