package fitAuth

import (
	"context"

	"github.com/MrEthical07/fitAuth/session"
)

// Backend is the auth collaborator the state machine calls for login,
// registration and logout notification. apiclient.AuthAPI implements it over
// HTTP.
type Backend interface {
	Login(ctx context.Context, creds session.Credentials) (*session.AuthResult, error)
	Register(ctx context.Context, reg session.Registration) (*session.AuthResult, error)
	Logout(ctx context.Context, accessToken string) error
}

// SessionStore is the persistence the state machine writes through.
// credstore.Store implements it.
type SessionStore interface {
	Save(ctx context.Context, sess *session.Session) error
	Load(ctx context.Context) (*session.Session, error)
	Clear(ctx context.Context) error
}

// StoreClearer is the slice of SessionStore the logout coordinator needs.
type StoreClearer interface {
	Clear(ctx context.Context) error
}

// StoreClearerFunc adapts a plain func to StoreClearer.
type StoreClearerFunc func(ctx context.Context) error

// Clear calls f(ctx).
func (f StoreClearerFunc) Clear(ctx context.Context) error {
	return f(ctx)
}
