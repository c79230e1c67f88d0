package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotJWT is returned by Inspect for opaque tokens.
var ErrNotJWT = errors.New("token is not a jwt")

// Info is what a client can read from a token it holds.
type Info struct {
	Subject   string
	SessionID string
	ExpiresAt time.Time
}

// HasExpiry reports whether the token carries an exp claim.
func (i Info) HasExpiry() bool {
	return !i.ExpiresAt.IsZero()
}

// ExpiredAt reports whether the token is expired at now, tolerating skew.
func (i Info) ExpiredAt(now time.Time, skew time.Duration) bool {
	if !i.HasExpiry() {
		return false
	}
	return !now.Before(i.ExpiresAt.Add(skew))
}

// Inspect decodes tokenStr without verifying its signature.
func Inspect(tokenStr string) (Info, error) {
	if strings.Count(tokenStr, ".") != 2 {
		return Info{}, ErrNotJWT
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return Info{}, errors.Join(ErrNotJWT, err)
	}

	info := Info{
		Subject:   claims.Subject,
		SessionID: claims.SID,
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
