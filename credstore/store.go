package credstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrEthical07/fitAuth/session"
)

// DefaultPrefix namespaces credential keys when no prefix is configured.
const DefaultPrefix = "fitauth"

const (
	keyToken        = "token"
	keyRefreshToken = "refresh_token"
	keyRole         = "role"
	keyProfile      = "profile"
)

// Store persists a session.Session on top of a KV.
type Store struct {
	kv     KV
	prefix string
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store over kv.
func New(kv KV, opts ...Option) *Store {
	s := &Store{
		kv:     kv,
		prefix: DefaultPrefix,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(name string) string {
	return s.prefix + ":" + name
}

// Keys returns the four namespaced keys in a stable order.
func (s *Store) Keys() []string {
	return []string{
		s.key(keyToken),
		s.key(keyRefreshToken),
		s.key(keyRole),
		s.key(keyProfile),
	}
}

// Save writes the session as one batch.
//
// Save fails with ErrPersistSession when the session is incomplete or the KV
// rejects the batch.
func (s *Store) Save(ctx context.Context, sess *session.Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistSession, err)
	}
	profile, err := session.EncodeProfile(sess.Profile)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistSession, err)
	}

	pairs := []Pair{
		{Key: s.key(keyToken), Value: sess.AccessToken},
		{Key: s.key(keyRefreshToken), Value: sess.RefreshToken},
		{Key: s.key(keyRole), Value: sess.Role.String()},
		{Key: s.key(keyProfile), Value: profile},
	}
	if err := s.kv.MultiSet(ctx, pairs); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistSession, err)
	}
	return nil
}

// Load reads back a complete session.
//
// Load returns (nil, nil) when any key is missing or malformed and
// (nil, ErrStorageUnavailable) when the KV fails. It never returns a partial
// session.
func (s *Store) Load(ctx context.Context) (*session.Session, error) {
	keys := s.Keys()
	values, err := s.kv.MultiGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	token, okToken := values[keys[0]]
	refresh, okRefresh := values[keys[1]]
	rawRole, okRole := values[keys[2]]
	rawProfile, okProfile := values[keys[3]]
	if !okToken && !okRefresh && !okRole && !okProfile {
		return nil, nil
	}
	if !okToken || !okRefresh || !okRole || !okProfile {
		s.logger.Warn("fitAuth: stored session incomplete, ignoring", slog.String("prefix", s.prefix))
		return nil, nil
	}

	role, err := session.ParseRole(rawRole)
	if err != nil {
		s.logger.Warn("fitAuth: stored session has unknown role, ignoring", slog.String("role", rawRole))
		return nil, nil
	}
	profile, err := session.DecodeProfile(rawProfile)
	if err != nil {
		s.logger.Warn("fitAuth: stored profile corrupt, ignoring", slog.Any("error", err))
		return nil, nil
	}

	sess, err := session.New(token, refresh, role, profile)
	if err != nil {
		s.logger.Warn("fitAuth: stored session invalid, ignoring", slog.Any("error", err))
		return nil, nil
	}
	return sess, nil
}

// Clear removes every credential key. Clearing an empty store succeeds.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.MultiRemove(ctx, s.Keys()); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}

// AccessToken returns the stored bearer token.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	token, ok, err := s.kv.Get(ctx, s.key(keyToken))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	if !ok || token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Pinger is implemented by KVs backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Ping checks the backing service and returns its round trip. Local KVs
// report (0, false, nil).
func (s *Store) Ping(ctx context.Context) (time.Duration, bool, error) {
	p, ok := s.kv.(Pinger)
	if !ok {
		return 0, false, nil
	}
	rtt, err := p.Ping(ctx)
	if err != nil {
		return rtt, true, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return rtt, true, nil
}

// IsStorageError reports whether err came from the underlying KV.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
