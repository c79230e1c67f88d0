package credstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/MrEthical07/fitAuth/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type backend struct {
	name string
	kv   KV
}

func newBackends(t *testing.T) []backend {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return []backend{
		{name: "memory", kv: NewMemoryKV()},
		{name: "redis", kv: NewRedisKV(rdb, 0)},
		{name: "file", kv: NewFileKV(filepath.Join(t.TempDir(), "creds.yaml"))},
	}
}

func testSession() *session.Session {
	return &session.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Role:         session.RoleStudent,
		Profile: session.Profile{
			ID:        "u-1",
			Name:      "Ana Souza",
			Email:     "ana@example.com",
			AvatarURL: "https://cdn.example.com/a.png",
			CoachID:   "c-7",
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			store := New(b.kv)
			want := testSession()

			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("expected %+v, got %+v", want, got)
			}

			tok, err := store.AccessToken(ctx)
			if err != nil || tok != want.AccessToken {
				t.Fatalf("expected token %q, got %q (%v)", want.AccessToken, tok, err)
			}
		})
	}
}

func TestSaveWithoutRefreshTokenRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := New(NewMemoryKV())
	want := testSession()
	want.RefreshToken = ""
	want.Role = session.RoleCoach

	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestLoadAfterClearReturnsNil(t *testing.T) {
	ctx := context.Background()
	for _, b := range newBackends(t) {
		t.Run(b.name, func(t *testing.T) {
			store := New(b.kv)
			if err := store.Save(ctx, testSession()); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("clear: %v", err)
			}
			got, err := store.Load(ctx)
			if err != nil || got != nil {
				t.Fatalf("expected no session, got %+v (%v)", got, err)
			}
			if _, err := store.AccessToken(ctx); !errors.Is(err, ErrNoToken) {
				t.Fatalf("expected ErrNoToken, got %v", err)
			}

			// Idempotent.
			if err := store.Clear(ctx); err != nil {
				t.Fatalf("second clear: %v", err)
			}
		})
	}
}

func TestLoadReturnsNilWhenAnyKeyMissing(t *testing.T) {
	ctx := context.Background()
	for _, b := range newBackends(t) {
		store := New(b.kv)
		for _, key := range store.Keys() {
			t.Run(b.name+"/"+key, func(t *testing.T) {
				if err := store.Save(ctx, testSession()); err != nil {
					t.Fatalf("save: %v", err)
				}
				if err := b.kv.MultiRemove(ctx, []string{key}); err != nil {
					t.Fatalf("remove %s: %v", key, err)
				}
				got, err := store.Load(ctx)
				if err != nil {
					t.Fatalf("load: %v", err)
				}
				if got != nil {
					t.Fatalf("expected nil after removing %s, got %+v", key, got)
				}
			})
		}
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	store := New(kv, WithPrefix("app"))

	cases := map[string]string{
		"app:role":    "admin",
		"app:profile": "{broken",
		"app:token":   "",
	}
	for key, value := range cases {
		if err := store.Save(ctx, testSession()); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := kv.MultiSet(ctx, []Pair{{Key: key, Value: value}}); err != nil {
			t.Fatalf("overwrite %s: %v", key, err)
		}
		got, err := store.Load(ctx)
		if err != nil {
			t.Fatalf("load with bad %s: %v", key, err)
		}
		if got != nil {
			t.Fatalf("expected nil with bad %s, got %+v", key, got)
		}
	}

	// Profile without an ID decodes but is incomplete.
	if err := store.Save(ctx, testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := kv.MultiSet(ctx, []Pair{{Key: "app:profile", Value: `{"name":"ghost"}`}}); err != nil {
		t.Fatalf("overwrite profile: %v", err)
	}
	if got, _ := store.Load(ctx); got != nil {
		t.Fatalf("expected nil for profile without id, got %+v", got)
	}
}

func TestKeysAreNamespaced(t *testing.T) {
	store := New(NewMemoryKV(), WithPrefix("coachapp"))
	want := []string{"coachapp:token", "coachapp:refresh_token", "coachapp:role", "coachapp:profile"}
	if got := store.Keys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	store = New(NewMemoryKV(), WithPrefix("   "))
	if got := store.Keys()[0]; got != DefaultPrefix+":token" {
		t.Fatalf("expected default prefix, got %q", got)
	}
}

type failingKV struct {
	*MemoryKV
	failSet    bool
	failGet    bool
	failRemove bool
}

var errBoom = errors.New("boom")

func (f *failingKV) MultiSet(ctx context.Context, pairs []Pair) error {
	if f.failSet {
		return errBoom
	}
	return f.MemoryKV.MultiSet(ctx, pairs)
}

func (f *failingKV) MultiGet(ctx context.Context, keys []string) (map[string]string, error) {
	if f.failGet {
		return nil, errBoom
	}
	return f.MemoryKV.MultiGet(ctx, keys)
}

func (f *failingKV) MultiRemove(ctx context.Context, keys []string) error {
	if f.failRemove {
		return errBoom
	}
	return f.MemoryKV.MultiRemove(ctx, keys)
}

func TestStorageFailures(t *testing.T) {
	ctx := context.Background()
	kv := &failingKV{MemoryKV: NewMemoryKV(), failSet: true}
	store := New(kv)

	err := store.Save(ctx, testSession())
	if !errors.Is(err, ErrPersistSession) || !errors.Is(err, errBoom) {
		t.Fatalf("expected ErrPersistSession wrapping cause, got %v", err)
	}
	if kv.Len() != 0 {
		t.Fatalf("expected nothing written, got %d keys", kv.Len())
	}

	kv.failSet = false
	kv.failGet = true
	got, err := store.Load(ctx)
	if got != nil || !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected storage error and nil session, got %+v (%v)", got, err)
	}
	if !IsStorageError(err) {
		t.Fatal("expected IsStorageError")
	}

	kv.failRemove = true
	if err := store.Clear(ctx); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable from clear, got %v", err)
	}
}

func TestSaveRejectsIncompleteSession(t *testing.T) {
	kv := NewMemoryKV()
	store := New(kv)
	sess := testSession()
	sess.Profile.ID = ""

	if err := store.Save(context.Background(), sess); !errors.Is(err, ErrPersistSession) {
		t.Fatalf("expected ErrPersistSession, got %v", err)
	}
	if kv.Len() != 0 {
		t.Fatalf("expected no keys written, got %d", kv.Len())
	}
}

func TestRedisKVAppliesTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	store := New(NewRedisKV(rdb, time.Hour))
	if err := store.Save(context.Background(), testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	for _, key := range store.Keys() {
		if ttl := mr.TTL(key); ttl != time.Hour {
			t.Fatalf("expected ttl 1h on %s, got %v", key, ttl)
		}
	}

	mr.FastForward(2 * time.Hour)
	got, err := store.Load(context.Background())
	if err != nil || got != nil {
		t.Fatalf("expected expired session to load as nil, got %+v (%v)", got, err)
	}
}

func TestRedisKVUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	store := New(NewRedisKV(rdb, 0))
	if err := store.Save(context.Background(), testSession()); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
	if _, err := store.Load(context.Background()); !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if _, remote, err := store.Ping(context.Background()); !remote || !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected failing remote ping, got remote=%v err=%v", remote, err)
	}
}

func TestPing(t *testing.T) {
	ctx := context.Background()

	if rtt, remote, err := New(NewMemoryKV()).Ping(ctx); rtt != 0 || remote || err != nil {
		t.Fatalf("memory ping = (%v, %v, %v), want (0, false, nil)", rtt, remote, err)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	_, remote, err := New(NewRedisKV(rdb, 0)).Ping(ctx)
	if !remote || err != nil {
		t.Fatalf("redis ping = (%v, %v), want (true, nil)", remote, err)
	}
}

func TestFileKVPermissionsAndCorruption(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "creds.yaml")
	kv := NewFileKV(path)
	store := New(kv)

	if err := store.Save(ctx, testSession()); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}

	if err := os.WriteFile(path, []byte("entries: [not, a, map"), 0o600); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}
	got, err := store.Load(ctx)
	if got != nil || !errors.Is(err, ErrFileCorrupt) {
		t.Fatalf("expected corrupt error and nil session, got %+v (%v)", got, err)
	}

	// Clearing a corrupt file leaves an empty, readable store.
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear corrupt: %v", err)
	}
	got, err = store.Load(ctx)
	if got != nil || err != nil {
		t.Fatalf("expected empty store after clear, got %+v (%v)", got, err)
	}
}
