// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/assetguard/internal/cache"
)

var baseTime = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

var (
	keysOnce   sync.Once
	serverKeys *ServerKeys
	clientKey  *rsa.PrivateKey
)

// testKeys generates the RSA key pairs once per test binary.
func testKeys(t *testing.T) (*ServerKeys, *rsa.PrivateKey) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if serverKeys, err = GenerateServerKeys(); err != nil {
			panic(err)
		}
		if clientKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
			panic(err)
		}
	})
	return serverKeys, clientKey
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestChannel(t *testing.T) (*Channel, *cache.MemoryStore, *fakeClock) {
	t.Helper()
	keys, _ := testKeys(t)
	clock := &fakeClock{now: baseTime}
	store := cache.NewMemoryStore(1000, cache.WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })
	ch := New(DefaultConfig(), keys,
		cache.NewNamespace(store, "session:"),
		cache.NewNamespace(store, "dedup:"),
		WithClock(clock.Now))
	return ch, store, clock
}

func TestChannel_SessionLifecycle(t *testing.T) {
	ch, _, clock := newTestChannel(t)
	ctx := context.Background()

	s, err := ch.EstablishSession(ctx, "client-1")
	if err != nil {
		t.Fatalf("EstablishSession: %v", err)
	}
	if len(s.Key) != KeySize || s.ID == "" || !s.ExpiresAt.After(s.IssuedAt) {
		t.Fatalf("session = %+v", s)
	}

	key, err := ch.ActiveKey(ctx, s.ID)
	if err != nil || !bytes.Equal(key, s.Key) {
		t.Fatalf("ActiveKey = %x, %v", key, err)
	}

	clock.Advance(59 * time.Minute)
	rotated, err := ch.RotateSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("RotateSession: %v", err)
	}
	if rotated.ID != s.ID || rotated.ClientID != "client-1" || bytes.Equal(rotated.Key, s.Key) {
		t.Errorf("rotated = %+v", rotated)
	}
	key, _ = ch.ActiveKey(ctx, s.ID)
	if !bytes.Equal(key, rotated.Key) {
		t.Error("rotation did not replace the active key")
	}

	// The rotated session lives a full TTL from rotation.
	clock.Advance(59 * time.Minute)
	if _, err := ch.ActiveKey(ctx, s.ID); err != nil {
		t.Errorf("rotated session expired early: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := ch.ActiveKey(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired session err = %v, want ErrSessionNotFound", err)
	}
	if _, err := ch.RotateSession(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("rotating expired session err = %v", err)
	}
}

func TestChannel_ExpiredSessionFailsClosedAndIsDeleted(t *testing.T) {
	keys, _ := testKeys(t)
	clock := &fakeClock{now: baseTime}
	// A backing store with its own, slower clock still holds the entry.
	store := cache.NewMemoryStore(10)
	defer store.Close()
	ch := New(DefaultConfig(), keys, cache.NewNamespace(store, "session:"), cache.NewNamespace(store, "dedup:"), WithClock(clock.Now))
	ctx := context.Background()

	s, err := ch.EstablishSession(ctx, "client-1")
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)

	if _, err := ch.ActiveKey(ctx, s.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
	if _, found, _ := store.Get(ctx, "session:"+s.ID); found {
		t.Error("expired session was not deleted")
	}
}

func TestChannel_EstablishRequiresClientID(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	if _, err := ch.EstablishSession(context.Background(), ""); !errors.Is(err, ErrEmptyClientID) {
		t.Errorf("err = %v", err)
	}
	if _, err := ch.ActiveKey(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session err = %v", err)
	}
}

func TestChannel_IsDuplicate(t *testing.T) {
	ch, _, clock := newTestChannel(t)
	ctx := context.Background()

	if dup, err := ch.IsDuplicate(ctx, "m-1", "client-1"); err != nil || dup {
		t.Fatalf("first = %v, %v", dup, err)
	}
	if dup, _ := ch.IsDuplicate(ctx, "m-1", "client-1"); !dup {
		t.Error("second delivery not flagged")
	}
	if dup, _ := ch.IsDuplicate(ctx, "m-1", "client-2"); dup {
		t.Error("message IDs are shared across clients")
	}
	clock.Advance(time.Hour)
	if dup, _ := ch.IsDuplicate(ctx, "m-1", "client-1"); dup {
		t.Error("message ID remembered past the dedup window")
	}
}

func TestChannel_BootstrapWrapsKey(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	_, client := testKeys(t)
	ctx := context.Background()

	clientPEM, err := EncodePublicKeyPEM(&client.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := ch.Bootstrap(ctx, BootstrapRequest{ClientID: "client-1", ClientPublicKey: clientPEM})
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if resp.ExpiresIn != 3600 || resp.Algorithm != SymmetricAlgorithm || resp.WrappedKey == "" {
		t.Fatalf("response = %+v", resp)
	}

	key, err := UnwrapKey(resp.WrappedKey, client)
	if err != nil {
		t.Fatalf("UnwrapKey: %v", err)
	}
	active, _ := ch.ActiveKey(ctx, resp.SessionID)
	if !bytes.Equal(key, active) {
		t.Error("unwrapped key differs from session key")
	}

	plain, err := ch.Bootstrap(ctx, BootstrapRequest{ClientID: "client-2"})
	if err != nil || plain.WrappedKey != "" {
		t.Errorf("bootstrap without public key = %+v, %v", plain, err)
	}
	if _, err := ch.Bootstrap(ctx, BootstrapRequest{ClientID: "client-3", ClientPublicKey: "not a key"}); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("bad public key err = %v", err)
	}
}

func TestChannel_WrapAndOpen(t *testing.T) {
	ch, _, clock := newTestChannel(t)
	ctx := context.Background()
	s, _ := ch.EstablishSession(ctx, "client-1")

	env, err := ch.Wrap(ctx, s.ID, []byte(`{"total": 2, "items": ["a", "b"]}`))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if env.SessionID != s.ID || env.Timestamp != baseTime.Unix() {
		t.Errorf("envelope = %+v", env)
	}

	raw, _ := json.Marshal(env)
	for _, field := range []string{"encrypted_data", "signature", "integrity_hash", "timestamp", "session_id"} {
		if !bytes.Contains(raw, []byte(`"`+field+`"`)) {
			t.Errorf("envelope JSON missing %s: %s", field, raw)
		}
	}

	clock.Advance(2 * time.Minute)
	msg, err := OpenEnvelope(env, s.Key, ch.Keys().PublicKey(), 5*time.Minute, clock.Now())
	if err != nil {
		t.Fatalf("OpenEnvelope: %v", err)
	}
	if string(msg) != `{"items":["a","b"],"total":2}` {
		t.Errorf("message = %s", msg)
	}

	if _, err := OpenEnvelope(env, s.Key, ch.Keys().PublicKey(), time.Minute, clock.Now().Add(time.Hour)); !errors.Is(err, ErrIntegrityFailed) {
		t.Errorf("stale envelope err = %v", err)
	}
	other := make([]byte, KeySize)
	if _, err := OpenEnvelope(env, other, ch.Keys().PublicKey(), 5*time.Minute, clock.Now()); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("wrong key err = %v", err)
	}

	if _, err := ch.Wrap(ctx, "missing", []byte(`{}`)); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("unknown session err = %v", err)
	}
}
