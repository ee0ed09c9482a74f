// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEncryptDecrypt(t *testing.T) {
	key, err := randomKey()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte(`{"asset":"laptop-42"}`)

	a, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, _ := Encrypt(plaintext, key)
	if a == b {
		t.Error("two encryptions share a nonce")
	}

	got, err := Decrypt(a, key)
	if err != nil || !bytes.Equal(got, plaintext) {
		t.Fatalf("Decrypt = %s, %v", got, err)
	}

	tampered := []byte(a)
	tampered[len(tampered)/2] ^= 'A' ^ 'B'
	tests := []struct {
		name       string
		ciphertext string
		key        []byte
	}{
		{"tampered", string(tampered), key},
		{"wrong key", a, make([]byte, KeySize)},
		{"not base64", "%%%", key},
		{"too short", "AAAA", key},
		{"short key", a, key[:16]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decrypt(tt.ciphertext, tt.key); !errors.Is(err, ErrDecryptionFailed) {
				t.Errorf("err = %v, want ErrDecryptionFailed", err)
			}
		})
	}
}

func TestDeriveKey_SeparatesPurposes(t *testing.T) {
	key, _ := randomKey()
	enc, err := DeriveKey(key, PurposeEncrypt)
	if err != nil {
		t.Fatal(err)
	}
	tag, _ := DeriveKey(key, PurposeIntegrity)
	if bytes.Equal(enc, tag) || bytes.Equal(enc, key) {
		t.Error("sub-keys are not distinct")
	}
	again, _ := DeriveKey(key, PurposeEncrypt)
	if !bytes.Equal(enc, again) {
		t.Error("derivation is not deterministic")
	}
	if _, err := DeriveKey(key[:31], PurposeEncrypt); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("short key err = %v", err)
	}
}

func TestIntegrityTag_Buckets(t *testing.T) {
	secret := []byte("integrity-secret")
	msg := []byte(`{"a":1}`)
	tag := IntegrityTagAt(msg, secret, baseTime)

	if IntegrityTagAt(msg, secret, baseTime.Add(59*time.Second)) != tag {
		t.Error("tag changed inside one bucket")
	}

	tests := []struct {
		name      string
		offset    time.Duration
		tolerance time.Duration
		want      bool
	}{
		{"same time", 0, 5 * time.Minute, true},
		{"four minutes later", 4 * time.Minute, 5 * time.Minute, true},
		{"four minutes earlier", -4 * time.Minute, 5 * time.Minute, true},
		{"ten minutes later", 10 * time.Minute, 5 * time.Minute, false},
		{"zero tolerance same bucket", 30 * time.Second, 0, true},
		{"zero tolerance next bucket", 61 * time.Second, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyIntegrityAt(msg, tag, secret, tt.tolerance, baseTime.Add(tt.offset))
			if got != tt.want {
				t.Errorf("VerifyIntegrityAt = %v, want %v", got, tt.want)
			}
		})
	}

	if VerifyIntegrityAt([]byte(`{"a":2}`), tag, secret, 5*time.Minute, baseTime) {
		t.Error("altered message verified")
	}
	if VerifyIntegrityAt(msg, tag, []byte("other"), 5*time.Minute, baseTime) {
		t.Error("wrong secret verified")
	}
}

func TestServerKeys_SignAndVerify(t *testing.T) {
	keys, client := testKeys(t)
	msg := []byte("payload")

	sig, err := keys.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !VerifySignature(msg, sig, keys.PublicKey()) {
		t.Error("valid signature rejected")
	}
	if VerifySignature([]byte("payload!"), sig, keys.PublicKey()) {
		t.Error("signature verified for another message")
	}
	if VerifySignature(msg, sig, &client.PublicKey) {
		t.Error("signature verified under another key")
	}
	if VerifySignature(msg, "not base64!", keys.PublicKey()) {
		t.Error("garbage signature verified")
	}
}

func TestLoadServerKeys(t *testing.T) {
	keys, client := testKeys(t)
	privatePEM, err := keys.PrivateKeyPEM()
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	privPath := filepath.Join(dir, "server.key")
	pubPath := filepath.Join(dir, "server.pub")
	if err := os.WriteFile(privPath, []byte(privatePEM), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pubPath, []byte(keys.PublicKeyPEM()), 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadServerKeys(KeyConfig{PrivateKeyPath: privPath, PublicKeyPath: pubPath}, true)
	if err != nil {
		t.Fatalf("LoadServerKeys: %v", err)
	}
	if loaded.PublicKeyPEM() != keys.PublicKeyPEM() {
		t.Error("loaded a different key")
	}

	clientPEM, _ := EncodePublicKeyPEM(&client.PublicKey)
	if _, err := LoadServerKeys(KeyConfig{PrivateKeyPEM: privatePEM, PublicKeyPEM: clientPEM}, true); !errors.Is(err, ErrKeyMismatch) {
		t.Errorf("mismatched pair err = %v", err)
	}
	if _, err := LoadServerKeys(KeyConfig{}, true); !errors.Is(err, ErrKeysRequired) {
		t.Errorf("production without keys err = %v", err)
	}
	if _, err := LoadServerKeys(KeyConfig{PrivateKeyPEM: "garbage"}, false); !errors.Is(err, ErrInvalidPEM) {
		t.Errorf("garbage PEM err = %v", err)
	}
	if _, err := LoadServerKeys(KeyConfig{PrivateKeyPath: filepath.Join(dir, "missing.key")}, false); err == nil {
		t.Error("missing key file accepted")
	}
}
