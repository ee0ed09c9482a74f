// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of a session key in bytes.
const KeySize = 32

// BucketSize is the granularity of integrity tags.
const BucketSize = 60 * time.Second

// Crypto errors.
var (
	// ErrDecryptionFailed covers every decrypt failure, so callers cannot tell a
	// wrong key from tampered ciphertext.
	ErrDecryptionFailed = errors.New("channel: decryption failed")

	// ErrInvalidKey is returned for keys that are not KeySize bytes.
	ErrInvalidKey = errors.New("channel: invalid key size")
)

// Sub-key purposes.
const (
	PurposeEncrypt   = "encrypt"
	PurposeIntegrity = "integrity"
)

// DeriveKey derives a KeySize sub-key for purpose from a session key using
// HKDF-SHA256.
func DeriveKey(sessionKey []byte, purpose string) ([]byte, error) {
	if len(sessionKey) != KeySize {
		return nil, ErrInvalidKey
	}
	reader := hkdf.New(sha256.New, sessionKey, nil, []byte("assetguard-channel-"+purpose))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

func newAEAD(sessionKey []byte) (cipher.AEAD, error) {
	key, err := DeriveKey(sessionKey, PurposeEncrypt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext with AES-256-GCM under the session key's encryption
// sub-key. The random nonce is prepended and the result is base64 encoded.
func Encrypt(plaintext, sessionKey []byte) (string, error) {
	aead, err := newAEAD(sessionKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any failure is ErrDecryptionFailed.
func Decrypt(ciphertext string, sessionKey []byte) ([]byte, error) {
	aead, err := newAEAD(sessionKey)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil || len(data) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrDecryptionFailed
	}
	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// IntegrityTagAt returns the hex HMAC-SHA256 of message followed by the decimal
// 60-second bucket containing t.
func IntegrityTagAt(message, secret []byte, t time.Time) string {
	return bucketTag(message, secret, bucketOf(t))
}

// VerifyIntegrityAt reports whether tag matches message for any bucket within
// tolerance of now. Every candidate bucket is compared.
func VerifyIntegrityAt(message []byte, tag string, secret []byte, tolerance time.Duration, now time.Time) bool {
	first := bucketOf(now.Add(-tolerance))
	last := bucketOf(now.Add(tolerance))

	match := 0
	for b := first; b <= last; b++ {
		if hmac.Equal([]byte(bucketTag(message, secret, b)), []byte(tag)) {
			match = 1
		}
	}
	return match == 1
}

func bucketOf(t time.Time) int64 {
	return t.Unix() / int64(BucketSize/time.Second)
}

func bucketTag(message, secret []byte, bucket int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	mac.Write([]byte(strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func randomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}
	return key, nil
}
