// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package channel

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/tomtom215/assetguard/internal/logging"
)

// ServerKeyBits is the size of generated server keys.
const ServerKeyBits = 2048

// Key errors.
var (
	// ErrKeysRequired is returned in production when no key pair is configured.
	ErrKeysRequired = errors.New("channel: server key pair must be configured in production")

	// ErrInvalidPEM is returned for PEM input that does not hold a usable RSA key.
	ErrInvalidPEM = errors.New("channel: invalid PEM key")

	// ErrKeyMismatch is returned when the configured public key does not belong
	// to the private key.
	ErrKeyMismatch = errors.New("channel: public key does not match private key")
)

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: crypto.SHA256}

// ServerKeys is the server's RSA key pair.
type ServerKeys struct {
	private   *rsa.PrivateKey
	publicPEM string
}

// GenerateServerKeys creates a fresh RSA-2048 key pair.
func GenerateServerKeys() (*ServerKeys, error) {
	key, err := rsa.GenerateKey(rand.Reader, ServerKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}
	return newServerKeys(key)
}

// LoadServerKeys loads the key pair described by cfg. With nothing configured,
// a key pair is generated outside production and ErrKeysRequired is returned in
// production.
func LoadServerKeys(cfg KeyConfig, production bool) (*ServerKeys, error) {
	privatePEM, err := readPEM(cfg.PrivateKeyPEM, cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	if privatePEM == nil {
		if production {
			return nil, ErrKeysRequired
		}
		logging.Warn().Msg("No server key pair configured, generating an ephemeral RSA-2048 key pair")
		return GenerateServerKeys()
	}

	private, err := ParsePrivateKeyPEM(privatePEM)
	if err != nil {
		return nil, err
	}
	keys, err := newServerKeys(private)
	if err != nil {
		return nil, err
	}

	publicPEM, err := readPEM(cfg.PublicKeyPEM, cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	if publicPEM != nil {
		public, err := ParsePublicKeyPEM(publicPEM)
		if err != nil {
			return nil, err
		}
		if !public.Equal(&private.PublicKey) {
			return nil, ErrKeyMismatch
		}
	}
	return keys, nil
}

func readPEM(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	if path == "" {
		return nil, nil
	}
	return os.ReadFile(path)
}

func newServerKeys(key *rsa.PrivateKey) (*ServerKeys, error) {
	publicPEM, err := EncodePublicKeyPEM(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &ServerKeys{private: key, publicPEM: publicPEM}, nil
}

// PublicKeyPEM returns the public key as a PKIX PEM block.
func (k *ServerKeys) PublicKeyPEM() string { return k.publicPEM }

// PrivateKeyPEM returns the private key as a PKCS#8 PEM block.
func (k *ServerKeys) PrivateKeyPEM() (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.private)
	if err != nil {
		return "", fmt.Errorf("marshal private key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// PublicKey returns the public half of the pair.
func (k *ServerKeys) PublicKey() *rsa.PublicKey { return &k.private.PublicKey }

// Sign returns a base64 RSA-PSS/SHA-256 signature over message.
func (k *ServerKeys) Sign(message []byte) (string, error) {
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPSS(rand.Reader, k.private, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySignature checks a base64 RSA-PSS/SHA-256 signature.
func VerifySignature(message []byte, signature string, public *rsa.PublicKey) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || public == nil {
		return false
	}
	digest := sha256.Sum256(message)
	return rsa.VerifyPSS(public, crypto.SHA256, digest[:], sig, pssOptions) == nil
}

// WrapKey encrypts key for the holder of public using RSA-OAEP/SHA-256.
func WrapKey(key []byte, public *rsa.PublicKey) (string, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, public, key, nil)
	if err != nil {
		return "", fmt.Errorf("wrap session key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

// UnwrapKey reverses WrapKey.
func UnwrapKey(wrapped string, private *rsa.PrivateKey) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, private, data, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return key, nil
}

// EncodePublicKeyPEM encodes public as a PKIX PEM block.
func EncodePublicKeyPEM(public *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePublicKeyPEM parses a PKIX or PKCS#1 RSA public key of at least
// ServerKeyBits bits.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		parsed, perr := x509.ParsePKIXPublicKey(block.Bytes)
		if perr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, perr)
		}
		var ok bool
		if key, ok = parsed.(*rsa.PublicKey); !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPEM)
		}
	}
	if key.N.BitLen() < ServerKeyBits {
		return nil, fmt.Errorf("%w: RSA key shorter than %d bits", ErrInvalidPEM, ServerKeyBits)
	}
	return key, nil
}

// ParsePrivateKeyPEM parses a PKCS#8 or PKCS#1 RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPEM, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", ErrInvalidPEM)
	}
	return key, nil
}
