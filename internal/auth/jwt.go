// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest accepted HS256 secret.
const MinSecretLength = 32

// Authentication errors.
var (
	ErrNoCredentials      = errors.New("auth: no credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrExpiredCredentials = errors.New("auth: credentials expired")
	ErrSecretTooShort     = fmt.Errorf("auth: JWT secret must be at least %d characters", MinSecretLength)
)

// Config configures token validation.
type Config struct {
	Secret   string        `koanf:"jwt_secret"`
	Issuer   string        `koanf:"jwt_issuer"`
	TokenTTL time.Duration `koanf:"token_ttl"`
	Leeway   time.Duration `koanf:"leeway"`
}

// DefaultConfig returns defaults without a secret.
func DefaultConfig() Config {
	return Config{
		Issuer:   "assetguard",
		TokenTTL: time.Hour,
		Leeway:   30 * time.Second,
	}
}

// Claims are the JWT claims AssetGuard reads. RegisteredClaims.Subject is the
// principal ID.
type Claims struct {
	Username string   `json:"username,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager validates (and, for tooling and tests, issues) HS256 tokens.
type JWTManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
	now    func() time.Time
}

// Option customizes a JWTManager.
type Option func(*JWTManager)

// WithClock replaces the wall clock used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(m *JWTManager) { m.now = now }
}

// NewJWTManager creates a manager. The secret is required.
func NewJWTManager(cfg Config, opts ...Option) (*JWTManager, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	m := &JWTManager{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.TokenTTL,
		leeway: cfg.Leeway,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// GenerateToken issues a token for principalID.
func (m *JWTManager) GenerateToken(principalID, username string, roles ...string) (string, error) {
	now := m.now()
	claims := &Claims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    m.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies the signature, algorithm, time claims and issuer,
// and requires a subject.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithLeeway(m.leeway),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
