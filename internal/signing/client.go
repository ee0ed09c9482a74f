// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package signing

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client signs outbound requests with a shared secret.
type Client struct {
	secret []byte
	http   *http.Client
	now    func() time.Time
	nonce  func() string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets the client used by Do.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithClientClock overrides the timestamp source.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// NewClient creates a signing client.
func NewClient(secret []byte, opts ...ClientOption) *Client {
	c := &Client{
		secret: secret,
		http:   &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
		nonce:  NewNonce,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignRequest computes fresh signature headers for req and sets them. A JSON
// body is replaced by its canonical form so the bytes on the wire are the bytes
// that were signed.
func (c *Client) SignRequest(req *http.Request) error {
	var raw []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return fmt.Errorf("read request body: %w", err)
		}
		raw = b
	}

	body, err := SigningBody(req.Method, req.Header.Get("Content-Type"), raw)
	if err != nil {
		return err
	}
	send := raw
	if body != nil && isJSON(req.Header.Get("Content-Type")) {
		send = body
	}
	if send != nil {
		req.Body = io.NopCloser(bytes.NewReader(send))
		req.ContentLength = int64(len(send))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(send)), nil
		}
	}

	h := c.Headers(req.Method, req.URL.RequestURI(), body)
	h.Apply(req.Header)
	return nil
}

// Headers returns signature headers for the given request parts.
func (c *Client) Headers(method, target string, body []byte) Headers {
	ts := strconv.FormatInt(c.now().Unix(), 10)
	nonce := c.nonce()
	return Headers{
		Timestamp: ts,
		Nonce:     nonce,
		Signature: Sign(method, target, ts, nonce, body, c.secret),
	}
}

// Do signs req and sends it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.SignRequest(req); err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// NewNonce returns a 32-character random token.
func NewNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Credentials is an API key pair for a signing client.
type Credentials struct {
	APIID     string    `json:"api_id"`
	APISecret string    `json:"api_secret"`
	CreatedAt time.Time `json:"created_at"`
}

// GenerateCredentials creates a new API ID and a 256-bit secret.
func GenerateCredentials() (*Credentials, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate api secret: %w", err)
	}
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:16]
	return &Credentials{
		APIID:     "API_" + id,
		APISecret: base64.RawURLEncoding.EncodeToString(secret),
		CreatedAt: time.Now().UTC(),
	}, nil
}
