// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package signing

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// Signed-request headers.
const (
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"
	HeaderSignature = "X-Signature"
)

// MaxNonceLength is the longest accepted nonce.
const MaxNonceLength = 64

// SignatureLength is the length of a hex-encoded HMAC-SHA256.
const SignatureLength = 64

// Header contract errors.
var (
	ErrMissingHeaders = errors.New("signing: missing signature headers")
	ErrMalformed      = errors.New("signing: malformed signature headers")
)

// Headers holds the parsed signature headers.
type Headers struct {
	Timestamp string
	Nonce     string
	Signature string
}

// Present reports whether any signature header was sent.
func Present(h http.Header) bool {
	return h.Get(HeaderTimestamp) != "" || h.Get(HeaderNonce) != "" || h.Get(HeaderSignature) != ""
}

// ParseHeaders extracts and validates the signature headers. All three must be
// present. The timestamp must be a decimal integer, the nonce between
// minNonceLength and MaxNonceLength characters, and the signature 64 lowercase
// hex characters.
func ParseHeaders(h http.Header, minNonceLength int) (Headers, error) {
	out := Headers{
		Timestamp: h.Get(HeaderTimestamp),
		Nonce:     h.Get(HeaderNonce),
		Signature: h.Get(HeaderSignature),
	}
	if out.Timestamp == "" || out.Nonce == "" || out.Signature == "" {
		return Headers{}, ErrMissingHeaders
	}

	if _, err := strconv.ParseInt(out.Timestamp, 10, 64); err != nil {
		return Headers{}, fmt.Errorf("%w: timestamp is not a decimal integer", ErrMalformed)
	}
	if n := len(out.Nonce); n < minNonceLength || n > MaxNonceLength {
		return Headers{}, fmt.Errorf("%w: nonce length %d outside [%d, %d]", ErrMalformed, n, minNonceLength, MaxNonceLength)
	}
	if len(out.Signature) != SignatureLength || !isLowerHex(out.Signature) {
		return Headers{}, fmt.Errorf("%w: signature is not %d lowercase hex characters", ErrMalformed, SignatureLength)
	}
	return out, nil
}

// ReasonFor maps a ParseHeaders error to a verification reason.
func ReasonFor(err error) Reason {
	if errors.Is(err, ErrMissingHeaders) {
		return ReasonMissingHeaders
	}
	return ReasonMalformed
}

// NewRequest assembles the signed material of an inbound request.
func NewRequest(method, target string, h Headers, body []byte) Request {
	return Request{
		Method:    method,
		Target:    target,
		Timestamp: h.Timestamp,
		Nonce:     h.Nonce,
		Signature: h.Signature,
		Body:      body,
	}
}

// Apply sets the signature headers on h.
func (h Headers) Apply(header http.Header) {
	header.Set(HeaderTimestamp, h.Timestamp)
	header.Set(HeaderNonce, h.Nonce)
	header.Set(HeaderSignature, h.Signature)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
