// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"

	"github.com/goccy/go-json"
)

// Hasher computes event integrity hashes. With a key it uses HMAC-SHA256, which
// also stops someone with database access from forging a matching hash; without
// one it falls back to plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher creates a hasher. An empty key selects unkeyed SHA-256.
func NewHasher(key []byte) *Hasher {
	return &Hasher{key: append([]byte(nil), key...)}
}

// Keyed reports whether the hasher uses HMAC.
func (h *Hasher) Keyed() bool { return len(h.key) > 0 }

// Sum returns the lowercase hex hash over every field of event except ID and
// IntegrityHash. The input is the JSON encoding of the event, whose field order is
// fixed by the struct and whose map keys are sorted.
func (h *Hasher) Sum(event *Event) (string, error) {
	canonical := *event
	canonical.ID = 0
	canonical.IntegrityHash = ""

	data, err := json.Marshal(&canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode event for hashing: %w", err)
	}

	var mac hash.Hash
	if h.Keyed() {
		mac = hmac.New(sha256.New, h.key)
	} else {
		mac = sha256.New()
	}
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the hash of event and compares it with the stored one in
// constant time.
func (h *Hasher) Verify(event *Event) bool {
	if event == nil || event.IntegrityHash == "" {
		return false
	}
	expected, err := h.Sum(event)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(event.IntegrityHash))
}
