// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package signing

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"

	"github.com/goccy/go-json"
)

// CanonicalBody re-encodes a JSON document compactly with object keys sorted,
// so that client and server sign the same bytes regardless of formatting.
// Numbers keep their original text.
func CanonicalBody(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("canonical body: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("canonical body: %w", err)
	}
	return out, nil
}

// SigningBody returns the body bytes covered by the signature. Only POST, PUT
// and PATCH bodies are signed; JSON bodies are canonicalized first.
func SigningBody(method, contentType string, raw []byte) ([]byte, error) {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return nil, nil
	}
	if isJSON(contentType) {
		return CanonicalBody(raw)
	}
	return raw, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json"
}
