// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package logging

import (
	"net/netip"
	"strconv"
	"strings"
)

// sensitiveKeyFragments mark a parameter or header as secret when any of them
// appears in the lowercased key.
var sensitiveKeyFragments = []string{
	"password",
	"token",
	"secret",
	"key",
	"hash",
	"authorization",
	"cookie",
}

// RedactedValue replaces secret values in logs and query results.
const RedactedValue = "***"

// IsSensitiveKey reports whether a parameter named key must never be shown.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// MaskIP hides the host part of an address.
//
//	"192.168.10.42"                -> "192.168.*.*"
//	"2001:db8:85a3::8a2e:370:7334" -> "2001:db8:*"
//
// Values that do not parse as IP addresses are replaced entirely.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return RedactedValue
	}
	addr = addr.Unmap()
	if addr.Is4() {
		b := addr.As4()
		return strconv.Itoa(int(b[0])) + "." + strconv.Itoa(int(b[1])) + ".*.*"
	}
	b := addr.As16()
	first := uint64(b[0])<<8 | uint64(b[1])
	second := uint64(b[2])<<8 | uint64(b[3])
	return strconv.FormatUint(first, 16) + ":" + strconv.FormatUint(second, 16) + ":*"
}

// SanitizeToken masks a token, showing only the first and last 4 characters.
// Example: "eyJhbGciOiJIUzI1NiJ9" -> "eyJh...NiJ9"
func SanitizeToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 12 {
		return RedactedValue
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// SanitizeUserID masks a principal ID for log output.
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}
	if len(userID) <= 8 {
		return userID[:1] + RedactedValue
	}
	return userID[:4] + "..." + userID[len(userID)-4:]
}

// SanitizeError drops error messages that might echo credentials.
func SanitizeError(err string) string {
	if IsSensitiveKey(err) || strings.Contains(strings.ToLower(err), "bearer") {
		return "authentication error"
	}
	return TruncateString(err, 200)
}

// SanitizeValue masks value when key names a secret.
func SanitizeValue(key, value string) string {
	if IsSensitiveKey(key) {
		return SanitizeToken(value)
	}
	return value
}

// TruncateString cuts s to at most maxLen bytes, never splitting a UTF-8 sequence.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
