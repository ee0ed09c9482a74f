// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package audit

import "github.com/tomtom215/assetguard/internal/logging"

// MaxParamValueLength bounds each stored request parameter value.
const MaxParamValueLength = 500

// RedactParams returns a copy of params with secret values replaced and long
// values truncated. A nil or empty input yields nil.
func RedactParams(params map[string]string) map[string]string {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		if logging.IsSensitiveKey(k) {
			out[k] = logging.RedactedValue
			continue
		}
		out[k] = logging.TruncateString(v, MaxParamValueLength)
	}
	return out
}

// Redacted returns the view of event shown to callers without the sensitive
// capability: the source IP is masked and request parameters are redacted again.
// The integrity hash still describes the stored event, so a redacted view does
// not verify.
func Redacted(event Event) Event {
	event.SourceIP = logging.MaskIP(event.SourceIP)
	event.RequestParams = RedactParams(event.RequestParams)
	return event
}
