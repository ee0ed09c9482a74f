// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/assetguard/config.yaml",
	"/etc/assetguard/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load loads configuration with Koanf v2 from layered sources:
//  1. Defaults: built-in values from defaultConfig
//  2. Config File: optional YAML file (if one exists)
//  3. Environment Variables: override any mapped setting
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}
	if err := processMapFields(k); err != nil {
		return nil, fmt.Errorf("failed to process map fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns $CONFIG_PATH if it exists, else the first existing
// entry of DefaultConfigPaths, else "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set through
// the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		if parts := splitList(strVal); len(parts) > 0 {
			if err := k.Set(path, parts); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// mapConfigPaths are parsed from "key=value,key2=value2" strings when set
// through the environment.
var mapConfigPaths = []string{
	"notifier.webhook.headers",
}

// processMapFields converts key=value lists to maps. Values may contain "=".
func processMapFields(k *koanf.Koanf) error {
	for _, path := range mapConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		result := make(map[string]interface{})
		for _, item := range splitList(strVal) {
			parts := strings.SplitN(item, "=", 2)
			if len(parts) != 2 {
				continue
			}
			if key := strings.TrimSpace(parts[0]); key != "" {
				result[key] = strings.TrimSpace(parts[1])
			}
		}
		// Delete first: Set merges maps, and the string value must go.
		k.Delete(path)
		if len(result) == 0 {
			continue
		}
		if err := k.Set(path, result); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",
	"trust_proxy_headers":   "server.trust_proxy_headers",
	"enable_metrics":        "server.metrics_enabled",

	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	// Security
	"jwt_secret":             "security.auth.jwt_secret",
	"jwt_issuer":             "security.auth.jwt_issuer",
	"jwt_token_ttl":          "security.auth.token_ttl",
	"jwt_leeway":             "security.auth.leeway",
	"casbin_model_path":      "security.casbin.model_path",
	"casbin_policy_path":     "security.casbin.policy_path",
	"casbin_reload_interval": "security.casbin.reload_interval",
	"cors_origins":           "security.cors_origins",
	"disable_rate_limit":     "security.rate_limit_disabled",

	// Request signing
	"signing_enabled":          "signing.enabled",
	"signing_secret":           "signing.secret",
	"signature_tolerance":      "signing.tolerance",
	"signing_prune_interval":   "signing.prune_interval",
	"signing_min_nonce_length": "signing.min_nonce_length",

	// Secure channel
	"secure_channel_enabled":  "channel.enabled",
	"session_key_ttl":         "channel.session_ttl",
	"message_dedup_ttl":       "channel.dedup_ttl",
	"integrity_tolerance":     "channel.integrity_tolerance",
	"server_private_key_path": "channel.keys.private_key_path",
	"server_public_key_path":  "channel.keys.public_key_path",
	"server_private_key":      "channel.keys.private_key_pem",
	"server_public_key":       "channel.keys.public_key_pem",

	// Detection
	"detection_auto_block":       "detection.auto_block",
	"detection_block_duration":   "detection.block_duration",
	"detection_notify_timeout":   "detection.notify_timeout",
	"detection_max_tracked_keys": "detection.max_tracked_keys",
	"brute_force_enabled":        "detection.brute_force.enabled",
	"brute_force_threshold":      "detection.brute_force.threshold",
	"brute_force_window":         "detection.brute_force.window",
	"rapid_calls_enabled":        "detection.rapid_calls.enabled",
	"rapid_calls_threshold":      "detection.rapid_calls.threshold",
	"rapid_calls_window":         "detection.rapid_calls.window",
	"login_time_enabled":         "detection.login_time.enabled",
	"new_ip_enabled":             "detection.new_ip.enabled",
	"new_ip_lookback":            "detection.new_ip.lookback",
	"exfiltration_enabled":       "detection.exfiltration.enabled",
	"exfiltration_threshold":     "detection.exfiltration.threshold",
	"exfiltration_window":        "detection.exfiltration.window",

	// Audit
	"audit_storage":             "audit.storage",
	"audit_memory_max_events":   "audit.memory_max_events",
	"audit_integrity_key":       "audit.integrity_key",
	"audit_high_risk_threshold": "audit.high_risk_threshold",
	"audit_write_timeout":       "audit.write_timeout",
	"api_default_page_size":     "audit.default_page_size",
	"api_max_page_size":         "audit.max_page_size",

	// Cache
	"cache_backend":         "cache.backend",
	"cache_memory_capacity": "cache.memory_capacity",
	"cache_badger_path":     "cache.badger_path",
	"cache_evict_interval":  "cache.evict_interval",
	"redis_addr":            "cache.redis.addr",
	"redis_password":        "cache.redis.password",
	"redis_db":              "cache.redis.db",
	"redis_key_prefix":      "cache.redis.key_prefix",

	// Notifier
	"webhook_enabled":           "notifier.webhook.enabled",
	"webhook_url":               "notifier.webhook.url",
	"webhook_headers":           "notifier.webhook.headers",
	"webhook_min_interval":      "notifier.webhook.min_interval",
	"webhook_timeout":           "notifier.webhook.timeout",
	"webhook_failure_threshold": "notifier.webhook.failure_threshold",
	"webhook_cooldown":          "notifier.webhook.cooldown_period",
	"alert_transport":           "notifier.bus.transport",
	"alert_buffer":              "notifier.bus.buffer",
	"alert_nats_url":            "notifier.bus.nats_url",
	"alert_queue_group":         "notifier.bus.queue_group",

	// Gateway
	"audit_error_responses":   "gateway.audit_error_responses",
	"content_security_policy": "gateway.content_security_policy",
	"hsts_max_age":            "gateway.hsts_max_age",
	"latency_window":          "gateway.latency_window",
	"stats_window":            "gateway.stats_window",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are skipped, so unrelated environment
// does not leak into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
