// AssetGuard - IT Asset Security Telemetry and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/assetguard

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Named objects outside the path space.
const (
	// ObjectAuditSensitive guards unmasked source IPs and request parameters.
	ObjectAuditSensitive = "audit:sensitive"
)

// Actions.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// EnforcerConfig holds configuration for the Casbin enforcer.
type EnforcerConfig struct {
	// ModelPath replaces the embedded model when set.
	ModelPath string `koanf:"model_path"`

	// PolicyPath replaces the embedded policy when set.
	PolicyPath string `koanf:"policy_path"`

	// ReloadInterval reloads PolicyPath periodically; zero disables reload.
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

// Enforcer wraps the Casbin enforcer.
type Enforcer struct {
	config   EnforcerConfig
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer creates an enforcer from the configured or embedded model and
// policy.
func NewEnforcer(config EnforcerConfig) (*Enforcer, error) {
	var m model.Model
	var err error
	if config.ModelPath != "" {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" {
		if _, statErr := os.Stat(config.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("casbin policy: %w", statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	if config.PolicyPath != "" && config.ReloadInterval > 0 {
		enforcer.StartAutoLoadPolicy(config.ReloadInterval)
	}

	return &Enforcer{config: config, enforcer: enforcer}, nil
}

// loadEmbeddedPolicy parses the embedded policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("failed to add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Enforce checks if the subject can perform the action on the object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return allowed, nil
}

// EnforceWithRoles allows the action when the subject or any of its roles is
// allowed.
func (e *Enforcer) EnforceWithRoles(subject string, roles []string, object, action string) (bool, error) {
	for _, s := range append([]string{subject}, roles...) {
		if s == "" {
			continue
		}
		allowed, err := e.Enforce(s, object, action)
		if err != nil {
			return false, err
		}
		if allowed {
			return true, nil
		}
	}
	return false, nil
}

// Close stops policy auto-reload.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
}
