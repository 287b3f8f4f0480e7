// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import (
	"os"
	"strconv"
	"strings"
)

// GuardConfig holds configuration for the egress guard system.
//
// Description:
//
//	Loaded from environment variables at startup via LoadGuardConfig().
//	All fields have fail-safe defaults: enforce mode, audit enabled, and an
//	allow-list containing only the local provider.
//
// Thread Safety: GuardConfig is a value type. Safe to copy after loading.
type GuardConfig struct {
	// AllowedProviders is the set of providers permitted to receive egress
	// traffic. Env: EGRESS_ALLOWED_PROVIDERS (comma-separated,
	// default: "local").
	AllowedProviders map[string]bool

	// DefaultMode is the platform-wide base egress mode, the lowest layer of
	// mode resolution. Env: EGRESS_DEFAULT_MODE (default: "enforce").
	DefaultMode EgressMode

	// AuditEnabled controls whether egress audit logging is active.
	// Env: EGRESS_AUDIT_ENABLED (default: "true")
	AuditEnabled bool

	// AuditHashContent controls whether request content is SHA256-hashed in
	// audit entries. Env: EGRESS_AUDIT_HASH_CONTENT (default: "true")
	AuditHashContent bool

	// ModelDetection enables the model-assisted detector layer by default.
	// Env: EGRESS_MODEL_DETECTION (default: "false")
	ModelDetection bool
}

// LoadGuardConfig reads guard configuration from environment variables.
//
// Outputs:
//   - *GuardConfig: Fully populated configuration with safe defaults.
func LoadGuardConfig() *GuardConfig {
	cfg := &GuardConfig{
		AllowedProviders: envSet("EGRESS_ALLOWED_PROVIDERS"),
		DefaultMode:      ModeEnforce,
		AuditEnabled:     envBool("EGRESS_AUDIT_ENABLED", true),
		AuditHashContent: envBool("EGRESS_AUDIT_HASH_CONTENT", true),
		ModelDetection:   envBool("EGRESS_MODEL_DETECTION", false),
	}

	if len(cfg.AllowedProviders) == 0 {
		cfg.AllowedProviders = map[string]bool{"local": true}
	}

	if mode, err := ParseEgressMode(os.Getenv("EGRESS_DEFAULT_MODE")); err == nil {
		cfg.DefaultMode = mode
	}

	return cfg
}

// envBool reads a boolean environment variable with a default value.
func envBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// envSet reads a comma-separated environment variable into a set.
// Returns an empty map (not nil) if the variable is unset.
func envSet(key string) map[string]bool {
	result := make(map[string]bool)
	for _, item := range strings.Split(os.Getenv(key), ",") {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			result[trimmed] = true
		}
	}
	return result
}
