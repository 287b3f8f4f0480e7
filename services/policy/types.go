// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy provides per-tenant LLM routing and egress policy records
// and their pluggable persistence: an in-memory map, a BadgerDB-backed store,
// and a Redis cache-fronted wrapper that degrades gracefully when the cache
// backend is unavailable.
//
// Thread Safety:
//
//	All store implementations are safe for concurrent use.
package policy

// TaskPolicy routes one named task to a provider/model with call options.
type TaskPolicy struct {
	// Task is the task name (e.g. "summarize", "classify_document").
	Task string `json:"task"`

	// Provider is the provider key for this task. Ignored when the tenant
	// has AllowRemoteEgress=false and the provider is not local.
	Provider string `json:"provider"`

	// Model is the model identifier for this task.
	Model string `json:"model"`

	// Temperature for this task's calls. Negative means provider default.
	Temperature float64 `json:"temperature"`

	// MaxTokens limits response length. 0 means provider default.
	MaxTokens int `json:"maxTokens"`
}

// UserPolicy is a per-user override layer inside a tenant policy.
type UserPolicy struct {
	// EgressMode overrides the tenant's egress mode for this user. Nil means
	// inherit. Stored as a string ("off", "report-only", "enforce") so this
	// package carries no dependency on the egress package.
	EgressMode *string `json:"egressMode,omitempty"`

	// AllowOffMode overrides the tenant's off-mode grant for this user.
	// Nil means inherit the tenant grant.
	AllowOffMode *bool `json:"allowOffMode,omitempty"`
}

// TenantLlmPolicy is the per-tenant routing and egress configuration record.
//
// Invariant: when AllowRemoteEgress is false, routing must force the local
// provider regardless of task policy; a task naming a remote provider is
// ignored in that state.
//
// Thread Safety: TenantLlmPolicy is a value record. Stores return copies;
// callers must not share a mutable instance across goroutines while writing.
type TenantLlmPolicy struct {
	// TenantID is the unique tenant identifier (store key).
	TenantID string `json:"tenantId"`

	// DefaultProvider and DefaultModel apply when no task policy matches.
	DefaultProvider string `json:"defaultProvider"`
	DefaultModel    string `json:"defaultModel"`

	// AllowRemoteEgress permits routing to non-local providers.
	AllowRemoteEgress bool `json:"allowRemoteEgress"`

	// Tasks holds per-task routing overrides.
	Tasks []TaskPolicy `json:"tasks,omitempty"`

	// EgressMode is the tenant's default egress mode. Nil means inherit the
	// platform default.
	EgressMode *string `json:"egressMode,omitempty"`

	// AllowOffMode grants this tenant the right to select "off". Defaults
	// to false: opting out of sanitization requires an explicit grant.
	AllowOffMode bool `json:"allowOffMode"`

	// UserPolicies maps user IDs to per-user override layers.
	UserPolicies map[string]UserPolicy `json:"userPolicies,omitempty"`
}

// TaskFor returns the task policy for the given task name, or nil when the
// tenant has no override for it.
func (p *TenantLlmPolicy) TaskFor(task string) *TaskPolicy {
	if p == nil || task == "" {
		return nil
	}
	for i := range p.Tasks {
		if p.Tasks[i].Task == task {
			return &p.Tasks[i]
		}
	}
	return nil
}
