// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"context"
	"errors"
	"sync"
)

// ErrNilPolicy is returned by SetPolicy for a nil or key-less record.
var ErrNilPolicy = errors.New("policy: policy must not be nil and must carry a tenant ID")

// Store is the pluggable persistence interface for tenant policies.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// GetPolicy retrieves the policy for a tenant.
	//
	// Outputs:
	//   - *TenantLlmPolicy: The stored policy, or nil when the tenant has none.
	//   - error: Non-nil only on storage failure. Not-found is (nil, nil).
	GetPolicy(ctx context.Context, tenantID string) (*TenantLlmPolicy, error)

	// SetPolicy stores (creates or replaces) a tenant policy.
	SetPolicy(ctx context.Context, pol *TenantLlmPolicy) error
}

// MemoryStore is an in-process Store backed by a map. Intended for tests and
// single-node deployments without persistence requirements.
//
// Thread Safety: Safe for concurrent use via sync.RWMutex.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]TenantLlmPolicy
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[string]TenantLlmPolicy)}
}

// GetPolicy returns a copy of the stored policy, or (nil, nil) when absent.
func (s *MemoryStore) GetPolicy(_ context.Context, tenantID string) (*TenantLlmPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pol, ok := s.policies[tenantID]
	if !ok {
		return nil, nil
	}
	out := pol
	return &out, nil
}

// SetPolicy stores a copy of the policy keyed by its TenantID.
func (s *MemoryStore) SetPolicy(_ context.Context, pol *TenantLlmPolicy) error {
	if pol == nil || pol.TenantID == "" {
		return ErrNilPolicy
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.policies[pol.TenantID] = *pol
	return nil
}
