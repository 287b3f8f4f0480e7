// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
)

// badgerKeyPrefix is prepended to the tenant ID to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const badgerKeyPrefix = "policy/tenant/v1/"

// BadgerStore is a Store backed by an embedded BadgerDB instance.
//
// Description:
//
//	Policies are JSON-encoded under policy/tenant/v1/{tenantID}. Tenant
//	policy is service infrastructure, not user data — an embedded KV store
//	means no network call and no availability dependency on the read path.
//	The DB is opened by the caller (typically in main) and shared; this
//	store does not own the DB lifecycle.
//
// Thread Safety: Safe for concurrent use. BadgerDB transactions are
// per-goroutine.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStore creates a BadgerStore backed by the given DB instance.
//
// Inputs:
//   - db: Opened BadgerDB. Must not be nil; the caller owns its lifecycle.
//   - logger: Logger for diagnostics. Nil uses slog.Default().
//
// Outputs:
//   - *BadgerStore: Ready-to-use store.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) *BadgerStore {
	if db == nil {
		panic("NewBadgerStore: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger.With(slog.String("component", "policy_store"))}
}

// GetPolicy retrieves and decodes the policy for a tenant.
//
// Outputs:
//   - *TenantLlmPolicy: The stored policy, or nil when the key is absent.
//   - error: Non-nil on storage or decode failure.
func (s *BadgerStore) GetPolicy(_ context.Context, tenantID string) (*TenantLlmPolicy, error) {
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + tenantID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("policy store get %q: %w", tenantID, err)
	}

	var pol TenantLlmPolicy
	if err := json.Unmarshal(raw, &pol); err != nil {
		return nil, fmt.Errorf("policy store decode %q: %w", tenantID, err)
	}
	return &pol, nil
}

// SetPolicy JSON-encodes and stores a tenant policy.
func (s *BadgerStore) SetPolicy(_ context.Context, pol *TenantLlmPolicy) error {
	if pol == nil || pol.TenantID == "" {
		return ErrNilPolicy
	}

	raw, err := json.Marshal(pol)
	if err != nil {
		return fmt.Errorf("policy store encode %q: %w", pol.TenantID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+pol.TenantID), raw)
	})
	if err != nil {
		return fmt.Errorf("policy store set %q: %w", pol.TenantID, err)
	}

	s.logger.Debug("policy stored", slog.String("tenant_id", pol.TenantID))
	return nil
}
