// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	store := NewBadgerStore(openTestBadger(t), nil)
	ctx := context.Background()

	pol := samplePolicy("acme")
	allowOff := true
	pol.AllowOffMode = allowOff
	pol.UserPolicies["alice"] = UserPolicy{AllowOffMode: &allowOff}
	require.NoError(t, store.SetPolicy(ctx, pol))

	got, err := store.GetPolicy(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, pol.DefaultProvider, got.DefaultProvider)
	assert.Equal(t, pol.Tasks, got.Tasks)
	require.Contains(t, got.UserPolicies, "alice")
	require.NotNil(t, got.UserPolicies["alice"].AllowOffMode)
	assert.True(t, *got.UserPolicies["alice"].AllowOffMode)
}

func TestBadgerStore_NotFoundIsNilNil(t *testing.T) {
	store := NewBadgerStore(openTestBadger(t), nil)

	got, err := store.GetPolicy(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestBadgerStore_Overwrite(t *testing.T) {
	store := NewBadgerStore(openTestBadger(t), nil)
	ctx := context.Background()

	pol := samplePolicy("acme")
	require.NoError(t, store.SetPolicy(ctx, pol))

	pol.DefaultModel = "gpt-4o-mini"
	require.NoError(t, store.SetPolicy(ctx, pol))

	got, err := store.GetPolicy(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.DefaultModel)
}

func TestBadgerStore_RejectsNilPolicy(t *testing.T) {
	store := NewBadgerStore(openTestBadger(t), nil)

	assert.ErrorIs(t, store.SetPolicy(context.Background(), nil), ErrNilPolicy)
}
