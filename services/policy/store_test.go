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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePolicy(tenantID string) *TenantLlmPolicy {
	mode := "report-only"
	return &TenantLlmPolicy{
		TenantID:          tenantID,
		DefaultProvider:   "openai",
		DefaultModel:      "gpt-4o",
		AllowRemoteEgress: true,
		EgressMode:        &mode,
		Tasks: []TaskPolicy{
			{Task: "summarize", Provider: "local", Model: "llama3.1:8b", Temperature: 0.2},
		},
		UserPolicies: map[string]UserPolicy{},
	}
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.SetPolicy(ctx, samplePolicy("acme")))

	got, err := store.GetPolicy(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "acme", got.TenantID)
	assert.Equal(t, "gpt-4o", got.DefaultModel)
	require.NotNil(t, got.EgressMode)
	assert.Equal(t, "report-only", *got.EgressMode)
}

func TestMemoryStore_NotFoundIsNilNil(t *testing.T) {
	store := NewMemoryStore()

	got, err := store.GetPolicy(context.Background(), "ghost")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_RejectsNilAndKeylessPolicies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	assert.ErrorIs(t, store.SetPolicy(ctx, nil), ErrNilPolicy)
	assert.ErrorIs(t, store.SetPolicy(ctx, &TenantLlmPolicy{}), ErrNilPolicy)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	original := samplePolicy("acme")
	require.NoError(t, store.SetPolicy(ctx, original))

	// Mutating the caller's struct after the write must not affect the store.
	original.DefaultModel = "mutated"
	got, err := store.GetPolicy(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got.DefaultModel)

	// Mutating one read must not affect the next.
	got.DefaultModel = "mutated-again"
	again, err := store.GetPolicy(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", again.DefaultModel)
}

func TestTaskFor(t *testing.T) {
	pol := samplePolicy("acme")

	task := pol.TaskFor("summarize")
	require.NotNil(t, task)
	assert.Equal(t, "local", task.Provider)

	assert.Nil(t, pol.TaskFor("unknown"))
	assert.Nil(t, pol.TaskFor(""))
}
