// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSandbox is an in-memory Sandbox with scripted behavior.
type fakeSandbox struct {
	id        string
	exec      *Execution
	runErr    error
	killErr   error
	killCalls int32
	lastCode  string
}

func (s *fakeSandbox) SandboxID() string { return s.id }

func (s *fakeSandbox) RunCode(_ context.Context, code string, _ RunOpts) (*Execution, error) {
	s.lastCode = code
	if s.runErr != nil {
		return nil, s.runErr
	}
	return s.exec, nil
}

func (s *fakeSandbox) Kill(_ context.Context) error {
	atomic.AddInt32(&s.killCalls, 1)
	return s.killErr
}

func countingFactory(counter *int32) Factory {
	return func(_ context.Context) (Sandbox, error) {
		n := atomic.AddInt32(counter, 1)
		// Simulate real provisioning latency so racing callers overlap.
		time.Sleep(10 * time.Millisecond)
		return &fakeSandbox{id: fmt.Sprintf("sbx-%d", n)}, nil
	}
}

func TestManager_ConcurrentCreationConverges(t *testing.T) {
	var created int32
	m := NewManager(countingFactory(&created), nil)
	ctx := context.Background()

	const callers = 3
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sb, err := m.GetOrCreateActiveSandbox(ctx)
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = sb.SandboxID()
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&created), "racing callers must share one creation")
	for _, id := range ids {
		assert.Equal(t, ids[0], id, "all callers must observe the same handle")
	}
	assert.Equal(t, ids[0], m.ActiveSandboxID())
}

func TestManager_ReusesHandleAcrossCalls(t *testing.T) {
	var created int32
	m := NewManager(countingFactory(&created), nil)
	ctx := context.Background()

	first, err := m.GetOrCreateActiveSandbox(ctx)
	require.NoError(t, err)
	second, err := m.GetOrCreateActiveSandbox(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.SandboxID(), second.SandboxID())
	assert.EqualValues(t, 1, atomic.LoadInt32(&created))
}

func TestManager_CreationFailureLeavesNothingBehind(t *testing.T) {
	attempts := 0
	m := NewManager(func(_ context.Context) (Sandbox, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("provisioning failed")
		}
		return &fakeSandbox{id: "sbx-recovered"}, nil
	}, nil)
	ctx := context.Background()

	_, err := m.GetOrCreateActiveSandbox(ctx)
	require.Error(t, err)
	assert.Empty(t, m.ActiveSandboxID())

	// The next call retries and succeeds.
	sb, err := m.GetOrCreateActiveSandbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sbx-recovered", sb.SandboxID())
}

func TestManager_ResetIsIdempotent(t *testing.T) {
	sb := &fakeSandbox{id: "sbx-1"}
	m := NewManager(func(_ context.Context) (Sandbox, error) { return sb, nil }, nil)
	ctx := context.Background()

	_, err := m.GetOrCreateActiveSandbox(ctx)
	require.NoError(t, err)

	m.ResetActiveSandbox(ctx)
	m.ResetActiveSandbox(ctx)
	m.ResetActiveSandbox(ctx)

	assert.EqualValues(t, 1, atomic.LoadInt32(&sb.killCalls), "teardown must run exactly once")
	assert.Empty(t, m.ActiveSandboxID())
}

func TestManager_ResetWithNoActiveSandboxIsNoOp(t *testing.T) {
	m := NewManager(func(_ context.Context) (Sandbox, error) { return &fakeSandbox{id: "sbx"}, nil }, nil)

	// Must not panic or create anything.
	m.ResetActiveSandbox(context.Background())
	assert.Empty(t, m.ActiveSandboxID())
}

func TestManager_ResetSwallowsTeardownFailure(t *testing.T) {
	sb := &fakeSandbox{id: "sbx-1", killErr: errors.New("already gone")}
	m := NewManager(func(_ context.Context) (Sandbox, error) { return sb, nil }, nil)
	ctx := context.Background()

	_, err := m.GetOrCreateActiveSandbox(ctx)
	require.NoError(t, err)

	m.ResetActiveSandbox(ctx)
	assert.Empty(t, m.ActiveSandboxID(), "reference cleared despite teardown failure")

	// A fresh sandbox can be created afterwards.
	_, err = m.GetOrCreateActiveSandbox(ctx)
	assert.NoError(t, err)
}

func TestManager_ResetThenCreateYieldsFreshSandbox(t *testing.T) {
	var created int32
	m := NewManager(countingFactory(&created), nil)
	ctx := context.Background()

	first, err := m.GetOrCreateActiveSandbox(ctx)
	require.NoError(t, err)
	m.ResetActiveSandbox(ctx)

	second, err := m.GetOrCreateActiveSandbox(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.SandboxID(), second.SandboxID())
	assert.EqualValues(t, 2, atomic.LoadInt32(&created))
}
