// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultSessionTimeout bounds a whole sandbox session, not one call.
// Per-call timeouts come from the tool input.
const DefaultSessionTimeout = 30 * time.Minute

// Manager owns the singleton sandbox handle for one active session.
//
// Description:
//
//	The sandbox is created lazily on first use and shared by every tool
//	call in the session. Concurrent creation requests are collapsed through
//	singleflight so racing callers converge on one live instance — no
//	sandbox leak even when creation is requested simultaneously.
//
// Thread Safety: Safe for concurrent use.
type Manager struct {
	factory Factory
	logger  *slog.Logger

	mu     sync.Mutex
	active Sandbox

	group singleflight.Group
}

// NewManager creates a Manager.
//
// Inputs:
//   - factory: Creates sandbox instances. Must not be nil.
//   - logger: Structured logger. Nil uses slog.Default().
func NewManager(factory Factory, logger *slog.Logger) *Manager {
	if factory == nil {
		panic("NewManager: factory must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory: factory,
		logger:  logger.With(slog.String("component", "sandbox_manager")),
	}
}

// GetOrCreateActiveSandbox returns the session's sandbox, creating it on
// first use.
//
// Description:
//
//	All concurrent callers observe the same handle. The singleflight group
//	guarantees at most one factory call is in flight; a handle stored by a
//	racing winner is reused rather than leaked.
//
// Outputs:
//   - Sandbox: The live sandbox handle.
//   - error: Non-nil if creation failed. A failed creation leaves no
//     half-initialized handle behind; the next call retries.
func (m *Manager) GetOrCreateActiveSandbox(ctx context.Context) (Sandbox, error) {
	m.mu.Lock()
	if m.active != nil {
		sb := m.active
		m.mu.Unlock()
		return sb, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do("active", func() (any, error) {
		// Re-check under the lock: another flight may have stored a handle
		// between our unlocked check and this flight starting.
		m.mu.Lock()
		if m.active != nil {
			sb := m.active
			m.mu.Unlock()
			return sb, nil
		}
		m.mu.Unlock()

		sb, err := m.factory(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.active = sb
		m.mu.Unlock()

		m.logger.Info("sandbox created", slog.String("sandbox_id", sb.SandboxID()))
		return sb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Sandbox), nil
}

// ResetActiveSandbox tears down the active sandbox and clears the handle.
//
// Description:
//
//	Safe to call multiple times: with no active sandbox it is a no-op, and
//	consecutive calls invoke the underlying teardown only once. Teardown
//	failure is logged but never returned — the in-memory reference is
//	cleared regardless, so the session can recover with a fresh sandbox.
func (m *Manager) ResetActiveSandbox(ctx context.Context) {
	m.mu.Lock()
	sb := m.active
	m.active = nil
	m.mu.Unlock()

	if sb == nil {
		return
	}

	if err := sb.Kill(ctx); err != nil {
		m.logger.Warn("sandbox teardown failed, reference cleared anyway",
			slog.String("sandbox_id", sb.SandboxID()),
			slog.String("error", err.Error()))
		return
	}
	m.logger.Info("sandbox reset", slog.String("sandbox_id", sb.SandboxID()))
}

// ActiveSandboxID returns the current handle's ID, or empty when none is live.
func (m *Manager) ActiveSandboxID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.SandboxID()
}
