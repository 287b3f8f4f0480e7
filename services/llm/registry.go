// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "sync"

// LocalProvider is the provider key that never leaves the environment.
// Tenants with AllowRemoteEgress=false are forced onto it.
const LocalProvider = "local"

// Registry holds named provider clients, constructed once at startup and
// passed by reference — no lazy per-call resolution.
//
// Thread Safety: Safe for concurrent use via sync.RWMutex. Registration is
// expected at startup; reads dominate afterwards.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]ChatClient
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]ChatClient)}
}

// Register associates a provider key with a client. Re-registering a key
// replaces the previous client.
func (r *Registry) Register(provider string, client ChatClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[provider] = client
}

// Client returns the client for a provider key.
//
// Outputs:
//   - ChatClient: The registered client, or nil when absent.
//   - bool: Whether the provider is registered.
func (r *Registry) Client(provider string) (ChatClient, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[provider]
	return c, ok
}

// Providers returns all registered provider keys.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.clients))
	for k := range r.clients {
		out = append(out, k)
	}
	return out
}
