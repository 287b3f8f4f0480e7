// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
)

// ExecuteFunc runs a tool against its raw JSON arguments and returns a
// JSON-serializable result. Implementations never panic the turn: execution
// failures are reported inside the result value.
type ExecuteFunc func(ctx context.Context, argsJSON string) (any, error)

// Tool pairs a model-facing definition with its executor.
type Tool struct {
	Name        string
	Description string
	Schema      map[string]any
	Execute     ExecuteFunc
}

// ToolRegistry holds the tools exposed to the model for the currently active
// sandbox. Entries close over a sandbox handle, so the registry is rebuilt
// whenever the handle changes.
//
// Thread Safety: all methods are safe for concurrent use.
type ToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

// NewToolRegistry constructs an empty registry.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds or replaces a tool by name.
func (r *ToolRegistry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Tools returns the registered tools in registration order.
func (r *ToolRegistry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// BindSandbox replaces the registry contents with the standard sandbox tools
// bound to the given handle. Called after GetOrCreateActiveSandbox returns a
// new handle, and again after any reset.
func (r *ToolRegistry) BindSandbox(sb Sandbox, sanitizer *egress.Sanitizer, opts ExecOpts) {
	r.mu.Lock()
	r.tools = make(map[string]Tool)
	r.order = nil
	r.mu.Unlock()

	logger := r.logger
	r.Register(Tool{
		Name:        "run_code",
		Description: "Execute Python or JavaScript code in an isolated sandbox and return its output.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"language":    map[string]any{"type": "string", "enum": []string{"python", "javascript"}},
				"code":        map[string]any{"type": "string"},
				"description": map[string]any{"type": "string"},
				"timeout":     map[string]any{"type": "integer", "maximum": MaxCodeTimeoutMS},
			},
			"required": []string{"language", "code"},
		},
		Execute: func(ctx context.Context, argsJSON string) (any, error) {
			var input CodeInput
			if err := json.Unmarshal([]byte(argsJSON), &input); err != nil {
				return nil, fmt.Errorf("run_code: invalid arguments: %w", err)
			}
			return ExecuteCode(ctx, input, sb, sanitizer, logger, opts), nil
		},
	})
	r.Register(Tool{
		Name:        "run_analysis",
		Description: "Run a statistical analysis (summary_stats, correlation, or custom code) over supplied parameters.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"analysisType": map[string]any{"type": "string", "enum": []string{"summary_stats", "correlation", "custom"}},
				"code":         map[string]any{"type": "string"},
				"parameters":   map[string]any{"description": "Analysis operands: a number array for summary_stats, an array of [x, y] pairs for correlation."},
				"outputFormat": map[string]any{"type": "string", "enum": []string{"json", "text"}},
			},
			"required": []string{"analysisType"},
		},
		Execute: func(ctx context.Context, argsJSON string) (any, error) {
			var input AnalysisInput
			if err := json.Unmarshal([]byte(argsJSON), &input); err != nil {
				return nil, fmt.Errorf("run_analysis: invalid arguments: %w", err)
			}
			return ExecuteAnalysis(ctx, input, sb, sanitizer, logger, opts), nil
		},
	})
}
