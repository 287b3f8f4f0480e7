// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sandbox runs model-requested code in an isolated environment and
// funnels everything it emits — stdout, stderr, results, error messages —
// through the egress sanitizer before it re-enters the conversation. Sandbox
// output is untrusted content; this is a second enforcement point,
// independent of the LLM router path.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use unless documented otherwise.
package sandbox

import "context"

// ExecutionLogs separates the sandbox's stdout and stderr line streams.
type ExecutionLogs struct {
	Stdout []string
	Stderr []string
}

// Execution is the raw outcome of one sandbox code run.
type Execution struct {
	Logs     ExecutionLogs
	Results  []string
	ExitCode int

	// Error is the sandbox-reported failure message, empty on success.
	Error string
}

// RunOpts configures one RunCode call.
type RunOpts struct {
	// Language is the interpreter to use ("python" or "javascript").
	Language string
}

// Sandbox is the isolated execution environment collaborator. The concrete
// implementation (remote microVM service, container pool) lives outside this
// core; tests supply fakes.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Sandbox interface {
	// SandboxID returns the stable identifier of this sandbox instance.
	SandboxID() string

	// RunCode executes code and returns its captured output. Execution
	// failures are reported in the Execution record, not as errors; the
	// error return is for transport-level failures only.
	RunCode(ctx context.Context, code string, opts RunOpts) (*Execution, error)

	// Kill tears the sandbox down. Idempotent at the interface level.
	Kill(ctx context.Context) error
}

// Factory creates new sandbox instances. Injected into the Manager at
// construction time.
type Factory func(ctx context.Context) (Sandbox, error)
