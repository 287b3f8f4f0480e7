// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package egress provides the outbound-data trust boundary for the copilot:
// pattern- and model-based PII detection, context-sensitive redaction, a
// composable aspect chain, and the policy-enforcement gate that decides
// whether an outbound call receives the original or sanitized payload.
//
// Thread Safety:
//
//	All exported types are safe for concurrent use unless documented otherwise.
package egress

import (
	"errors"
	"fmt"
)

// SanitizationContext names a detector subset. Each context trades
// false-positive avoidance against redaction completeness.
type SanitizationContext string

const (
	// ContextOff disables sanitization entirely (passthrough).
	ContextOff SanitizationContext = "off"

	// ContextCalculation applies only high-confidence detectors. It
	// deliberately excludes phone/IP/IBAN-shaped patterns that collide with
	// version numbers, reference codes, and financial figures.
	ContextCalculation SanitizationContext = "calculation"

	// ContextChat adds medium-confidence detectors (phones, national IDs,
	// octet-valid IP addresses, strictly-validated IBANs).
	ContextChat SanitizationContext = "chat"

	// ContextStrict is a superset of chat, including loosely-validated
	// patterns that chat would reject as too permissive.
	ContextStrict SanitizationContext = "strict"
)

// ParseSanitizationContext converts a string to a SanitizationContext.
//
// Outputs:
//   - SanitizationContext: The parsed context.
//   - error: Non-nil if the string names no known context.
func ParseSanitizationContext(s string) (SanitizationContext, error) {
	switch SanitizationContext(s) {
	case ContextOff, ContextCalculation, ContextChat, ContextStrict:
		return SanitizationContext(s), nil
	default:
		return "", fmt.Errorf("egress: unknown sanitization context %q", s)
	}
}

// EgressMode controls what the executor of an outbound call receives.
type EgressMode string

const (
	// ModeOff sends the original payload with no sanitization computed.
	ModeOff EgressMode = "off"

	// ModeReportOnly computes the sanitized form for audit metadata but
	// still sends the ORIGINAL payload to the provider. This is a deliberate
	// canary mode used to measure redaction impact before enforcing.
	ModeReportOnly EgressMode = "report-only"

	// ModeEnforce replaces the payload with its sanitized form before the
	// executor runs.
	ModeEnforce EgressMode = "enforce"
)

// ParseEgressMode converts a string to an EgressMode.
func ParseEgressMode(s string) (EgressMode, error) {
	switch EgressMode(s) {
	case ModeOff, ModeReportOnly, ModeEnforce:
		return EgressMode(s), nil
	default:
		return "", fmt.Errorf("egress: unknown egress mode %q", s)
	}
}

// SanitizationResult is the audit record produced alongside sanitized text.
//
// Invariant: Redacted == (len(RedactionTypes) > 0). SanitizedLength reflects
// the text after all substitutions.
//
// Thread Safety: SanitizationResult is a value type. Safe to copy.
type SanitizationResult struct {
	// Text is the sanitized output.
	Text string

	// Redacted is true if any detector fired.
	Redacted bool

	// RedactionTypes lists the replacement labels applied, in detector order.
	RedactionTypes []string

	// OriginalLength is len of the input text.
	OriginalLength int

	// SanitizedLength is len of the output text.
	SanitizedLength int
}

// GuardMetadata records what the guard did to a request, for audit surfaces.
type GuardMetadata struct {
	// RedactionApplied is true if sanitization found anything to redact.
	RedactionApplied bool

	// RedactionReportOnly is true when the sanitized form was computed but
	// the original payload was still sent (report-only mode).
	RedactionReportOnly bool
}

// GuardContext carries one outbound call through the guard and its aspect
// chain. Created per call by the guard's caller and discarded after the call
// completes; never persisted.
//
// Field population by pipeline stage:
//   - Before the guard runs: Target, ProviderID, EndpointID, Request,
//     TenantID, UserID, Task, Mode, EffectiveMode, Sanitization.
//   - After sanitization (modes other than off): SanitizedRequest, Metadata.
//   - In enforce mode the guard additionally replaces Request with
//     SanitizedRequest before invoking the executor.
//
// Thread Safety: NOT safe for concurrent use. Each call owns its context.
type GuardContext struct {
	// Target identifies the egress surface ("llm", "sandbox", ...).
	Target string

	// ProviderID is the outbound provider key, checked against the allow-list.
	ProviderID string

	// EndpointID names the specific operation, for audit purposes.
	EndpointID string

	// Request is the unsanitized payload. In enforce mode the guard replaces
	// it with SanitizedRequest before the executor sees it.
	Request any

	// SanitizedRequest is populated for report-only and enforce modes.
	SanitizedRequest any

	// TenantID and UserID identify the caller for audit records.
	TenantID string
	UserID   string

	// Task is the routed task name, if any.
	Task string

	// Mode is the requested egress mode (pre-gating).
	Mode EgressMode

	// EffectiveMode is the mode actually applied after precedence gating.
	EffectiveMode EgressMode

	// Sanitization selects the detector subset. Empty means ContextChat.
	Sanitization SanitizationContext

	// Metadata is populated by the guard for modes other than off.
	Metadata *GuardMetadata
}

// sanitizationContext returns the effective sanitization context for the call.
func (gc *GuardContext) sanitizationContext() SanitizationContext {
	if gc.Sanitization == "" {
		return ContextChat
	}
	return gc.Sanitization
}

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrProviderNotAllowed is returned when a provider is absent from the
	// egress allow-list. This check runs before any sanitization or
	// execution, regardless of mode.
	ErrProviderNotAllowed = errors.New("egress: provider not allowed")

	// ErrNilExecutor is returned when GuardAndExecute is given a nil executor.
	ErrNilExecutor = errors.New("egress: executor must not be nil")

	// ErrNilContext is returned when GuardAndExecute is given a nil guard context.
	ErrNilContext = errors.New("egress: guard context must not be nil")
)
