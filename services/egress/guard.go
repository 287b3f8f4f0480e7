// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// GuardClient is the policy-enforcement gate for a single outbound call.
//
// Description:
//
//	GuardAndExecute validates the provider allow-list, applies the resolved
//	egress mode, invokes the sanitizer, and decides whether the executor
//	receives the original or sanitized payload. The allow-list check runs
//	before anything else and is never downgraded by mode. No retries happen
//	at this layer; retries belong to the provider client.
//
// Thread Safety: Safe for concurrent use (per-call state lives in the
// GuardContext, which each call owns).
type GuardClient struct {
	allowed   map[string]bool
	sanitizer *Sanitizer
	auditor   *Auditor
	logger    *slog.Logger
}

// NewGuardClient creates a GuardClient.
//
// Inputs:
//   - allowedProviders: Provider keys permitted to receive egress traffic.
//     An empty set fails every call closed.
//   - sanitizer: The egress sanitizer. Must not be nil.
//   - auditor: Audit trail writer. Nil disables auditing.
//   - logger: Structured logger. Nil uses slog.Default().
//
// Outputs:
//   - *GuardClient: The configured gate.
func NewGuardClient(allowedProviders map[string]bool, sanitizer *Sanitizer, auditor *Auditor, logger *slog.Logger) *GuardClient {
	if sanitizer == nil {
		panic("NewGuardClient: sanitizer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedProviders))
	for k, v := range allowedProviders {
		allowed[k] = v
	}
	return &GuardClient{
		allowed:   allowed,
		sanitizer: sanitizer,
		auditor:   auditor,
		logger:    logger.With(slog.String("component", "egress_guard")),
	}
}

// ProviderAllowed reports whether a provider passes the allow-list.
func (g *GuardClient) ProviderAllowed(providerID string) bool {
	return g.allowed[providerID]
}

// GuardAndExecute gates one outbound call through the guard's aspect chain.
//
// Description:
//
//	Composes the allow-list aspect (outermost) and the sanitize aspect
//	around the executor:
//	  1. Provider absent from the allow-list → fail closed with
//	     ErrProviderNotAllowed, regardless of mode (including off).
//	  2. EffectiveMode off → executor receives the original context with no
//	     SanitizedRequest and no Metadata.
//	  3. Otherwise the full request payload is sanitized and attached along
//	     with redaction metadata.
//	  4. Enforce → gc.Request is replaced by gc.SanitizedRequest before the
//	     executor runs.
//	  5. Report-only → the executor receives the ORIGINAL request; the
//	     sanitized form and metadata exist only for audit. The original PII
//	     is genuinely sent in this mode, by design.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - g: The guard client.
//   - gc: The per-call guard context. Must not be nil.
//   - exec: The executor performing the outbound call. Must not be nil.
//
// Outputs:
//   - T: The executor's result.
//   - error: ErrProviderNotAllowed (wrapped), or the executor's error.
func GuardAndExecute[T any](ctx context.Context, g *GuardClient, gc *GuardContext, exec Next[*GuardContext, T]) (T, error) {
	var zero T
	if gc == nil {
		return zero, ErrNilContext
	}
	if exec == nil {
		return zero, ErrNilExecutor
	}

	ctx, span := otel.Tracer("kodiak.copilot").Start(ctx, "egress.GuardAndExecute",
		oteltrace.WithAttributes(
			attribute.String("target", gc.Target),
			attribute.String("provider", gc.ProviderID),
			attribute.String("tenant_id", gc.TenantID),
			attribute.String("effective_mode", string(gc.EffectiveMode)),
		),
	)
	defer span.End()

	requestID := uuid.New().String()
	start := time.Now()

	chain := Chain(exec, allowListAspect[T](g), sanitizeAspect[T](g))

	result, err := chain(ctx, gc)

	duration := time.Since(start)
	g.auditor.LogCall(ctx, requestID, gc, duration, err)

	if err != nil {
		RecordEgressBlockedOrFailed(gc.ProviderID, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, err
	}

	RecordEgressAllowed(gc.ProviderID, string(gc.EffectiveMode), duration.Seconds())
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// allowListAspect fails closed on providers outside the allow-list. Runs
// outermost so a policy violation is raised before any sanitization work.
func allowListAspect[T any](g *GuardClient) Aspect[*GuardContext, T] {
	return func(ctx context.Context, gc *GuardContext, next Next[*GuardContext, T]) (T, error) {
		if !g.allowed[gc.ProviderID] {
			var zero T
			return zero, fmt.Errorf("provider %q is not allowed for egress target %q: %w",
				gc.ProviderID, gc.Target, ErrProviderNotAllowed)
		}
		return next(ctx, gc)
	}
}

// sanitizeAspect applies the effective egress mode to the request payload.
func sanitizeAspect[T any](g *GuardClient) Aspect[*GuardContext, T] {
	return func(ctx context.Context, gc *GuardContext, next Next[*GuardContext, T]) (T, error) {
		if gc.EffectiveMode == ModeOff {
			// No sanitization computed, no metadata attached.
			return next(ctx, gc)
		}

		opts := SanitizeOptions{Context: gc.sanitizationContext()}
		sanitized := g.sanitizer.SanitizeObjectForEgress(ctx, gc.Request, opts)

		gc.SanitizedRequest = sanitized
		gc.Metadata = &GuardMetadata{
			RedactionApplied:    !deepEqualJSON(gc.Request, sanitized),
			RedactionReportOnly: gc.EffectiveMode == ModeReportOnly,
		}

		if gc.EffectiveMode == ModeEnforce {
			gc.Request = sanitized
		}
		return next(ctx, gc)
	}
}

// deepEqualJSON compares two payloads by their canonical JSON serialization.
// Sanitization rebuilds maps, so pointer identity cannot be used.
func deepEqualJSON(a, b any) bool {
	return marshalForCompare(a) == marshalForCompare(b)
}

func marshalForCompare(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("!unmarshalable:%v", err)
	}
	return string(raw)
}
