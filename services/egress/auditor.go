// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Auditor produces structured audit log entries for egress events.
//
// Description:
//
//	Logs guard decisions using slog structured logging. Each entry carries
//	the request ID, provider, tenant/user, requested vs effective mode, and
//	(optionally) a SHA256 content hash so compliance can verify what was
//	sent without storing the content itself.
//
// Thread Safety: Safe for concurrent use (slog.Logger is concurrent-safe).
type Auditor struct {
	logger      *slog.Logger
	enabled     bool
	hashContent bool
}

// NewAuditor creates an Auditor.
//
// Inputs:
//   - logger: The structured logger for audit output. Nil uses slog.Default().
//   - enabled: Whether audit logging is active.
//   - hashContent: Whether to include SHA256 content hashes in log entries.
//
// Outputs:
//   - *Auditor: The configured auditor.
func NewAuditor(logger *slog.Logger, enabled, hashContent bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:      logger.With(slog.String("component", "egress_audit")),
		enabled:     enabled,
		hashContent: hashContent,
	}
}

// LogCall logs one completed (or blocked) guard execution. Nil-safe: a nil
// auditor is a disabled auditor.
//
// Inputs:
//   - ctx: Context containing trace information.
//   - requestID: Unique identifier for this egress attempt.
//   - gc: The guard context after execution.
//   - duration: End-to-end call duration including guard checks.
//   - callErr: The guard or executor error (nil on success).
func (a *Auditor) LogCall(ctx context.Context, requestID string, gc *GuardContext, duration time.Duration, callErr error) {
	if a == nil || !a.enabled || gc == nil {
		return
	}

	logger := a.loggerWithTrace(ctx)

	attrs := []any{
		slog.String("event", "egress_call"),
		slog.String("request_id", requestID),
		slog.String("target", gc.Target),
		slog.String("provider", gc.ProviderID),
		slog.String("endpoint", gc.EndpointID),
		slog.String("tenant_id", gc.TenantID),
		slog.String("user_id", gc.UserID),
		slog.String("requested_mode", string(gc.Mode)),
		slog.String("effective_mode", string(gc.EffectiveMode)),
		slog.Int64("duration_ms", duration.Milliseconds()),
		slog.Int64("timestamp", time.Now().UnixMilli()),
	}

	if gc.Metadata != nil {
		attrs = append(attrs,
			slog.Bool("redaction_applied", gc.Metadata.RedactionApplied),
			slog.Bool("redaction_report_only", gc.Metadata.RedactionReportOnly),
		)
	}

	if a.hashContent {
		if hash := HashContent(marshalForCompare(gc.Request)); hash != "" {
			attrs = append(attrs, slog.String("content_hash", hash))
		}
	}

	if callErr != nil {
		attrs = append(attrs, slog.String("error", callErr.Error()))
		logger.Warn("egress call failed", attrs...)
		return
	}
	logger.Info("egress call", attrs...)
}

// loggerWithTrace returns a logger enriched with trace context.
func (a *Auditor) loggerWithTrace(ctx context.Context) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return a.logger
	}
	return a.logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// HashContent computes the SHA256 hex digest of content for audit purposes.
// Returns empty string for empty input.
func HashContent(content string) string {
	if content == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", sum)
}
