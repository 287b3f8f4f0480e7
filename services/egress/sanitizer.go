// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import (
	"context"
	"log/slog"
	"strings"
)

// SanitizeOptions selects the detector subset and layers for one sanitize call.
type SanitizeOptions struct {
	// Context selects which detector tiers apply. Empty means ContextChat.
	Context SanitizationContext

	// UseModelDetection enables the optional model-assisted layer after the
	// pattern pass. Ignored when no ModelDetector is configured.
	UseModelDetection bool

	// ExcludePatterns names detector labels to skip regardless of context.
	// Accepts either bare ("EMAIL") or bracketed ("[EMAIL]") forms.
	ExcludePatterns []string
}

// resolvedContext returns the effective context for the call.
func (o SanitizeOptions) resolvedContext() SanitizationContext {
	if o.Context == "" {
		return ContextChat
	}
	return o.Context
}

// Sanitizer composes the pattern detectors, context policy, and optional
// model-assisted detector into one entry point operating on strings and
// arbitrarily nested objects.
//
// Construct once at startup and share; the model detector and logger are
// injected explicitly rather than resolved lazily.
//
// Thread Safety: Safe for concurrent use (detectors are immutable; the model
// detector must be concurrent-safe).
type Sanitizer struct {
	logger   *slog.Logger
	detector ModelDetector
}

// NewSanitizer creates a Sanitizer.
//
// Inputs:
//   - logger: Structured logger for degraded-layer warnings. Nil uses
//     slog.Default().
//   - detector: Optional model-assisted detector. Nil disables the layer.
//
// Outputs:
//   - *Sanitizer: The configured sanitizer.
func NewSanitizer(logger *slog.Logger, detector ModelDetector) *Sanitizer {
	if logger == nil {
		logger = slog.Default()
	}
	if detector == nil {
		detector = NoOpDetector{}
	}
	return &Sanitizer{
		logger:   logger.With(slog.String("component", "egress_sanitizer")),
		detector: detector,
	}
}

// SanitizeText redacts sensitive substrings from text under the given options.
//
// Description:
//
//	Applies the context's detector subset in fixed inventory order, then the
//	model-assisted layer when enabled. ContextOff and empty input are
//	passthrough. A single failing detector is skipped and the remaining
//	detectors continue — the guard as a whole never fails open because one
//	pattern misbehaved.
//
// Inputs:
//   - ctx: Context for cancellation (model-assisted layer only).
//   - text: The text to sanitize. Empty returns empty.
//   - opts: Context selection, exclusions, and layer toggles.
//
// Outputs:
//   - string: The sanitized text.
func (s *Sanitizer) SanitizeText(ctx context.Context, text string, opts SanitizeOptions) string {
	out, _ := s.SanitizeTextWithAudit(ctx, text, opts)
	return out
}

// SanitizeTextWithAudit is SanitizeText plus a redaction audit record.
//
// Outputs:
//   - string: The sanitized text (identical to SanitizeText output).
//   - SanitizationResult: Which labels fired and the before/after lengths.
func (s *Sanitizer) SanitizeTextWithAudit(ctx context.Context, text string, opts SanitizeOptions) (string, SanitizationResult) {
	result := SanitizationResult{
		Text:            text,
		OriginalLength:  len(text),
		SanitizedLength: len(text),
	}
	if text == "" || opts.resolvedContext() == ContextOff {
		return text, result
	}

	excluded := excludeSet(opts.ExcludePatterns)
	out := text
	for _, d := range DetectorsFor(opts.resolvedContext()) {
		if excluded[d.name()] {
			continue
		}
		next, fired := s.applyDetector(d, out)
		if fired {
			out = next
			result.RedactionTypes = append(result.RedactionTypes, d.Label)
		}
	}

	if opts.UseModelDetection {
		out = s.applyModelLayer(ctx, out, excluded, &result)
	}

	result.Text = out
	result.Redacted = len(result.RedactionTypes) > 0
	result.SanitizedLength = len(out)

	if result.Redacted {
		for _, label := range result.RedactionTypes {
			RecordRedaction(label)
		}
	}
	return out, result
}

// applyDetector runs one detector with panic isolation. A matcher that
// panics is skipped; sanitization continues with the remaining detectors.
func (s *Sanitizer) applyDetector(d Detector, text string) (out string, fired bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("detector panicked, skipping",
				slog.String("label", d.Label),
				slog.Any("panic", r))
			out, fired = text, false
		}
	}()
	return d.apply(text)
}

// applyModelLayer runs the model-assisted detector and redacts its findings.
// Classifier failure degrades to pattern-only output with a warning.
func (s *Sanitizer) applyModelLayer(ctx context.Context, text string, excluded map[string]bool, result *SanitizationResult) string {
	findings, err := s.detector.DetectPII(ctx, text)
	if err != nil {
		s.logger.Warn("model-assisted detection failed, using pattern-only result",
			slog.String("error", err.Error()))
		return text
	}
	for _, f := range findings {
		if f.Value == "" {
			continue
		}
		label := f.Label
		if label == "" {
			label = "[PII]"
		}
		if excluded[strings.Trim(label, "[]")] {
			continue
		}
		if strings.Contains(text, f.Value) {
			text = strings.ReplaceAll(text, f.Value, label)
			result.RedactionTypes = append(result.RedactionTypes, label)
		}
	}
	return text
}

// SanitizeObjectForEgress recurses through nested maps and slices, applying
// SanitizeText to every string leaf.
//
// Description:
//
//	Non-string primitives (numbers, booleans, nil) are returned exactly as
//	given — numeric values such as counts, rates, and years must never be
//	corrupted by redaction. Maps and slices are rebuilt, never mutated in
//	place, so the caller's original object survives for report-only audits.
//
// Inputs:
//   - ctx: Context for cancellation (model-assisted layer only).
//   - v: The value to sanitize. Nil returns nil.
//   - opts: Sanitize options applied to every string leaf.
//
// Outputs:
//   - any: The sanitized value, structurally identical to the input.
func (s *Sanitizer) SanitizeObjectForEgress(ctx context.Context, v any, opts SanitizeOptions) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return s.SanitizeText(ctx, val, opts)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = s.SanitizeObjectForEgress(ctx, item, opts)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = s.SanitizeObjectForEgress(ctx, item, opts)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, item := range val {
			out[i] = s.SanitizeText(ctx, item, opts)
		}
		return out
	default:
		// Non-string primitives and unknown types pass through unchanged.
		return v
	}
}

// excludeSet normalizes ExcludePatterns entries to bare label names.
func excludeSet(patterns []string) map[string]bool {
	if len(patterns) == 0 {
		return nil
	}
	out := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		name := strings.Trim(strings.TrimSpace(p), "[]")
		if name != "" {
			out[name] = true
		}
	}
	return out
}
