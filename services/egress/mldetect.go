// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import "context"

// Finding is a single piece of free-text PII reported by a ModelDetector.
//
// Thread Safety: Finding is a value type. Safe to copy.
type Finding struct {
	// Value is the exact substring to redact.
	Value string

	// Label is the bracketed replacement (e.g. "[NAME]"). Empty defaults
	// to "[PII]".
	Label string
}

// ModelDetector is the optional second detection layer: a coarser classifier
// that catches free-text PII (names, addresses) the pattern layer misses.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ModelDetector interface {
	// DetectPII returns substrings of text that should be redacted.
	//
	// Inputs:
	//   - ctx: Context for cancellation.
	//   - text: The text to scan. Never empty.
	//
	// Outputs:
	//   - []Finding: Substrings to redact. May be empty.
	//   - error: Non-nil on classifier failure. The sanitizer degrades to
	//     pattern-only detection and logs a warning; it never aborts.
	DetectPII(ctx context.Context, text string) ([]Finding, error)
}

// NoOpDetector is a ModelDetector that never reports findings. Used when no
// model-assisted layer is configured.
type NoOpDetector struct{}

// DetectPII always returns no findings.
func (NoOpDetector) DetectPII(context.Context, string) ([]Finding, error) {
	return nil, nil
}
