// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import (
	"regexp"
	"strings"
)

// ConfidenceTier groups detectors by how unlikely they are to fire on
// benign text. High-tier detectors are safe everywhere; loose-tier detectors
// are only acceptable under ContextStrict.
type ConfidenceTier int

const (
	// TierHigh detectors have near-zero false positives on numeric or
	// reference-code text (emails, SSNs, card numbers, API keys, JWTs).
	TierHigh ConfidenceTier = iota

	// TierMedium detectors can collide with structured non-PII text and are
	// excluded from ContextCalculation (phones, national IDs, valid IPs,
	// strict IBANs).
	TierMedium

	// TierLoose detectors are intentionally permissive shape matchers that
	// catch malformed ID-like strings. ContextStrict only.
	TierLoose
)

// Detector pairs a compiled matcher with a replacement label and tier.
//
// Go's regexp package retains no cursor state between Find/Replace calls, so
// a package-level compiled pattern is reentrant: separate applications never
// observe each other.
//
// Thread Safety: Detector is immutable after construction.
type Detector struct {
	// Label is the bracketed replacement written into sanitized text and the
	// name recorded in RedactionTypes (e.g. "[EMAIL]").
	Label string

	// Tier determines which contexts the detector fires in.
	Tier ConfidenceTier

	pattern     *regexp.Regexp
	replacement string
}

// apply replaces all matches in text, returning the result and whether
// anything matched. A panicking matcher is recovered by the caller.
func (d Detector) apply(text string) (string, bool) {
	if !d.pattern.MatchString(text) {
		return text, false
	}
	return d.pattern.ReplaceAllString(text, d.replacement), true
}

// name returns the label without brackets, for ExcludePatterns matching.
func (d Detector) name() string {
	return strings.Trim(d.Label, "[]")
}

// detectors is the ordered detector inventory. Order matters: overlapping
// matches resolve to the earlier detector (DB URLs before the email pattern,
// which would otherwise eat the user:password@host fragment; more specific
// secret shapes before the generic key=value pattern).
//
// Thread Safety: initialized once, read-only afterwards.
var detectors = []Detector{
	// --- High confidence -----------------------------------------------------
	{
		// Database connection strings with embedded credentials. Runs first:
		// the email pattern matches the password@host segment and the generic
		// secret-assignment pattern matches password=, and either would mangle
		// the URL before this detector could replace it whole.
		Label: "[DB_URL]", Tier: TierHigh,
		pattern:     regexp.MustCompile(`\b(?:postgres|postgresql|mysql|mongodb|redis|amqp)://[^\s/]+:[^\s@]+@\S+`),
		replacement: "[DB_URL]",
	},
	{
		Label: "[EMAIL]", Tier: TierHigh,
		pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		replacement: "[EMAIL]",
	},
	{
		Label: "[SSN]", Tier: TierHigh,
		pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: "[SSN]",
	},
	{
		Label: "[CARD]", Tier: TierHigh,
		pattern:     regexp.MustCompile(`\b(?:\d{4}[ -]){3}\d{4}\b|\b\d{15,16}\b`),
		replacement: "[CARD]",
	},
	{
		Label: "[AWS_KEY]", Tier: TierHigh,
		pattern:     regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`),
		replacement: "[AWS_KEY]",
	},
	{
		// Vendor API keys. Anthropic-style must precede the bare sk- form so
		// "sk-ant-..." is not half-matched; all alternatives share one label.
		Label: "[API_KEY]", Tier: TierHigh,
		pattern:     regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_-]{20,}|\bsk-[A-Za-z0-9]{20,}|\bAIza[A-Za-z0-9_-]{30,}|\bgsk_[A-Za-z0-9]{20,}`),
		replacement: "[API_KEY]",
	},
	{
		Label: "[JWT]", Tier: TierHigh,
		pattern:     regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]{8,}`),
		replacement: "[JWT]",
	},
	{
		// password=..., secret: ..., api_key = ... assignments. Runs last of
		// the high tier so more specific secret shapes win.
		Label: "[SECRET]", Tier: TierHigh,
		pattern:     regexp.MustCompile(`(?i)\b(password|passwd|secret|api[_-]?key|access[_-]?token|auth[_-]?token)(\s*[:=]\s*)[^\s"']{4,}`),
		replacement: "${1}${2}[SECRET]",
	},

	// --- Medium confidence ---------------------------------------------------
	{
		Label: "[PHONE]", Tier: TierMedium,
		pattern:     regexp.MustCompile(`(?:\+\d{1,3}[ .-]?)?\(?\d{2,4}\)?[ .-]\d{3}[ .-]\d{3,4}\b|\b\+\d{9,14}\b`),
		replacement: "[PHONE]",
	},
	{
		// PPSN-style national identifiers: seven digits plus check letters.
		Label: "[NATIONAL_ID]", Tier: TierMedium,
		pattern:     regexp.MustCompile(`\b\d{7}[A-Z]{1,2}\b`),
		replacement: "[NATIONAL_ID]",
	},
	{
		// Dotted quads with octets validated to 0-255. Version strings like
		// 1.2.3.4 do match this shape, which is exactly why the detector is
		// medium tier and excluded from ContextCalculation.
		Label: "[IP]", Tier: TierMedium,
		pattern:     regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
		replacement: "[IP]",
	},
	{
		// IBAN with strict character classes: country code, check digits,
		// then 11-30 BBAN characters with no spaces.
		Label: "[IBAN]", Tier: TierMedium,
		pattern:     regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{11,30}\b`),
		replacement: "[IBAN]",
	},

	// --- Loose (strict context only) -----------------------------------------
	{
		// Space-grouped or short IBAN shapes the strict pattern rejects.
		Label: "[IBAN]", Tier: TierLoose,
		pattern:     regexp.MustCompile(`\b[A-Z]{2}\d{2}(?:[ ]?[A-Z0-9]{2,4}){2,8}\b`),
		replacement: "[IBAN]",
	},
	{
		// Any dotted quad, valid octets or not (e.g. 999.1.2.3).
		Label: "[IP]", Tier: TierLoose,
		pattern:     regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}\b`),
		replacement: "[IP]",
	},
	{
		// ID-shaped strings: uppercase prefix, dash, digit run, optional
		// suffix. Catches malformed identifiers (REF-12345AB) that might
		// still be sensitive reference numbers.
		Label: "[ID]", Tier: TierLoose,
		pattern:     regexp.MustCompile(`\b[A-Z]{2,6}-\d{4,}[A-Z0-9]*\b`),
		replacement: "[ID]",
	},
}

// Detectors returns the full ordered detector inventory.
//
// Outputs:
//   - []Detector: A copy of the inventory slice (detectors themselves are
//     immutable, so sharing them is safe).
func Detectors() []Detector {
	out := make([]Detector, len(detectors))
	copy(out, detectors)
	return out
}
