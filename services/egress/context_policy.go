// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

// activeTiers maps a sanitization context to the tiers that fire in it.
//
//	off         → none (passthrough, handled before detector selection)
//	calculation → high only
//	chat        → high + medium
//	strict      → high + medium + loose
func activeTiers(ctx SanitizationContext) map[ConfidenceTier]bool {
	switch ctx {
	case ContextCalculation:
		return map[ConfidenceTier]bool{TierHigh: true}
	case ContextChat:
		return map[ConfidenceTier]bool{TierHigh: true, TierMedium: true}
	case ContextStrict:
		return map[ConfidenceTier]bool{TierHigh: true, TierMedium: true, TierLoose: true}
	default:
		return nil
	}
}

// DetectorsFor returns the ordered detector subset assigned to a context.
//
// Description:
//
//	The subset preserves inventory order so overlapping matches resolve
//	deterministically. ContextOff (and unknown contexts) return nil.
//
// Inputs:
//   - ctx: The sanitization context.
//
// Outputs:
//   - []Detector: Detectors that fire under ctx, in application order.
func DetectorsFor(ctx SanitizationContext) []Detector {
	tiers := activeTiers(ctx)
	if tiers == nil {
		return nil
	}
	var out []Detector
	for _, d := range detectors {
		if tiers[d.Tier] {
			out = append(out, d)
		}
	}
	return out
}
