// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import "github.com/KodiakAI/KodiakCopilot/services/policy"

// ResolveOptions carries the per-user and per-call inputs to mode resolution.
type ResolveOptions struct {
	// UserID selects the per-user policy layer, if the tenant has one.
	UserID string

	// ModeOverride is the per-call override, the highest-precedence layer.
	ModeOverride *EgressMode
}

// ModeResolution is the observable outcome of mode resolution. Both values
// are surfaced for auditability: Requested is the last candidate attempted
// even when rejected, Effective is the last candidate actually accepted.
type ModeResolution struct {
	Requested EgressMode
	Effective EgressMode
}

// ResolveMode computes the effective egress mode from the layered precedence
// chain: base default → tenant policy → per-user policy → per-call override.
//
// Description:
//
//	Later layers win. At every layer a candidate of ModeOff is recorded as
//	requested but NOT applied unless the nearest applicable allow-off grant
//	is true: the tenant's AllowOffMode for the tenant layer, the user's
//	AllowOffMode override (falling back to the tenant's) for the user and
//	per-call layers. Opting out of sanitization always requires an explicit
//	grant — an ungated off request is a PII exfiltration path.
//
//	Pure function, no I/O; independently testable without a router.
//
// Inputs:
//   - base: The platform-wide default mode (operator-configured, trusted).
//   - pol: The tenant policy. Nil means no tenant or user layers apply.
//   - opts: Per-user selection and per-call override.
//
// Outputs:
//   - ModeResolution: Requested and effective modes.
func ResolveMode(base EgressMode, pol *policy.TenantLlmPolicy, opts ResolveOptions) ModeResolution {
	res := ModeResolution{Requested: base, Effective: base}

	apply := func(candidate EgressMode, allowOff bool) {
		res.Requested = candidate
		if candidate == ModeOff && !allowOff {
			return
		}
		res.Effective = candidate
	}

	if pol == nil {
		if opts.ModeOverride != nil {
			apply(EgressMode(*opts.ModeOverride), false)
		}
		return res
	}

	// Tenant layer: gated by the tenant's own grant.
	if pol.EgressMode != nil {
		if m, err := ParseEgressMode(*pol.EgressMode); err == nil {
			apply(m, pol.AllowOffMode)
		}
	}

	// User layer: the user's grant overrides the tenant's when set.
	userPolicy, hasUser := pol.UserPolicies[opts.UserID]
	nearestAllowOff := pol.AllowOffMode
	if hasUser && userPolicy.AllowOffMode != nil {
		nearestAllowOff = *userPolicy.AllowOffMode
	}
	if hasUser && userPolicy.EgressMode != nil {
		if m, err := ParseEgressMode(*userPolicy.EgressMode); err == nil {
			apply(m, nearestAllowOff)
		}
	}

	// Per-call layer: gated by the nearest applicable grant (user, else tenant).
	if opts.ModeOverride != nil {
		apply(*opts.ModeOverride, nearestAllowOff)
	}

	return res
}
