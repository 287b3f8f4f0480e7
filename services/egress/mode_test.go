// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import (
	"testing"

	"github.com/KodiakAI/KodiakCopilot/services/policy"
)

func strPtr(s string) *string          { return &s }
func boolPtr(b bool) *bool             { return &b }
func modePtr(m EgressMode) *EgressMode { return &m }

func TestResolveMode_PrecedenceChain(t *testing.T) {
	cases := []struct {
		name          string
		base          EgressMode
		pol           *policy.TenantLlmPolicy
		opts          ResolveOptions
		wantRequested EgressMode
		wantEffective EgressMode
	}{
		{
			name:          "base_only",
			base:          ModeEnforce,
			wantRequested: ModeEnforce,
			wantEffective: ModeEnforce,
		},
		{
			name: "tenant_overrides_base",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				EgressMode: strPtr("report-only"),
			},
			wantRequested: ModeReportOnly,
			wantEffective: ModeReportOnly,
		},
		{
			name: "user_overrides_tenant",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				EgressMode: strPtr("report-only"),
				UserPolicies: map[string]policy.UserPolicy{
					"alice": {EgressMode: strPtr("enforce")},
				},
			},
			opts:          ResolveOptions{UserID: "alice"},
			wantRequested: ModeEnforce,
			wantEffective: ModeEnforce,
		},
		{
			name: "override_wins_over_all",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				EgressMode: strPtr("report-only"),
				UserPolicies: map[string]policy.UserPolicy{
					"alice": {EgressMode: strPtr("enforce")},
				},
			},
			opts: ResolveOptions{
				UserID:       "alice",
				ModeOverride: modePtr(ModeReportOnly),
			},
			wantRequested: ModeReportOnly,
			wantEffective: ModeReportOnly,
		},
		{
			name: "tenant_off_rejected_without_grant",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				EgressMode:   strPtr("off"),
				AllowOffMode: false,
			},
			wantRequested: ModeOff,
			wantEffective: ModeEnforce,
		},
		{
			name: "tenant_off_accepted_with_grant",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				EgressMode:   strPtr("off"),
				AllowOffMode: true,
			},
			wantRequested: ModeOff,
			wantEffective: ModeOff,
		},
		{
			name: "user_off_uses_user_grant_over_tenant",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				AllowOffMode: false,
				UserPolicies: map[string]policy.UserPolicy{
					"alice": {
						EgressMode:   strPtr("off"),
						AllowOffMode: boolPtr(true),
					},
				},
			},
			opts:          ResolveOptions{UserID: "alice"},
			wantRequested: ModeOff,
			wantEffective: ModeOff,
		},
		{
			name: "user_off_falls_back_to_tenant_grant",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				AllowOffMode: false,
				UserPolicies: map[string]policy.UserPolicy{
					"alice": {EgressMode: strPtr("off")},
				},
			},
			opts:          ResolveOptions{UserID: "alice"},
			wantRequested: ModeOff,
			wantEffective: ModeEnforce,
		},
		{
			name: "user_grant_can_revoke_tenant_grant",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				AllowOffMode: true,
				UserPolicies: map[string]policy.UserPolicy{
					"alice": {AllowOffMode: boolPtr(false)},
				},
			},
			opts: ResolveOptions{
				UserID:       "alice",
				ModeOverride: modePtr(ModeOff),
			},
			wantRequested: ModeOff,
			wantEffective: ModeEnforce,
		},
		{
			name: "call_off_gated_by_tenant_grant",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				AllowOffMode: true,
			},
			opts:          ResolveOptions{ModeOverride: modePtr(ModeOff)},
			wantRequested: ModeOff,
			wantEffective: ModeOff,
		},
		{
			name:          "call_off_without_policy_is_rejected",
			base:          ModeEnforce,
			opts:          ResolveOptions{ModeOverride: modePtr(ModeOff)},
			wantRequested: ModeOff,
			wantEffective: ModeEnforce,
		},
		{
			name: "non_off_override_needs_no_grant",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				AllowOffMode: false,
			},
			opts:          ResolveOptions{ModeOverride: modePtr(ModeReportOnly)},
			wantRequested: ModeReportOnly,
			wantEffective: ModeReportOnly,
		},
		{
			name: "invalid_tenant_mode_ignored",
			base: ModeEnforce,
			pol: &policy.TenantLlmPolicy{
				EgressMode: strPtr("everything-goes"),
			},
			wantRequested: ModeEnforce,
			wantEffective: ModeEnforce,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveMode(tc.base, tc.pol, tc.opts)
			if got.Requested != tc.wantRequested {
				t.Errorf("Requested = %s, want %s", got.Requested, tc.wantRequested)
			}
			if got.Effective != tc.wantEffective {
				t.Errorf("Effective = %s, want %s", got.Effective, tc.wantEffective)
			}
		})
	}
}

func TestResolveMode_RejectedOffIsObservable(t *testing.T) {
	// Audit depends on seeing the rejected request: a tenant repeatedly
	// asking for off with no grant is a signal worth alerting on.
	got := ResolveMode(ModeEnforce, &policy.TenantLlmPolicy{
		EgressMode:   strPtr("off"),
		AllowOffMode: false,
	}, ResolveOptions{})

	if got.Requested != ModeOff {
		t.Errorf("Requested = %s, want off to remain visible", got.Requested)
	}
	if got.Effective != ModeEnforce {
		t.Errorf("Effective = %s, want enforce", got.Effective)
	}
}
