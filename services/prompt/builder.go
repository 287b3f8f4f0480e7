// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
)

// Request carries the material the aspects draw on while assembling a
// system prompt.
type Request struct {
	BasePrompt        string
	Jurisdiction      string
	ResearchProfile   string
	AdditionalContext []string
	IncludeDisclaimer bool
}

// Aspect is a prompt-building stage. It shares the guard chain's composition
// law: the first aspect listed runs outermost, and each stage sees the text
// produced by everything inside it before appending its own contribution.
type Aspect = egress.Aspect[*Request, string]

// Next advances to the inner stages of a prompt chain.
type Next = egress.Next[*Request, string]

// Build assembles a system prompt by running req through the given aspects.
// With no aspects the base prompt is returned unchanged.
func Build(ctx context.Context, req *Request, aspects ...Aspect) (string, error) {
	base := func(ctx context.Context, r *Request) (string, error) {
		return r.BasePrompt, nil
	}
	return egress.Chain(base, aspects...)(ctx, req)
}

// DefaultAspects returns the standard prompt pipeline. Each aspect appends
// its section after the inner stages have produced theirs, so the first
// aspect listed contributes the final section: the assembled prompt reads
// base, jurisdiction, research profile, additional context, disclaimer.
func DefaultAspects() []Aspect {
	return []Aspect{
		DisclaimerAspect(),
		AdditionalContextAspect(),
		ResearchProfileAspect(),
		JurisdictionAspect(),
	}
}

// JurisdictionAspect appends jurisdiction-specific framing when the request
// names one.
func JurisdictionAspect() Aspect {
	return func(ctx context.Context, req *Request, next Next) (string, error) {
		text, err := next(ctx, req)
		if err != nil {
			return "", err
		}
		if req.Jurisdiction == "" {
			return text, nil
		}
		return appendSection(text, fmt.Sprintf(
			"Jurisdiction: answer with respect to %s law and regulation. Flag when a question falls outside this jurisdiction.",
			req.Jurisdiction)), nil
	}
}

// ResearchProfileAspect appends the tenant's research-profile framing.
func ResearchProfileAspect() Aspect {
	return func(ctx context.Context, req *Request, next Next) (string, error) {
		text, err := next(ctx, req)
		if err != nil {
			return "", err
		}
		if req.ResearchProfile == "" {
			return text, nil
		}
		return appendSection(text, fmt.Sprintf("Research profile: %s", req.ResearchProfile)), nil
	}
}

// AdditionalContextAspect appends caller-supplied context blocks in order.
func AdditionalContextAspect() Aspect {
	return func(ctx context.Context, req *Request, next Next) (string, error) {
		text, err := next(ctx, req)
		if err != nil {
			return "", err
		}
		for _, block := range req.AdditionalContext {
			if strings.TrimSpace(block) == "" {
				continue
			}
			text = appendSection(text, block)
		}
		return text, nil
	}
}

// DisclaimerAspect appends the standard not-professional-advice disclaimer
// when the request asks for one.
func DisclaimerAspect() Aspect {
	return func(ctx context.Context, req *Request, next Next) (string, error) {
		text, err := next(ctx, req)
		if err != nil {
			return "", err
		}
		if !req.IncludeDisclaimer {
			return text, nil
		}
		return appendSection(text,
			"Always remind the user that your responses are informational and do not constitute professional advice."), nil
	}
}

func appendSection(text, section string) string {
	if text == "" {
		return section
	}
	return text + "\n\n" + section
}
