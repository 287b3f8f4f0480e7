// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
)

// detectorSystemPrompt instructs the classifier model. Kept deliberately
// narrow: values only, no commentary, so the JSON parse below stays simple.
const detectorSystemPrompt = `You are a PII detector. Given text, return a JSON array of objects ` +
	`{"value": "<exact substring>", "label": "<one of [NAME], [ADDRESS], [PII]>"} for every piece of ` +
	`personally identifiable information expressed in free text (person names, postal addresses). ` +
	`Return [] when there is none. Return ONLY the JSON array.`

// ModelDetectorAdapter implements egress.ModelDetector over a ChatClient,
// usually a small local model: the classifier itself must not become an
// egress path for the text it is inspecting.
//
// Thread Safety: Safe for concurrent use.
type ModelDetectorAdapter struct {
	client ChatClient
	model  string
}

// NewModelDetector creates a ModelDetectorAdapter.
//
// Inputs:
//   - client: The classifier chat client. Should be a local provider.
//   - model: The classifier model identifier.
//
// Outputs:
//   - *ModelDetectorAdapter: The adapter.
func NewModelDetector(client ChatClient, model string) *ModelDetectorAdapter {
	return &ModelDetectorAdapter{client: client, model: model}
}

// DetectPII implements egress.ModelDetector.
//
// Description:
//
//	Sends the text to the classifier model and parses its JSON response.
//	Any failure — transport, malformed JSON — is returned as an error; the
//	sanitizer degrades to pattern-only detection.
func (d *ModelDetectorAdapter) DetectPII(ctx context.Context, text string) ([]egress.Finding, error) {
	resp, err := d.client.Chat(ctx, []Message{
		{Role: RoleSystem, Content: detectorSystemPrompt},
		{Role: RoleUser, Content: text},
	}, d.model, ChatOptions{Temperature: 0})
	if err != nil {
		return nil, fmt.Errorf("model detector: %w", err)
	}

	raw := stripCodeFence(resp)
	var parsed []struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("model detector: malformed response: %w", err)
	}

	findings := make([]egress.Finding, 0, len(parsed))
	for _, p := range parsed {
		if p.Value == "" {
			continue
		}
		findings = append(findings, egress.Finding{Value: p.Value, Label: p.Label})
	}
	return findings, nil
}

// stripCodeFence removes a markdown code fence if the model wrapped its
// JSON in one.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
