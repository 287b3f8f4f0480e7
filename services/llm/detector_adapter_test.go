// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"errors"
	"testing"
)

func TestModelDetector_ParsesFindings(t *testing.T) {
	client := &mockClient{response: `[{"value": "Jane Murphy", "label": "[NAME]"}, {"value": "", "label": "[PII]"}]`}
	detector := NewModelDetector(client, "classifier-model")

	findings, err := detector.DetectPII(context.Background(), "patient Jane Murphy presented")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("findings = %+v, want empty values dropped", findings)
	}
	if findings[0].Value != "Jane Murphy" || findings[0].Label != "[NAME]" {
		t.Errorf("finding = %+v", findings[0])
	}
	if client.lastModel != "classifier-model" {
		t.Errorf("model = %q", client.lastModel)
	}
	if len(client.lastMessages) != 2 || client.lastMessages[0].Role != RoleSystem {
		t.Errorf("messages = %+v, want system prompt plus text", client.lastMessages)
	}
}

func TestModelDetector_StripsCodeFence(t *testing.T) {
	client := &mockClient{response: "```json\n[{\"value\": \"42 Elm St\", \"label\": \"[ADDRESS]\"}]\n```"}
	detector := NewModelDetector(client, "classifier-model")

	findings, err := detector.DetectPII(context.Background(), "lives at 42 Elm St")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 1 || findings[0].Label != "[ADDRESS]" {
		t.Errorf("findings = %+v", findings)
	}
}

func TestModelDetector_EmptyArray(t *testing.T) {
	client := &mockClient{response: "[]"}
	detector := NewModelDetector(client, "classifier-model")

	findings, err := detector.DetectPII(context.Background(), "nothing sensitive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("findings = %+v", findings)
	}
}

func TestModelDetector_TransportErrorSurfaces(t *testing.T) {
	wantErr := errors.New("connection refused")
	detector := NewModelDetector(&mockClient{err: wantErr}, "classifier-model")

	_, err := detector.DetectPII(context.Background(), "text")
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v", err)
	}
}

func TestModelDetector_MalformedJSONSurfaces(t *testing.T) {
	detector := NewModelDetector(&mockClient{response: "I found some PII!"}, "classifier-model")

	_, err := detector.DetectPII(context.Background(), "text")
	if err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}
