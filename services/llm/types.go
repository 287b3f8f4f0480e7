// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the provider-agnostic chat contract, named provider
// clients, and the policy-driven router that resolves {provider, model, call
// options} per tenant/user/call and gates every outbound request through the
// egress guard.
//
// Thread Safety:
//
//	All interfaces in this package must be implemented as safe for
//	concurrent use.
package llm

import "context"

// Role identifies a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCallID links a tool-role message to the call it answers.
	ToolCallID string `json:"toolCallId,omitempty"`
}

// ToolDef describes a tool the model may call.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatOptions holds provider-agnostic options for a chat request.
type ChatOptions struct {
	// Temperature controls randomness. Negative means provider default.
	Temperature float64

	// MaxTokens limits the response length. 0 means provider default.
	MaxTokens int

	// Tools are the tool definitions exposed to the model.
	Tools []ToolDef

	// ToolChoice forces ("required"), forbids ("none"), or leaves tool use
	// to the model ("auto" or empty).
	ToolChoice string
}

// ChatClient is the uniform single-shot contract every provider adapter
// implements.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ChatClient interface {
	// Chat sends messages and returns the assistant's response text.
	Chat(ctx context.Context, messages []Message, model string, opts ChatOptions) (string, error)
}

// StreamingChatClient is the optional streaming extension of ChatClient.
// Callers must type-assert; a provider lacking this interface cannot serve
// StreamChat requests.
type StreamingChatClient interface {
	ChatClient

	// StreamChat returns a lazy, single-consumer, forward-only sequence of
	// chunks. The channel always terminates with a done chunk, even after an
	// upstream error. Cancellation is caller-driven: cancel ctx or stop
	// consuming.
	StreamChat(ctx context.Context, messages []Message, model string, opts ChatOptions) (<-chan StreamChunk, error)
}
