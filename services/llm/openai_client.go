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
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatClient adapts any OpenAI-compatible chat-completions endpoint
// to the ChatClient / StreamingChatClient contract. It backs three provider
// registrations: "openai" itself, the fast-inference vendor (custom base
// URL), and the "local" inference server.
//
// Thread Safety: Safe for concurrent use (the underlying client is stateless
// per request).
type OpenAICompatClient struct {
	client   *openai.Client
	provider string
	logger   *slog.Logger
}

// NewOpenAIClient creates a client for the OpenAI API.
//
// Inputs:
//   - apiKey: The API key. Must not be empty.
//
// Outputs:
//   - *OpenAICompatClient: The configured client.
//   - error: *LlmError with CodeMissingCredentials when apiKey is empty.
func NewOpenAIClient(apiKey string) (*OpenAICompatClient, error) {
	if apiKey == "" {
		return nil, NewLlmError(CodeMissingCredentials, "openai", "OPENAI_API_KEY required")
	}
	return &OpenAICompatClient{
		client:   openai.NewClient(apiKey),
		provider: "openai",
		logger:   slog.Default().With(slog.String("provider", "openai")),
	}, nil
}

// NewFastInferenceClient creates a client for an OpenAI-compatible
// fast-inference vendor (Groq-class) at a custom base URL.
func NewFastInferenceClient(apiKey, baseURL string) (*OpenAICompatClient, error) {
	if apiKey == "" {
		return nil, NewLlmError(CodeMissingCredentials, "fastinference", "FASTINFERENCE_API_KEY required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompatClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: "fastinference",
		logger:   slog.Default().With(slog.String("provider", "fastinference")),
	}, nil
}

// NewLocalClient creates a client for an OpenAI-compatible local inference
// server. No API key is required; no data leaves the environment.
func NewLocalClient(baseURL string) *OpenAICompatClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	cfg := openai.DefaultConfig("local")
	cfg.BaseURL = baseURL
	return &OpenAICompatClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: LocalProvider,
		logger:   slog.Default().With(slog.String("provider", LocalProvider)),
	}
}

// Provider returns the provider key this client was built for.
func (c *OpenAICompatClient) Provider() string {
	return c.provider
}

// Chat implements ChatClient.
func (c *OpenAICompatClient) Chat(ctx context.Context, messages []Message, model string, opts ChatOptions) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages, model, opts))
	if err != nil {
		return "", fmt.Errorf("%s chat: %w", c.provider, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat: empty choices in response", c.provider)
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat implements StreamingChatClient.
//
// Description:
//
//	Returns a single-consumer channel fed by a goroutine. Text deltas become
//	text chunks; tool-call deltas are accumulated per call index and emitted
//	as complete tool chunks when the stream ends. Upstream errors become a
//	terminal error chunk; a done chunk always follows, on both normal
//	completion and error paths — consumers never hang waiting for done.
func (c *OpenAICompatClient) StreamChat(ctx context.Context, messages []Message, model string, opts ChatOptions) (<-chan StreamChunk, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(messages, model, opts))
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", c.provider, err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		// Tool-call argument deltas arrive fragmented; accumulate by index.
		type partialCall struct {
			name string
			args string
		}
		calls := make(map[int]*partialCall)
		order := []int{}

		emit := func(chunk StreamChunk) bool {
			select {
			case out <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			resp, recvErr := stream.Recv()
			if errors.Is(recvErr, io.EOF) {
				break
			}
			if recvErr != nil {
				emit(ErrorChunk(recvErr))
				emit(DoneChunk())
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				if !emit(TextChunk(delta.Content)) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				pc, ok := calls[idx]
				if !ok {
					pc = &partialCall{}
					calls[idx] = pc
					order = append(order, idx)
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args += tc.Function.Arguments
			}
		}

		for _, idx := range order {
			pc := calls[idx]
			if !emit(ToolChunk(pc.name, pc.args)) {
				return
			}
		}
		emit(DoneChunk())
	}()
	return out, nil
}

// buildRequest converts the provider-agnostic request to the wire format.
func (c *OpenAICompatClient) buildRequest(messages []Message, model string, opts ChatOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}
	if opts.Temperature >= 0 {
		req.Temperature = float32(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	if opts.ToolChoice != "" {
		req.ToolChoice = opts.ToolChoice
	}
	return req
}
