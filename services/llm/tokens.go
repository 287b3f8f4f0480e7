// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used when a model has no registered tokenizer (local
// and fast-inference models typically don't).
const fallbackEncoding = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// EstimateTokens estimates the token count of messages for audit metadata.
//
// Description:
//
//	Uses the model's tiktoken tokenizer when registered, else cl100k_base.
//	If no tokenizer can be loaded at all (offline cache miss), falls back to
//	the bytes/4 heuristic. Estimates feed audit logs only — they are never
//	used to gate a call, so approximation is acceptable.
//
// Inputs:
//   - model: The model identifier.
//   - messages: The conversation messages.
//
// Outputs:
//   - int: Estimated token count, always >= 0.
func EstimateTokens(model string, messages []Message) int {
	var total int
	enc := encoderFor(model)
	for _, m := range messages {
		if enc != nil {
			total += len(enc.Encode(m.Content, nil, nil))
			continue
		}
		total += len(m.Content) / 4
	}
	return total
}

// encoderFor returns the tokenizer for model, the shared fallback, or nil.
func encoderFor(model string) *tiktoken.Tiktoken {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return enc
	}
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(fallbackEncoding)
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}
