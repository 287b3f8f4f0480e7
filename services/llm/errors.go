// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "fmt"

// LlmErrorCode classifies router configuration failures.
type LlmErrorCode string

const (
	// CodeUnknownProvider means the resolved provider key is not registered.
	CodeUnknownProvider LlmErrorCode = "unknown_provider"

	// CodeStreamingUnsupported means StreamChat was requested from a
	// provider whose client lacks streaming capability.
	CodeStreamingUnsupported LlmErrorCode = "streaming_unsupported"

	// CodeMissingCredentials means a provider client could not be
	// constructed for lack of an API key.
	CodeMissingCredentials LlmErrorCode = "missing_credentials"
)

// LlmError is a typed configuration error raised by the router. These are
// fatal to the call and surfaced immediately — unlike provider execution
// failures, which streaming converts into terminal error chunks.
type LlmError struct {
	Code     LlmErrorCode
	Provider string
	Message  string
}

// Error implements the error interface.
func (e *LlmError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("llm: %s (provider %q): %s", e.Code, e.Provider, e.Message)
	}
	return fmt.Sprintf("llm: %s: %s", e.Code, e.Message)
}

// NewLlmError creates an LlmError.
func NewLlmError(code LlmErrorCode, provider, message string) *LlmError {
	return &LlmError{Code: code, Provider: provider, Message: message}
}
