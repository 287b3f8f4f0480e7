// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
)

// MaxCodeTimeoutMS bounds the per-call timeout a model may request.
const MaxCodeTimeoutMS = 600000

// validate is the shared validator instance for tool inputs. Stateless and
// concurrent-safe after construction. The timeout ceiling is enforced as a
// struct-level rule so the bound stays tied to MaxCodeTimeoutMS.
var validate = newToolValidator()

func newToolValidator() *validator.Validate {
	v := validator.New()
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		in := sl.Current().Interface().(CodeInput)
		if in.TimeoutMS > MaxCodeTimeoutMS {
			sl.ReportError(in.TimeoutMS, "TimeoutMS", "TimeoutMS", "lte", strconv.Itoa(MaxCodeTimeoutMS))
		}
	}, CodeInput{})
	return v
}

// CodeInput is the run_code tool's input schema.
type CodeInput struct {
	Language    string `json:"language" validate:"required,oneof=python javascript"`
	Code        string `json:"code" validate:"required"`
	Description string `json:"description,omitempty"`

	// TimeoutMS bounds this call. 0 means the sandbox default; the ceiling
	// is MaxCodeTimeoutMS, checked at the struct level.
	TimeoutMS int `json:"timeout,omitempty" validate:"gte=0"`
}

// ExecOpts configures sanitization of the tool's output.
type ExecOpts struct {
	// Sanitization selects the output detector subset. Empty means
	// ContextCalculation — conservative, so numeric results survive intact.
	Sanitization egress.SanitizationContext
}

// CodeResult is the sanitized outcome returned to the conversation.
type CodeResult struct {
	Success  bool   `json:"success"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`

	// SanitizationMode records which context scrubbed this result.
	SanitizationMode egress.SanitizationContext `json:"sanitizationMode"`
}

// ExecuteCode runs model-requested code in the sandbox and sanitizes every
// text field of the outcome.
//
// Description:
//
//	Sandbox output re-enters the conversation as untrusted content, so
//	stdout, stderr, and error messages all pass through the egress
//	sanitizer before being returned. Execution failures — including a
//	panicking or transport-failing sandbox — are captured in the result
//	(Success=false, Error set), never thrown: one bad step must not crash
//	the conversation turn.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - input: Validated tool input.
//   - sb: The sandbox handle. Must not be nil.
//   - sanitizer: The egress sanitizer. Must not be nil.
//   - logger: Structured logger. Nil uses slog.Default().
//   - opts: Sanitization context override.
//
// Outputs:
//   - *CodeResult: The sanitized result. Never nil.
func ExecuteCode(ctx context.Context, input CodeInput, sb Sandbox, sanitizer *egress.Sanitizer, logger *slog.Logger, opts ExecOpts) *CodeResult {
	if logger == nil {
		logger = slog.Default()
	}
	sanitizeCtx := opts.Sanitization
	if sanitizeCtx == "" {
		sanitizeCtx = egress.ContextCalculation
	}
	result := &CodeResult{SanitizationMode: sanitizeCtx}

	scrub := func(text string) string {
		return sanitizer.SanitizeText(ctx, text, egress.SanitizeOptions{Context: sanitizeCtx})
	}

	if err := validate.Struct(input); err != nil {
		result.Error = scrub(fmt.Sprintf("invalid code input: %v", err))
		result.ExitCode = -1
		return result
	}

	if input.TimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(input.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	exec, err := sb.RunCode(ctx, input.Code, RunOpts{Language: input.Language})
	if err != nil {
		logger.Warn("sandbox execution failed",
			slog.String("language", input.Language),
			slog.String("error", err.Error()))
		result.Error = scrub(err.Error())
		result.ExitCode = -1
		return result
	}

	result.Stdout = scrub(strings.Join(exec.Logs.Stdout, "\n"))
	result.Stderr = scrub(strings.Join(exec.Logs.Stderr, "\n"))
	result.ExitCode = exec.ExitCode
	if exec.Error != "" {
		result.Error = scrub(exec.Error)
	}
	result.Success = exec.ExitCode == 0 && exec.Error == ""
	return result
}
