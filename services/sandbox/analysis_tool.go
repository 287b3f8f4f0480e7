// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
)

// AnalysisInput is the run_analysis tool's input schema. Built-in analysis
// types ship their own code; "custom" requires the caller to supply it.
type AnalysisInput struct {
	AnalysisType string `json:"analysisType" validate:"required,oneof=summary_stats correlation custom"`
	Code         string `json:"code,omitempty" validate:"required_if=AnalysisType custom"`

	// Parameters carries the analysis operands as a structured value (a
	// number list for summary_stats, pair list for correlation). It is
	// serialized into the built-in snippets; custom code ignores it.
	Parameters any `json:"parameters,omitempty"`

	// OutputFormat selects result shaping: "json" parses stdout into a
	// structured value, "text" returns it raw. Empty means text.
	OutputFormat string `json:"outputFormat,omitempty" validate:"omitempty,oneof=json text"`
}

// AnalysisResult is the sanitized analysis outcome.
type AnalysisResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Stderr  string `json:"stderr,omitempty"`
	Error   string `json:"error,omitempty"`

	// Structured holds the parsed stdout when OutputFormat was "json" and
	// parsing succeeded. Nil otherwise; Output is always populated.
	Structured any `json:"structured,omitempty"`

	SanitizationMode egress.SanitizationContext `json:"sanitizationMode"`
}

// builtinAnalysisCode maps non-custom analysis types to the Python snippets
// executed on their behalf. Parameters are injected as a JSON string literal.
var builtinAnalysisCode = map[string]string{
	"summary_stats": `
import json, statistics
data = json.loads(%s)
values = [float(v) for v in data]
print(json.dumps({
    "count": len(values),
    "mean": statistics.mean(values) if values else None,
    "median": statistics.median(values) if values else None,
    "stdev": statistics.stdev(values) if len(values) > 1 else None,
    "min": min(values) if values else None,
    "max": max(values) if values else None,
}))`,
	"correlation": `
import json, statistics
pairs = json.loads(%s)
xs = [float(p[0]) for p in pairs]
ys = [float(p[1]) for p in pairs]
print(json.dumps({"correlation": statistics.correlation(xs, ys)}))`,
}

// ExecuteAnalysis runs a structured analysis in the sandbox.
//
// Description:
//
//	Built-in analysis types expand to their bundled Python; custom runs the
//	caller's code verbatim. When OutputFormat is "json" the stdout is parsed
//	into Structured; a parse failure is logged and degrades to sanitized raw
//	text rather than failing the call. Like ExecuteCode, this never throws:
//	all failures land in the result.
func ExecuteAnalysis(ctx context.Context, input AnalysisInput, sb Sandbox, sanitizer *egress.Sanitizer, logger *slog.Logger, opts ExecOpts) *AnalysisResult {
	if logger == nil {
		logger = slog.Default()
	}
	sanitizeCtx := opts.Sanitization
	if sanitizeCtx == "" {
		sanitizeCtx = egress.ContextCalculation
	}
	result := &AnalysisResult{SanitizationMode: sanitizeCtx}

	scrub := func(text string) string {
		return sanitizer.SanitizeText(ctx, text, egress.SanitizeOptions{Context: sanitizeCtx})
	}

	if err := validate.Struct(input); err != nil {
		result.Error = scrub(fmt.Sprintf("invalid analysis input: %v", err))
		return result
	}

	code := input.Code
	if input.AnalysisType != "custom" {
		tmpl := builtinAnalysisCode[input.AnalysisType]
		raw, err := json.Marshal(input.Parameters)
		if err != nil {
			result.Error = scrub(fmt.Sprintf("invalid analysis parameters: %v", err))
			return result
		}
		// Double-encode so the snippet receives a quoted string literal it
		// can json.loads.
		literal, err := json.Marshal(string(raw))
		if err != nil {
			result.Error = scrub(fmt.Sprintf("invalid analysis parameters: %v", err))
			return result
		}
		code = fmt.Sprintf(tmpl, string(literal))
	}

	exec, err := sb.RunCode(ctx, code, RunOpts{Language: "python"})
	if err != nil {
		logger.Warn("analysis execution failed",
			slog.String("analysisType", input.AnalysisType),
			slog.String("error", err.Error()))
		result.Error = scrub(err.Error())
		return result
	}

	stdout := strings.Join(exec.Logs.Stdout, "\n")
	result.Stderr = scrub(strings.Join(exec.Logs.Stderr, "\n"))
	if exec.Error != "" {
		result.Error = scrub(exec.Error)
	}
	result.Success = exec.ExitCode == 0 && exec.Error == ""

	if result.Success && input.OutputFormat == "json" {
		var structured any
		if err := json.Unmarshal([]byte(stdout), &structured); err != nil {
			logger.Warn("analysis output is not valid JSON, returning raw text",
				slog.String("analysisType", input.AnalysisType),
				slog.String("error", err.Error()))
		} else {
			result.Structured = sanitizeStructured(ctx, structured, sanitizer, sanitizeCtx)
		}
	}
	result.Output = scrub(stdout)
	return result
}

// sanitizeStructured scrubs string leaves of a parsed JSON value.
func sanitizeStructured(ctx context.Context, v any, sanitizer *egress.Sanitizer, sanitizeCtx egress.SanitizationContext) any {
	return sanitizer.SanitizeObjectForEgress(ctx, v, egress.SanitizeOptions{Context: sanitizeCtx})
}
