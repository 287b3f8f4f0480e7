// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KodiakAI/KodiakCopilot/services/egress"
)

func testSanitizer() *egress.Sanitizer {
	return egress.NewSanitizer(nil, nil)
}

func successSandbox(stdout, stderr []string) *fakeSandbox {
	return &fakeSandbox{
		id: "sbx-test",
		exec: &Execution{
			Logs: ExecutionLogs{Stdout: stdout, Stderr: stderr},
		},
	}
}

// =============================================================================
// ExecuteCode
// =============================================================================

func TestExecuteCode_SanitizesOutput(t *testing.T) {
	sb := successSandbox(
		[]string{"result: 42", "debug email john@example.com"},
		[]string{"warning: ssn 123-45-6789 in input"},
	)

	result := ExecuteCode(context.Background(), CodeInput{
		Language: "python",
		Code:     "print(42)",
	}, sb, testSanitizer(), nil, ExecOpts{})

	require.True(t, result.Success)
	assert.Equal(t, "result: 42\ndebug email [EMAIL]", result.Stdout)
	assert.Equal(t, "warning: ssn [SSN] in input", result.Stderr)
	assert.Equal(t, egress.ContextCalculation, result.SanitizationMode)
}

func TestExecuteCode_CalculationContextPreservesNumbers(t *testing.T) {
	// Version-shaped and numeric output must survive the default context.
	sb := successSandbox([]string{"mean: 3.14159", "release 1.2.3.4"}, nil)

	result := ExecuteCode(context.Background(), CodeInput{
		Language: "python",
		Code:     "compute()",
	}, sb, testSanitizer(), nil, ExecOpts{})

	assert.Equal(t, "mean: 3.14159\nrelease 1.2.3.4", result.Stdout)
}

func TestExecuteCode_ContextOverride(t *testing.T) {
	sb := successSandbox([]string{"host 10.0.0.1"}, nil)

	result := ExecuteCode(context.Background(), CodeInput{
		Language: "python",
		Code:     "scan()",
	}, sb, testSanitizer(), nil, ExecOpts{Sanitization: egress.ContextStrict})

	assert.Equal(t, "host [IP]", result.Stdout)
	assert.Equal(t, egress.ContextStrict, result.SanitizationMode)
}

func TestExecuteCode_ValidationFailures(t *testing.T) {
	sb := successSandbox(nil, nil)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CodeInput
	}{
		{"missing_language", CodeInput{Code: "print(1)"}},
		{"unsupported_language", CodeInput{Language: "ruby", Code: "puts 1"}},
		{"missing_code", CodeInput{Language: "python"}},
		{"timeout_too_large", CodeInput{Language: "python", Code: "x", TimeoutMS: MaxCodeTimeoutMS + 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ExecuteCode(ctx, tc.input, sb, testSanitizer(), nil, ExecOpts{})
			assert.False(t, result.Success)
			assert.NotEmpty(t, result.Error)
		})
	}
}

func TestExecuteCode_SandboxFailureIsCaptured(t *testing.T) {
	sb := &fakeSandbox{id: "sbx-test", runErr: errors.New("sandbox transport lost")}

	result := ExecuteCode(context.Background(), CodeInput{
		Language: "javascript",
		Code:     "1+1",
	}, sb, testSanitizer(), nil, ExecOpts{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "transport lost")
	assert.Equal(t, -1, result.ExitCode)
}

func TestExecuteCode_NonZeroExitIsNotSuccess(t *testing.T) {
	sb := &fakeSandbox{
		id: "sbx-test",
		exec: &Execution{
			Logs:     ExecutionLogs{Stderr: []string{"Traceback ..."}},
			ExitCode: 1,
		},
	}

	result := ExecuteCode(context.Background(), CodeInput{
		Language: "python",
		Code:     "raise Exception()",
	}, sb, testSanitizer(), nil, ExecOpts{})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ExitCode)
}

// =============================================================================
// ExecuteAnalysis
// =============================================================================

func TestExecuteAnalysis_CustomRequiresCode(t *testing.T) {
	sb := successSandbox(nil, nil)

	result := ExecuteAnalysis(context.Background(), AnalysisInput{
		AnalysisType: "custom",
	}, sb, testSanitizer(), nil, ExecOpts{})

	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestExecuteAnalysis_BuiltinDoesNotRequireCode(t *testing.T) {
	sb := successSandbox([]string{`{"count": 3, "mean": 2.0}`}, nil)

	result := ExecuteAnalysis(context.Background(), AnalysisInput{
		AnalysisType: "summary_stats",
		Parameters:   []float64{1, 2, 3},
	}, sb, testSanitizer(), nil, ExecOpts{})

	require.True(t, result.Success)
	assert.NotEmpty(t, result.Output)
}

func TestExecuteAnalysis_ParametersSerializedIntoBuiltinCode(t *testing.T) {
	sb := successSandbox([]string{`{"correlation": 1.0}`}, nil)

	result := ExecuteAnalysis(context.Background(), AnalysisInput{
		AnalysisType: "correlation",
		Parameters:   [][]float64{{1, 2}, {2, 4}},
	}, sb, testSanitizer(), nil, ExecOpts{})

	require.True(t, result.Success)
	// The snippet receives the parameters as a quoted JSON string literal.
	assert.Contains(t, sb.lastCode, `"[[1,2],[2,4]]"`)
	assert.Contains(t, sb.lastCode, "json.loads")
}

func TestExecuteAnalysis_JSONOutputParsed(t *testing.T) {
	sb := successSandbox([]string{`{"correlation": 0.97}`}, nil)

	result := ExecuteAnalysis(context.Background(), AnalysisInput{
		AnalysisType: "custom",
		Code:         "analyze()",
		OutputFormat: "json",
	}, sb, testSanitizer(), nil, ExecOpts{})

	require.True(t, result.Success)
	structured, ok := result.Structured.(map[string]any)
	require.True(t, ok, "Structured = %T", result.Structured)
	assert.Equal(t, 0.97, structured["correlation"])
}

func TestExecuteAnalysis_MalformedJSONDegradesToText(t *testing.T) {
	sb := successSandbox([]string{"not json at all"}, nil)

	result := ExecuteAnalysis(context.Background(), AnalysisInput{
		AnalysisType: "custom",
		Code:         "analyze()",
		OutputFormat: "json",
	}, sb, testSanitizer(), nil, ExecOpts{})

	require.True(t, result.Success, "parse failure must not fail the call")
	assert.Nil(t, result.Structured)
	assert.Equal(t, "not json at all", result.Output)
}

func TestExecuteAnalysis_SandboxFailureIsCaptured(t *testing.T) {
	sb := &fakeSandbox{id: "sbx-test", runErr: errors.New("sandbox gone")}

	result := ExecuteAnalysis(context.Background(), AnalysisInput{
		AnalysisType: "summary_stats",
		Parameters:   []float64{1},
	}, sb, testSanitizer(), nil, ExecOpts{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "sandbox gone")
}

// =============================================================================
// ToolRegistry
// =============================================================================

func TestToolRegistry_BindSandboxRegistersStandardTools(t *testing.T) {
	r := NewToolRegistry(nil)
	r.BindSandbox(successSandbox([]string{"ok"}, nil), testSanitizer(), ExecOpts{})

	tools := r.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, "run_code", tools[0].Name)
	assert.Equal(t, "run_analysis", tools[1].Name)

	tool, ok := r.Get("run_code")
	require.True(t, ok)
	out, err := tool.Execute(context.Background(), `{"language": "python", "code": "print('ok')"}`)
	require.NoError(t, err)
	result, ok := out.(*CodeResult)
	require.True(t, ok)
	assert.True(t, result.Success)
}

func TestToolRegistry_ExecuteRejectsMalformedArguments(t *testing.T) {
	r := NewToolRegistry(nil)
	r.BindSandbox(successSandbox(nil, nil), testSanitizer(), ExecOpts{})

	tool, ok := r.Get("run_code")
	require.True(t, ok)
	_, err := tool.Execute(context.Background(), "{not json")
	assert.Error(t, err)
}

func TestToolRegistry_RebindReplacesHandle(t *testing.T) {
	r := NewToolRegistry(nil)
	first := successSandbox([]string{"first"}, nil)
	second := successSandbox([]string{"second"}, nil)

	r.BindSandbox(first, testSanitizer(), ExecOpts{})
	r.BindSandbox(second, testSanitizer(), ExecOpts{})

	tool, ok := r.Get("run_code")
	require.True(t, ok)
	out, err := tool.Execute(context.Background(), `{"language": "python", "code": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, "second", out.(*CodeResult).Stdout)

	// Rebinding must not duplicate entries.
	assert.Len(t, r.Tools(), 2)
}
