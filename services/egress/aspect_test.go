// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import (
	"context"
	"errors"
	"testing"
)

// recordingAspect appends name on entry and exit so composition order is
// observable.
func recordingAspect(name string, trace *[]string) Aspect[string, string] {
	return func(ctx context.Context, c string, next Next[string, string]) (string, error) {
		*trace = append(*trace, name+":before")
		out, err := next(ctx, c)
		*trace = append(*trace, name+":after")
		return out, err
	}
}

func TestChain_FirstAspectIsOutermost(t *testing.T) {
	var trace []string
	base := func(_ context.Context, c string) (string, error) {
		trace = append(trace, "base")
		return c, nil
	}

	chain := Chain(base, recordingAspect("a", &trace), recordingAspect("b", &trace), recordingAspect("c", &trace))
	out, err := chain(context.Background(), "payload")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "payload" {
		t.Errorf("out = %q", out)
	}

	want := []string{"a:before", "b:before", "c:before", "base", "c:after", "b:after", "a:after"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

func TestChain_NoAspectsReturnsBase(t *testing.T) {
	base := func(_ context.Context, c int) (int, error) { return c * 2, nil }

	out, err := Chain(base)(context.Background(), 21)
	if err != nil || out != 42 {
		t.Errorf("got (%d, %v), want (42, nil)", out, err)
	}
}

func TestChain_AspectShortCircuits(t *testing.T) {
	baseRan := false
	base := func(_ context.Context, c string) (string, error) {
		baseRan = true
		return c, nil
	}
	blocked := errors.New("blocked")
	blocker := func(_ context.Context, _ string, _ Next[string, string]) (string, error) {
		return "", blocked
	}
	var trace []string

	_, err := Chain(base, recordingAspect("outer", &trace), blocker, recordingAspect("inner", &trace))(context.Background(), "x")
	if !errors.Is(err, blocked) {
		t.Errorf("err = %v", err)
	}
	if baseRan {
		t.Error("base ran past a short-circuiting aspect")
	}
	for _, entry := range trace {
		if entry == "inner:before" {
			t.Error("inner aspect ran past a short-circuiting aspect")
		}
	}
}

func TestChain_ErrorPropagatesThroughAspects(t *testing.T) {
	baseErr := errors.New("base failed")
	base := func(_ context.Context, _ string) (string, error) {
		return "", baseErr
	}
	var trace []string

	_, err := Chain(base, recordingAspect("a", &trace))(context.Background(), "x")
	if !errors.Is(err, baseErr) {
		t.Errorf("err = %v, want base error", err)
	}
}
