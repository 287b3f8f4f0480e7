// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package egress

import "context"

// Next is the continuation an Aspect invokes to proceed down the chain.
type Next[C, T any] func(ctx context.Context, c C) (T, error)

// Aspect is a composable middleware wrapping a call. An aspect may mutate the
// carried value before calling next, transform the result after next returns,
// short-circuit by not calling next, or catch and transform errors raised by
// next. Aspects that do work after next must propagate next's error unless
// they deliberately handle it.
//
// The same composition law backs both egress guarding and prompt building.
type Aspect[C, T any] func(ctx context.Context, c C, next Next[C, T]) (T, error)

// Chain composes aspects around a base call.
//
// Description:
//
//	Aspects apply in declared order with the FIRST aspect outermost: its
//	pre-processing runs first and its post-processing runs last, wrapping
//	every inner aspect's effects.
//
// Inputs:
//   - base: The innermost call. Must not be nil.
//   - aspects: Middlewares, first-listed outermost.
//
// Outputs:
//   - Next[C, T]: The composed call.
func Chain[C, T any](base Next[C, T], aspects ...Aspect[C, T]) Next[C, T] {
	wrapped := base
	for i := len(aspects) - 1; i >= 0; i-- {
		aspect := aspects[i]
		inner := wrapped
		wrapped = func(ctx context.Context, c C) (T, error) {
			return aspect(ctx, c, inner)
		}
	}
	return wrapped
}
