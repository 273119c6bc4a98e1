// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package entropy

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
)

// NewFactorized returns the terminal prior of the hierarchy: a per-channel learned
// logistic density with no further side information. It creates two variables in the
// given context scope, "median" and "raw_scale", one value per channel of q, and
// broadcasts them across batch and spatial axes. q must be shaped
// (batch, channels, height, width).
//
// This is the degenerate single-component case of the mixture model; the recursion
// over levels terminates here, at depth 2.
func NewFactorized(ctx *context.Context, q *Node) *Conditional {
	g := q.Graph()
	if q.Rank() != 4 {
		exceptions.Panicf("entropy: factorized prior wants a (batch, channels, height, width) tensor, got shape %s", q.Shape())
	}
	dims := q.Shape().Dimensions
	varShape := shapes.Make(q.DType(), dims[1])
	zeroCtx := ctx.WithInitializer(initializers.Zero)
	median := zeroCtx.VariableWithShape("median", varShape).ValueGraph(g)
	rawScale := zeroCtx.VariableWithShape("raw_scale", varShape).ValueGraph(g)
	return NewConditional(ctx, DistLogistic, PerChannel(median, dims), PerChannel(rawScale, dims))
}

// PerChannel broadcasts per-channel parameters across a (batch, channels, height,
// width) tensor. x is either shaped (channels) or (channels, k) for per-channel
// mixture parameters; the latter broadcasts to dims plus a trailing axis of size k.
func PerChannel(x *Node, dims []int) *Node {
	if len(dims) != 4 {
		exceptions.Panicf("entropy: PerChannel wants 4 latent dimensions (batch, channels, height, width), got %v", dims)
	}
	channels := dims[1]
	if x.Shape().Dimensions[0] != channels {
		exceptions.Panicf("entropy: per-channel parameters (%s) don't match the %d latent channels", x.Shape(), channels)
	}
	expanded := []int{1, channels, 1, 1}
	target := []int{dims[0], channels, dims[2], dims[3]}
	switch x.Rank() {
	case 1:
		// Nothing to append.
	case 2:
		k := x.Shape().Dimensions[1]
		expanded = append(expanded, k)
		target = append(target, k)
	default:
		exceptions.Panicf("entropy: PerChannel wants (channels) or (channels, k) parameters, got shape %s", x.Shape())
	}
	return BroadcastToDims(Reshape(x, expanded...), target...)
}
