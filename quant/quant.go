// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Package quant implements the dual-mode quantizer used by the entropy bottleneck.
//
// During training the quantizer adds independent uniform noise in [-0.5, 0.5) to each
// element, a smooth surrogate whose statistics match true rounding in expectation. At
// inference it rounds to the nearest integer. A third mode implements the
// straight-through estimator (rounding on the forward pass, identity gradient), which
// is what the generator network consumes.
//
// The rounding convention is round-half-away-from-zero. The backend contract for
// graph.Round leaves midpoint ties unspecified, so the package tests pin the
// convention (see TestRoundIsIdempotent); it is shared between the rate estimate
// and the decoded latents, so a future entropy-coder backend sees the exact same
// symbols the rate was computed for.
package quant

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Mode selects the quantization strategy. It is an explicit tagged choice; callers
// never branch on runtime types.
type Mode int

const (
	// ModeNoise adds uniform noise in [-0.5, 0.5) to each element (training surrogate).
	ModeNoise Mode = iota
	// ModeRound rounds each element to the nearest integer, halves away from zero.
	ModeRound
	// ModeSTE rounds on the forward pass but lets gradients flow through unchanged.
	ModeSTE
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeNoise:
		return "noise"
	case ModeRound:
		return "round"
	case ModeSTE:
		return "ste"
	}
	return "invalid"
}

// Noise returns x + u with u drawn elementwise from U[-0.5, 0.5).
// The random state lives in the context (see Context.RandomUniform), so separate
// calls draw independent noise.
func Noise(ctx *context.Context, x *graph.Node) *graph.Node {
	g := x.Graph()
	u := ctx.RandomUniform(g, x.Shape())
	return graph.Add(x, graph.AddScalar(u, -0.5))
}

// Round quantizes x to the integer grid, rounding halves away from zero.
func Round(x *graph.Node) *graph.Node {
	return graph.Round(x)
}

// STE is the straight-through estimator: Round(x) on the forward pass, identity on
// the backward pass.
func STE(x *graph.Node) *graph.Node {
	return graph.Add(x, graph.StopGradient(graph.Sub(graph.Round(x), x)))
}

// Apply quantizes x with the given mode. Dequantization is the identity: the returned
// tensor is what flows to both the prior and the decoder transform.
func Apply(ctx *context.Context, x *graph.Node, mode Mode) *graph.Node {
	switch mode {
	case ModeNoise:
		return Noise(ctx, x)
	case ModeRound:
		return Round(x)
	case ModeSTE:
		return STE(x)
	}
	exceptions.Panicf("quant: invalid quantization mode %d", mode)
	panic(nil) // Never reached.
}

// ModeForGraph returns the surrogate mode while the graph is training and the
// rounding mode otherwise.
func ModeForGraph(ctx *context.Context, g *graph.Graph) Mode {
	if ctx.IsTraining(g) {
		return ModeNoise
	}
	return ModeRound
}
