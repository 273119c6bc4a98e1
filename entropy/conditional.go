// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package entropy

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Conditional is a mean/scale prior: each element of the quantized tensor gets a
// logistic or Gaussian density located at mean with the (reparameterized) scale,
// integrated over the unit bin.
//
// The parameter tensors are opaque inputs -- typically the output of a
// hyper-synthesis transform, but any predictor (or constants, in tests) works.
type Conditional struct {
	dist            Distribution
	mean, scale     *Node
	likelihoodFloor float64
}

// NewConditional builds a mean/scale prior. rawScale is unconstrained and passed
// through ScaleFromRaw; mean is used as-is. Both must have the same shape, which is
// also the shape BinBits accepts.
func NewConditional(ctx *context.Context, dist Distribution, mean, rawScale *Node) *Conditional {
	if !mean.Shape().Equal(rawScale.Shape()) {
		exceptions.Panicf("entropy: mean (%s) and rawScale (%s) must have the same shape",
			mean.Shape(), rawScale.Shape())
	}
	return &Conditional{
		dist:            dist,
		mean:            mean,
		scale:           ScaleFromRaw(ctx, rawScale),
		likelihoodFloor: likelihoodFloorFromContext(ctx),
	}
}

// BinBits implements Prior.
func (p *Conditional) BinBits(q *Node) *Node {
	if !q.Shape().Equal(p.mean.Shape()) {
		exceptions.Panicf("entropy: quantized tensor (%s) doesn't match the prior's parameters (%s)",
			q.Shape(), p.mean.Shape())
	}
	upper := cdf(p.dist, AddScalar(q, 0.5), p.mean, p.scale)
	lower := cdf(p.dist, AddScalar(q, -0.5), p.mean, p.scale)
	return bitsFromMass(Sub(upper, lower), p.likelihoodFloor)
}
