// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package entropy

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

// Mixture is a discretized logistic mixture prior: each element of the quantized
// tensor gets a weighted sum of K logistic bin masses,
//
//	P(q) = Σ_k w_k * (sigmoid((q+0.5-μ_k)/s_k) - sigmoid((q-0.5-μ_k)/s_k)).
//
// Parameters carry one trailing mixture axis of size K on top of the quantized
// tensor's shape. Weights come from a softmax over the raw logits, so they are
// non-negative and sum to one by construction. With K=1 the model collapses exactly
// to the single-component logistic Conditional.
type Mixture struct {
	weights, means, scales *Node
	likelihoodFloor        float64
}

// NewMixture builds a logistic mixture prior from raw per-component parameters, all
// shaped like the quantized tensor plus a trailing mixture axis. rawScales go
// through ScaleFromRaw, weightLogits through a softmax over the last axis.
func NewMixture(ctx *context.Context, weightLogits, means, rawScales *Node) *Mixture {
	if !weightLogits.Shape().Equal(means.Shape()) || !means.Shape().Equal(rawScales.Shape()) {
		exceptions.Panicf("entropy: mixture parameters must share one shape, got weights=%s, means=%s, scales=%s",
			weightLogits.Shape(), means.Shape(), rawScales.Shape())
	}
	if weightLogits.Rank() < 2 {
		exceptions.Panicf("entropy: mixture parameters need a trailing mixture axis on top of a batch axis, got shape %s",
			weightLogits.Shape())
	}
	return &Mixture{
		weights:         Softmax(weightLogits),
		means:           means,
		scales:          ScaleFromRaw(ctx, rawScales),
		likelihoodFloor: likelihoodFloorFromContext(ctx),
	}
}

// NumComponents returns K.
func (p *Mixture) NumComponents() int {
	dims := p.means.Shape().Dimensions
	return dims[len(dims)-1]
}

// BinBits implements Prior.
func (p *Mixture) BinBits(q *Node) *Node {
	paramsShape := p.means.Shape()
	wantShape := shapes.Make(paramsShape.DType, paramsShape.Dimensions[:paramsShape.Rank()-1]...)
	if !q.Shape().Equal(wantShape) {
		exceptions.Panicf("entropy: quantized tensor (%s) doesn't match the mixture parameters (%s, trailing axis is the %d components)",
			q.Shape(), paramsShape, p.NumComponents())
	}
	qk := BroadcastToShape(ExpandAxes(q, -1), paramsShape)
	upper := cdf(DistLogistic, AddScalar(qk, 0.5), p.means, p.scales)
	lower := cdf(DistLogistic, AddScalar(qk, -0.5), p.means, p.scales)
	mass := ReduceSum(Mul(p.weights, Sub(upper, lower)), -1)
	return bitsFromMass(mass, p.likelihoodFloor)
}
