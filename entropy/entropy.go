// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Package entropy implements the probability models assigned to quantized latent
// tensors and the rate (bit cost) accounting derived from them.
//
// A Prior gives each quantized element q the probability mass of its unit
// quantization bin, P(q) = CDF(q+0.5) - CDF(q-0.5), for a continuous density
// (logistic or Gaussian) with learned location and scale. The bit cost is
// -log2(max(P(q), likelihoodFloor)); this is the exact number of bits an entropy
// coder would need to transmit q under the model, and it is what the training loss
// minimizes. No bitstream is produced here.
//
// Three priors are provided:
//
//   - Conditional: per-element mean and scale, predicted by a hyper-synthesis
//     transform (or any other parameter predictor).
//   - Mixture: a K-component discretized logistic mixture per element.
//   - the factorized prior of NewFactorized: a per-channel learned logistic,
//     the terminal model for the hyper-latent level.
//
// Numerical safeguards are mandatory and deterministic: scales are reparameterized
// through softplus plus a floor (ParamScaleFloor) and bin masses are clamped at
// ParamLikelihoodFloor before the log. Both floors bias the reported rate, so they
// are context hyperparameters, documented and reproducible.
package entropy

import (
	"math"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
)

const (
	// ParamScaleFloor ("scale_floor") is added to softplus(rawScale) so densities
	// never degenerate to zero scale. Default: DefaultScaleFloor.
	ParamScaleFloor = "scale_floor"

	// ParamLikelihoodFloor ("likelihood_floor") is the minimum bin probability mass;
	// masses that underflow are clamped here instead of producing -inf bit costs.
	// Default: DefaultLikelihoodFloor (2^-16, i.e. a cost ceiling of 16 bits/element).
	ParamLikelihoodFloor = "likelihood_floor"
)

const (
	DefaultScaleFloor      = 1e-6
	DefaultLikelihoodFloor = 0x1p-16
)

// Distribution selects the continuous density that is convolved with the unit
// uniform kernel to form bin masses. The constants carry a Dist prefix to stay
// clear of the graph package's activation functions of the same names.
type Distribution int

const (
	DistLogistic Distribution = iota
	DistGaussian
)

// String implements fmt.Stringer.
func (d Distribution) String() string {
	switch d {
	case DistLogistic:
		return "logistic"
	case DistGaussian:
		return "gaussian"
	}
	return "invalid"
}

// DistributionFromName converts a hyperparameter value to a Distribution.
func DistributionFromName(name string) Distribution {
	switch name {
	case "logistic":
		return DistLogistic
	case "gaussian", "normal":
		return DistGaussian
	}
	exceptions.Panicf("entropy: unknown distribution %q, valid values are \"logistic\" and \"gaussian\"", name)
	panic(nil) // Never reached.
}

// Prior assigns bit costs to quantized tensors.
type Prior interface {
	// BinBits returns the per-element bit cost -log2(max(P(q), likelihoodFloor)),
	// where P(q) is the probability mass of the unit bin centered on q.
	// The result has the same shape as q, is finite and non-negative.
	BinBits(q *Node) *Node
}

// ScaleFromRaw maps an unconstrained scale parameter to a strictly positive one:
// softplus(raw) + scaleFloor.
func ScaleFromRaw(ctx *context.Context, raw *Node) *Node {
	floor := context.GetParamOr(ctx, ParamScaleFloor, DefaultScaleFloor)
	return AddScalar(Softplus(raw), floor)
}

func likelihoodFloorFromContext(ctx *context.Context) float64 {
	floor := context.GetParamOr(ctx, ParamLikelihoodFloor, DefaultLikelihoodFloor)
	if floor <= 0 || floor >= 1 {
		exceptions.Panicf("entropy: %q must be in (0, 1), got %g", ParamLikelihoodFloor, floor)
	}
	return floor
}

// cdf evaluates the cumulative distribution at x for the given location and
// (strictly positive) scale.
func cdf(dist Distribution, x, mean, scale *Node) *Node {
	z := Div(Sub(x, mean), scale)
	switch dist {
	case DistLogistic:
		return Sigmoid(z)
	case DistGaussian:
		return MulScalar(OnePlus(Erf(DivScalar(z, math.Sqrt2))), 0.5)
	}
	exceptions.Panicf("entropy: invalid distribution %d", dist)
	panic(nil) // Never reached.
}

// bitsFromMass converts bin probability mass to bits, clamping at the floor so the
// extreme tails cost -log2(floor) bits instead of overflowing to +inf.
func bitsFromMass(mass *Node, floor float64) *Node {
	return Neg(MulScalar(Log(MaxScalar(mass, floor)), 1/math.Ln2))
}
