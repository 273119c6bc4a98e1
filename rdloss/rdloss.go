// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Package rdloss builds the training objective: a rate term steered towards a
// target bits-per-pixel, a distortion term on the reconstruction, and the
// non-saturating adversarial pair for generator and discriminator.
package rdloss

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

const (
	// ParamTargetBPP is the rate the codec is steered towards.
	ParamTargetBPP   = "target_bpp"
	DefaultTargetBPP = 0.14

	// ParamLambdaA and ParamLambdaB are the rate weights above and below the
	// target. Keeping A > B penalizes overshooting harder than undershooting.
	ParamLambdaA   = "lambda_a"
	ParamLambdaB   = "lambda_b"
	DefaultLambdaA = 2.0
	DefaultLambdaB = 1.0

	// ParamRateWarmupSteps relaxes the target for the first steps of training, when
	// the untrained prior reports rates far above anything reachable. Zero disables
	// the warmup.
	ParamRateWarmupSteps = "rate_warmup_steps"

	// ParamRateWarmupFactor multiplies the target during warmup.
	ParamRateWarmupFactor   = "rate_warmup_factor"
	DefaultRateWarmupFactor = 10.0 / 7.0
)

// Distortion is the mean squared error between the original and the
// reconstruction, measured on the 0-255 intensity scale the way codec benchmarks
// report it. Both inputs hold values in [0, 1]; returns a scalar.
func Distortion(real, reconstruction *Node) *Node {
	diff := Sub(MulScalar(real, 255), MulScalar(reconstruction, 255))
	return ReduceAllMean(Mul(diff, diff))
}

// WeightedRate turns the two bits-per-pixel estimates, shaped (batch), into the
// scalar rate term of the objective. The differentiable noise estimate carries the
// gradients; the quantized estimate, the rate actually paid, only selects the
// weight: lambda_a when the codec overshoots the target, lambda_b otherwise.
func WeightedRate(ctx *context.Context, noiseBPP, quantBPP *Node) *Node {
	g := noiseBPP.Graph()
	target := targetBPP(ctx, g)
	lambdaA := context.GetParamOr(ctx, ParamLambdaA, DefaultLambdaA)
	lambdaB := context.GetParamOr(ctx, ParamLambdaB, DefaultLambdaB)

	quantMean := StopGradient(ReduceAllMean(quantBPP))
	lambda := Where(GreaterThan(quantMean, target),
		Scalar(g, quantBPP.DType(), lambdaA),
		Scalar(g, quantBPP.DType(), lambdaB))
	return Mul(lambda, ReduceAllMean(noiseBPP))
}

// targetBPP returns the (possibly warmup-relaxed) scalar rate target.
func targetBPP(ctx *context.Context, g *Graph) *Node {
	base := context.GetParamOr(ctx, ParamTargetBPP, DefaultTargetBPP)
	warmupSteps := context.GetParamOr(ctx, ParamRateWarmupSteps, 0)
	target := Const(g, float32(base))
	if warmupSteps <= 0 {
		return target
	}
	factor := context.GetParamOr(ctx, ParamRateWarmupFactor, DefaultRateWarmupFactor)
	step := optimizers.GetGlobalStepVar(ctx).ValueGraph(g)
	inWarmup := LessOrEqual(step, Scalar(g, step.DType(), warmupSteps))
	return Where(inWarmup, MulScalar(target, factor), target)
}

// GeneratorLoss is the non-saturating GAN objective for the generator: mean
// softplus(-D(generated)) over the discriminator's patch logits.
func GeneratorLoss(generatedLogits *Node) *Node {
	return ReduceAllMean(Softplus(Neg(generatedLogits)))
}

// DiscriminatorLoss is the matching objective for the discriminator,
// mean softplus(-D(real)) + mean softplus(D(generated)).
func DiscriminatorLoss(realLogits, generatedLogits *Node) *Node {
	return Add(
		ReduceAllMean(Softplus(Neg(realLogits))),
		ReduceAllMean(Softplus(generatedLogits)))
}

// DistortionWeight is the fixed multiplier applied to Distortion in the
// rate-distortion objective.
const DistortionWeight = 0.075 * (1.0 / 32.0)
