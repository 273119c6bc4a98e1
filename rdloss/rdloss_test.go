// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package rdloss

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/ctxtest"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestDistortion(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "MSE on the 0-255 scale",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			real := graph.Const(g, []float32{0, 0.5, 1, 1})
			recon := graph.Const(g, []float32{0, 0.5, 0.5, 1})
			outputs = []*graph.Node{Distortion(real, recon)}
			return
		}, []any{
			// Only one of four elements differs, by 0.5*255 intensity levels.
			float32(127.5 * 127.5 / 4),
		}, 1e-3)
}

func TestWeightedRateRegimes(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "lambda switches at the target",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			noise := graph.Const(g, []float32{0.3, 0.5})
			over := graph.Const(g, []float32{0.2, 0.3})   // mean 0.25 > 0.14
			under := graph.Const(g, []float32{0.1, 0.05}) // mean 0.075 < 0.14
			outputs = []*graph.Node{
				WeightedRate(ctx, noise, over),
				WeightedRate(ctx, noise, under),
			}
			return
		}, []any{
			float32(DefaultLambdaA * 0.4), // Overshooting: the heavy weight.
			float32(DefaultLambdaB * 0.4),
		}, 1e-5)
}

func TestWeightedRateWarmup(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "warmup relaxes the target",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			// Relaxed target 0.14*10/7 = 0.2; a measured rate of 0.18 overshoots the
			// base target but not the warmup one. Global step starts at 0.
			ctx.SetParam(ParamRateWarmupSteps, 100)
			noise := graph.Const(g, []float32{0.18})
			quant := graph.Const(g, []float32{0.18})
			outputs = []*graph.Node{WeightedRate(ctx, noise, quant)}
			return
		}, []any{
			float32(DefaultLambdaB * 0.18),
		}, 1e-5)
}

func TestAdversarialLosses(t *testing.T) {
	softplus := func(x float64) float64 { return math.Log1p(math.Exp(x)) }
	ctxtest.RunTestGraphFn(t, "non-saturating GAN pair",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			realLogits := graph.Const(g, []float32{2, 0})
			genLogits := graph.Const(g, []float32{-1, 0})
			outputs = []*graph.Node{
				GeneratorLoss(genLogits),
				DiscriminatorLoss(realLogits, genLogits),
			}
			return
		}, []any{
			float32((softplus(1) + softplus(0)) / 2),
			float32((softplus(-2)+softplus(0))/2 + (softplus(-1)+softplus(0))/2),
		}, 1e-5)
}
