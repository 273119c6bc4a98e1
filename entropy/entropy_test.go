// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package entropy

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/ctxtest"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

// filled returns a tensor shaped like ref holding value everywhere.
func filled(ref *graph.Node, value float32) *graph.Node {
	return graph.AddScalar(graph.ZerosLike(ref), value)
}

// rawScaleForUnit is the unconstrained parameter that softplus maps (up to the
// scale floor) to a scale of one.
var rawScaleForUnit = float32(math.Log(math.E - 1))

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// logisticBinBits is the float64 reference for the logistic unit-bin cost.
func logisticBinBits(q, mean, scale float64) float64 {
	mass := sigmoid((q+0.5-mean)/scale) - sigmoid((q-0.5-mean)/scale)
	return -math.Log2(math.Max(mass, DefaultLikelihoodFloor))
}

// gaussianBinBits is the float64 reference for the Gaussian unit-bin cost.
func gaussianBinBits(q, mean, scale float64) float64 {
	cdf := func(x float64) float64 { return 0.5 * (1 + math.Erf((x-mean)/(scale*math.Sqrt2))) }
	mass := cdf(q+0.5) - cdf(q-0.5)
	return -math.Log2(math.Max(mass, DefaultLikelihoodFloor))
}

func TestDistributionNames(t *testing.T) {
	require.Equal(t, DistLogistic, DistributionFromName("logistic"))
	require.Equal(t, DistGaussian, DistributionFromName("gaussian"))
	require.Equal(t, DistGaussian, DistributionFromName("normal"))
	require.Equal(t, "logistic", DistLogistic.String())
	require.Equal(t, "gaussian", DistGaussian.String())
	require.Panics(t, func() { DistributionFromName("laplace") })
}

func TestConditionalLogistic(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "logistic unit bins",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			q := graph.Const(g, []float32{0, 1, -2, 100})
			mean := graph.ZerosLike(q)
			rawScale := filled(q, rawScaleForUnit)
			prior := NewConditional(ctx, DistLogistic, mean, rawScale)
			outputs = []*graph.Node{prior.BinBits(q)}
			return
		}, []any{
			[]float32{
				// The reference cost of the centered unit bin: -log2(σ(0.5)-σ(-0.5)) ≈ 2.0297 bits.
				float32(logisticBinBits(0, 0, 1)),
				float32(logisticBinBits(1, 0, 1)),
				float32(logisticBinBits(-2, 0, 1)),
				// Far tail: the bin mass underflows and clamps to the likelihood
				// floor, a ceiling of exactly 16 bits.
				16,
			},
		}, 1e-4)
}

func TestConditionalGaussian(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "gaussian unit bins",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			q := graph.Const(g, []float32{0, 2, -1})
			mean := filled(q, 0.25)
			rawScale := filled(q, rawScaleForUnit)
			prior := NewConditional(ctx, DistGaussian, mean, rawScale)
			outputs = []*graph.Node{prior.BinBits(q)}
			return
		}, []any{
			[]float32{
				float32(gaussianBinBits(0, 0.25, 1)),
				float32(gaussianBinBits(2, 0.25, 1)),
				float32(gaussianBinBits(-1, 0.25, 1)),
			},
		}, 1e-4)
}

func TestScaleFloorKeepsBitsFinite(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "scale -> 0 stays finite",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			q := graph.Const(g, []float32{0, 1})
			mean := graph.ZerosLike(q)
			// softplus(-1000) underflows to zero; only the scale floor is left.
			rawScale := filled(q, -1000)
			prior := NewConditional(ctx, DistLogistic, mean, rawScale)
			outputs = []*graph.Node{prior.BinBits(q)}
			return
		}, []any{
			// All mass collapses into the centered bin: ~0 bits there, the
			// 16-bit floor ceiling everywhere else. Never NaN or ±inf.
			[]float32{0, 16},
		}, 1e-4)
}

func TestMixtureCollapsesToConditional(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "K=1 mixture == logistic conditional",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			q := graph.Const(g, []float32{-1, 0, 0.5, 3})
			mean := filled(q, 0.5)
			rawScale := filled(q, -0.3)
			cond := NewConditional(ctx, DistLogistic, mean, rawScale)

			expand := func(x *graph.Node) *graph.Node { return graph.ExpandAxes(x, -1) }
			mix := NewMixture(ctx, expand(graph.ZerosLike(q)), expand(mean), expand(rawScale))
			outputs = []*graph.Node{graph.Sub(mix.BinBits(q), cond.BinBits(q))}
			return
		}, []any{
			[]float32{0, 0, 0, 0},
		}, 1e-5)
}

func TestMixtureMassSumsToOne(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "sum of P(q) over the grid is ~1",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			// All integers in [-30, 30], with a 2-component mixture per element.
			numBins := 61
			qValues := make([]float32, numBins)
			logits := make([][]float32, numBins)
			means := make([][]float32, numBins)
			rawScales := make([][]float32, numBins)
			for ii := range qValues {
				qValues[ii] = float32(ii - 30)
				logits[ii] = []float32{0, 0}
				means[ii] = []float32{0, 3}
				rawScales[ii] = []float32{rawScaleForUnit, rawScaleForUnit}
			}
			q := graph.Const(g, qValues)
			mix := NewMixture(ctx, graph.Const(g, logits), graph.Const(g, means), graph.Const(g, rawScales))
			bits := mix.BinBits(q)
			// Recover P(q) = 2^-bits and integrate over the grid.
			mass := graph.Exp(graph.MulScalar(bits, -math.Ln2))
			outputs = []*graph.Node{graph.ReduceAllSum(mass)}
			return
		}, []any{
			float32(1),
		}, 0.01)
}

func TestShapeMismatchFailsFast(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	require.Panics(t, func() {
		exec := context.MustNewExec(backend, context.New(), func(ctx *context.Context, g *graph.Graph) *graph.Node {
			mean := graph.Const(g, []float32{0, 0})
			rawScale := graph.Const(g, []float32{0, 0, 0})
			prior := NewConditional(ctx, DistLogistic, mean, rawScale)
			return prior.BinBits(mean)
		})
		exec.MustExec()
	})
	require.Panics(t, func() {
		exec := context.MustNewExec(backend, context.New(), func(ctx *context.Context, g *graph.Graph) *graph.Node {
			params := graph.Zeros(g, shapes.Make(dtypes.Float32, 4, 2))
			mix := NewMixture(ctx, params, params, params)
			// Mismatched content axis: 3 elements against parameters for 4.
			return mix.BinBits(graph.Zeros(g, shapes.Make(dtypes.Float32, 3)))
		})
		exec.MustExec()
	})
}
