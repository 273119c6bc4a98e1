// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeta1999/high-fidelity-generative-compression/entropy"
	"github.com/zeta1999/high-fidelity-generative-compression/hyperprior"
	"github.com/zeta1999/high-fidelity-generative-compression/network"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestCompressGraphPadsAndCrops(t *testing.T) {
	// A 20x24 image is not a multiple of the encoder's 16x stride: the graph pads
	// it up to 32x32, codes 2x2 latents per channel, and crops the reconstruction
	// back. The rate stays normalized by the true 20x24 pixel count.
	const latentChannels = 5
	sigmoid := func(x float64) float64 { return 1 / (1 + math.Exp(-x)) }
	scale := math.Log(2) + entropy.DefaultScaleFloor
	perElement := -math.Log2(sigmoid(0.5/scale) - sigmoid(-0.5/scale))
	bpp := latentChannels * 2 * 2 * perElement / (20 * 24)

	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	ctx.SetParams(map[string]any{
		network.ParamBaseChannels:         2,
		network.ParamLatentChannels:       latentChannels,
		network.ParamResidualBlocks:       1,
		hyperprior.ParamEntropyModel:      hyperprior.EntropyModelLogisticMixture,
		hyperprior.ParamMixtureComponents: 2,
	})
	ctx = ctx.WithInitializer(initializers.Zero)
	exec := context.MustNewExec(backend, ctx, func(ctx *context.Context, g *graph.Graph) []*graph.Node {
		batch := graph.AddScalar(
			graph.Zeros(g, shapes.Make(dtypes.Float32, 1, 20, 24, 3)), 0.5)
		return compressGraph(ctx, batch)
	})
	results := exec.MustExec()
	require.Len(t, results, 2)
	require.Equal(t, []int{1, 20, 24, 3}, results[0].Shape().Dimensions)
	assert.InDelta(t, bpp, tensors.ToScalar[float32](results[1]), 1e-3)
}

func TestPadSpatialShapes(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	exec := graph.MustNewExec(backend, func(g *graph.Graph) []*graph.Node {
		odd := graph.Zeros(g, shapes.Make(dtypes.Float32, 2, 17, 30, 3))
		aligned := graph.Zeros(g, shapes.Make(dtypes.Float32, 2, 32, 48, 3))
		return []*graph.Node{padSpatial(odd), padSpatial(aligned)}
	})
	results := exec.MustExec()
	assert.Equal(t, []int{2, 32, 32, 3}, results[0].Shape().Dimensions)
	// Already aligned extents pass through untouched.
	assert.Equal(t, []int{2, 32, 48, 3}, results[1].Shape().Dimensions)
}
