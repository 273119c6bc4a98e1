// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package hyperprior

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/initializers"

	"github.com/zeta1999/high-fidelity-generative-compression/entropy"
)

const (
	// ParamMixtureComponents is the number of logistic components per channel of the
	// mixture model.
	ParamMixtureComponents   = "lmm_components"
	DefaultMixtureComponents = 4
)

// mixtureModel codes the latents under a discretized logistic mixture with learned
// per-channel parameters. There is no side information: every image shares the same
// mixture, so the hyper rates are identically zero and nothing besides the latents
// themselves would need to reach the decoder.
func mixtureModel(ctx *context.Context, latents *Node, imageHeight, imageWidth int) *Output {
	g := latents.Graph()
	k := context.GetParamOr(ctx, ParamMixtureComponents, DefaultMixtureComponents)
	dims := latents.Shape().Dimensions
	varShape := shapes.Make(latents.DType(), dims[1], k)

	// Zero-initialized logits make the initial mixture uniform; zero raw scales give
	// softplus(0)=ln(2), wide enough to see mass in the first steps. The means use
	// the context's default initializer so components start apart from each other.
	mixCtx := ctx.In("mixture")
	zeroCtx := mixCtx.WithInitializer(initializers.Zero)
	logits := zeroCtx.VariableWithShape("weight_logits", varShape).ValueGraph(g)
	rawScales := zeroCtx.VariableWithShape("raw_scales", varShape).ValueGraph(g)
	means := mixCtx.VariableWithShape("means", varShape).ValueGraph(g)

	prior := entropy.NewMixture(ctx,
		entropy.PerChannel(logits, dims),
		entropy.PerChannel(means, dims),
		entropy.PerChannel(rawScales, dims))
	latentRates := quantizeAndRate(ctx, latents, prior)

	zero := Zeros(g, shapes.Make(latents.DType(), dims[0]))
	return &Output{
		Decoded:         latentRates.decoded,
		LatentNoiseBits: latentRates.noiseBits,
		LatentQuantBits: latentRates.quantBits,
		HyperNoiseBits:  zero,
		HyperQuantBits:  zero,
		NoiseBPP:        entropy.BitsPerPixel(latentRates.noiseBits, imageHeight, imageWidth),
		QuantBPP:        entropy.BitsPerPixel(latentRates.quantBits, imageHeight, imageWidth),
	}
}
