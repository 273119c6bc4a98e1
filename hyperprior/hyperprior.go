// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Package hyperprior models the probability of the quantized image latents, the
// piece that turns a latent tensor into an estimated coding cost.
//
// Two interchangeable models are provided, selected with the hyperparameter
// ParamEntropyModel:
//
//   - "hyperprior": a two-level hierarchy. A hyper-analysis transform maps the
//     latents to a smaller hyper-latent, coded under a learned per-channel
//     factorized prior; a hyper-synthesis transform maps the decoded hyper-latent
//     back to per-element mean and scale for a conditional prior on the latents.
//     The hyper-latent is side information: its bits count towards the total.
//   - "logistic_mixture": a discretized logistic mixture with learned per-channel
//     parameters and no side information at all.
//
// Both report two rate estimates per image: a differential one from noisy
// (dequantized) latents, which stays smooth for gradient descent, and the Shannon
// cost of the actually rounded latents, which is what an arithmetic coder would
// spend.
package hyperprior

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"golang.org/x/exp/maps"

	"github.com/zeta1999/high-fidelity-generative-compression/entropy"
	"github.com/zeta1999/high-fidelity-generative-compression/quant"
)

const (
	// ParamEntropyModel selects the latent probability model, one of
	// EntropyModelHyperprior or EntropyModelLogisticMixture.
	ParamEntropyModel = "entropy_model"

	EntropyModelHyperprior      = "hyperprior"
	EntropyModelLogisticMixture = "logistic_mixture"

	// ParamHyperChannels is the channel count of the hyper-latent.
	ParamHyperChannels   = "hyper_channels"
	DefaultHyperChannels = 320

	// ParamPriorDistribution selects the conditional prior family for the latents,
	// "logistic" or "gaussian".
	ParamPriorDistribution = "prior_distribution"
)

// Output bundles the decoded latents with the per-image rate estimates. All rate
// tensors are shaped (batch); Decoded has the latents' shape.
type Output struct {
	// Decoded is what the synthesis side of the codec sees: rounded values on the
	// forward pass with a straight-through gradient to the unquantized latents.
	Decoded *Node

	// LatentNoiseBits and LatentQuantBits are the coding cost of the latents under
	// the conditional prior, for the noisy and the rounded sample respectively.
	LatentNoiseBits, LatentQuantBits *Node

	// HyperNoiseBits and HyperQuantBits are the side-information cost of the
	// hyper-latent. Zero for the mixture model, which sends none.
	HyperNoiseBits, HyperQuantBits *Node

	// NoiseBPP and QuantBPP are the combined (latent plus side information) rates
	// normalized by the pixel count of the original image.
	NoiseBPP, QuantBPP *Node
}

// ValidModels maps ParamEntropyModel values to their implementations. Users can
// inject custom entropy models here before training.
var ValidModels = map[string]ModelFn{
	EntropyModelHyperprior:      hierarchicalModel,
	EntropyModelLogisticMixture: mixtureModel,
}

// ModelFn is the signature of an entropy model, see Model.
type ModelFn func(ctx *context.Context, latents *Node, imageHeight, imageWidth int) *Output

// Model estimates the coding cost of latents, shaped (batch, channels, height,
// width), under the probability model configured in ctx. imageHeight and
// imageWidth are the dimensions of the original image, used to normalize the rates
// to bits-per-pixel.
func Model(ctx *context.Context, latents *Node, imageHeight, imageWidth int) *Output {
	if latents.Rank() != 4 {
		exceptions.Panicf("hyperprior: latents must be shaped (batch, channels, height, width), got %s",
			latents.Shape())
	}
	model := context.GetParamOr(ctx, ParamEntropyModel, EntropyModelHyperprior)
	modelFn, found := ValidModels[model]
	if !found {
		exceptions.Panicf("hyperprior: parameter %q must take one value from %v, got %q",
			ParamEntropyModel, maps.Keys(ValidModels), model)
	}
	return modelFn(ctx, latents, imageHeight, imageWidth)
}

// rates holds the outcome of coding one tensor under one prior.
type rates struct {
	decoded              *Node
	noiseBits, quantBits *Node
}

// quantizeAndRate runs both quantization branches of x under prior. During
// training the smooth estimate uses additive uniform noise; in inference both
// branches see the same rounded values, so the two estimates coincide. The
// rounded branch never propagates gradients, only the noisy one trains the prior.
func quantizeAndRate(ctx *context.Context, x *Node, prior entropy.Prior) rates {
	g := x.Graph()
	sample := quant.Apply(ctx, x, quant.ModeForGraph(ctx, g))
	rounded := StopGradient(quant.Round(x))
	return rates{
		decoded:   quant.STE(x),
		noiseBits: entropy.TotalBits(prior.BinBits(sample)),
		quantBits: entropy.TotalBits(prior.BinBits(rounded)),
	}
}

func hierarchicalModel(ctx *context.Context, latents *Node, imageHeight, imageWidth int) *Output {
	dist := entropy.DistributionFromName(
		context.GetParamOr(ctx, ParamPriorDistribution, entropy.DistLogistic.String()))

	// Side information: code the hyper-latent under its own learned prior.
	hyper := analysisTransform(ctx.In("hyper_analysis"), latents)
	hyperPrior := entropy.NewFactorized(ctx.In("factorized"), hyper)
	hyperRates := quantizeAndRate(ctx, hyper, hyperPrior)

	// The decoded hyper-latent predicts the conditional prior of the latents.
	mean, rawScale := synthesisTransform(ctx.In("hyper_synthesis"), hyperRates.decoded, latents)
	latentPrior := entropy.NewConditional(ctx, dist, mean, rawScale)
	latentRates := quantizeAndRate(ctx, latents, latentPrior)

	noiseTotal := Add(latentRates.noiseBits, hyperRates.noiseBits)
	quantTotal := Add(latentRates.quantBits, hyperRates.quantBits)
	return &Output{
		Decoded:         latentRates.decoded,
		LatentNoiseBits: latentRates.noiseBits,
		LatentQuantBits: latentRates.quantBits,
		HyperNoiseBits:  hyperRates.noiseBits,
		HyperQuantBits:  hyperRates.quantBits,
		NoiseBPP:        entropy.BitsPerPixel(noiseTotal, imageHeight, imageWidth),
		QuantBPP:        entropy.BitsPerPixel(quantTotal, imageHeight, imageWidth),
	}
}

// analysisTransform maps the latents to the hyper-latent, reducing the spatial
// extent by 4x in each dimension.
func analysisTransform(ctx *context.Context, latents *Node) *Node {
	channels := context.GetParamOr(ctx, ParamHyperChannels, DefaultHyperChannels)
	conv := func(scope string, x *Node, kernel, stride int) *Node {
		return layers.Convolution(ctx.In(scope), x).
			Channels(channels).KernelSize(kernel).Strides(stride).PadSame().
			ChannelsAxis(images.ChannelsFirst).Done()
	}
	x := activations.Relu(conv("conv0", latents, 3, 1))
	x = activations.Relu(conv("conv1", x, 5, 2))
	return conv("conv2", x, 5, 2)
}

// synthesisTransform maps the decoded hyper-latent back up to the latents' shape
// and emits the two parameter maps of the conditional prior. The scale map is
// unconstrained here; the prior reparameterizes it to a positive value.
func synthesisTransform(ctx *context.Context, hyper, latents *Node) (mean, rawScale *Node) {
	channels := context.GetParamOr(ctx, ParamHyperChannels, DefaultHyperChannels)
	conv := func(scope string, x *Node, outChannels, kernel int) *Node {
		return layers.Convolution(ctx.In(scope), x).
			Channels(outChannels).KernelSize(kernel).Strides(1).PadSame().
			ChannelsAxis(images.ChannelsFirst).Done()
	}
	upSample := func(x *Node) *Node {
		return Interpolate(x, images.GetUpSampledSizes(x, images.ChannelsFirst, 2)...).
			Nearest().Done()
	}

	x := activations.Relu(conv("conv0", upSample(hyper), channels, 5))
	x = activations.Relu(conv("conv1", upSample(x), channels, 5))

	// Strided analysis convolutions round odd extents up, so undo any off-by-one
	// before predicting per-element parameters.
	latentDims := latents.Shape().Dimensions
	xDims := x.Shape().Dimensions
	if xDims[2] != latentDims[2] || xDims[3] != latentDims[3] {
		x = Interpolate(x, xDims[0], xDims[1], latentDims[2], latentDims[3]).Nearest().Done()
	}

	latentChannels := latentDims[1]
	mean = conv("mean", x, latentChannels, 3)
	rawScale = conv("raw_scale", x, latentChannels, 3)
	return
}
