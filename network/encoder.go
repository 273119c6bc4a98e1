// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// Encoder maps images, shaped (batch, 3, height, width) with values in [0, 1], to
// unquantized latents with ParamLatentChannels channels and both spatial
// dimensions reduced 16x. Height and width must be multiples of 16 so the
// generator can reproduce the exact input size.
func Encoder(ctx *context.Context, image *Node) *Node {
	if image.Rank() != 4 || image.Shape().Dimensions[1] != 3 {
		exceptions.Panicf("network: encoder wants (batch, 3, height, width) images, got %s", image.Shape())
	}
	dims := image.Shape().Dimensions
	if dims[2]%16 != 0 || dims[3]%16 != 0 {
		exceptions.Panicf("network: encoder wants spatial dimensions divisible by 16, got %dx%d", dims[2], dims[3])
	}
	ctx = ctx.In("encoder")
	base := context.GetParamOr(ctx, ParamBaseChannels, DefaultBaseChannels)
	latentChannels := context.GetParamOr(ctx, ParamLatentChannels, DefaultLatentChannels)

	x := conv(ctx.In("head"), image, base, 7, 1)
	x = activations.Relu(channelNorm(ctx.In("head"), x))
	for ii, mult := range []int{2, 4, 8, 16} {
		blockCtx := ctx.Inf("down_%d", ii)
		x = conv(blockCtx, x, base*mult, 3, 2)
		x = activations.Relu(channelNorm(blockCtx, x))
	}
	return conv(ctx.In("project"), x, latentChannels, 3, 1)
}
