// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// Generator reconstructs an image from (quantized) latents, inverting the
// encoder's 16x spatial reduction. The output is shaped (batch, 3, 16*height,
// 16*width) and is unclamped; inference clamps to [0, 1] before display.
func Generator(ctx *context.Context, latents *Node) *Node {
	if latents.Rank() != 4 {
		exceptions.Panicf("network: generator wants (batch, channels, height, width) latents, got %s", latents.Shape())
	}
	ctx = ctx.In("generator")
	base := context.GetParamOr(ctx, ParamBaseChannels, DefaultBaseChannels)
	numBlocks := context.GetParamOr(ctx, ParamResidualBlocks, DefaultResidualBlocks)

	x := channelNorm(ctx.In("head"), latents)
	x = conv(ctx.In("head"), x, base*16, 3, 1)
	x = channelNorm(ctx.In("head").In("post"), x)
	for ii := range numBlocks {
		x = residualBlock(ctx.Inf("residual_%d", ii), x)
	}
	for ii, mult := range []int{8, 4, 2, 1} {
		blockCtx := ctx.Inf("up_%d", ii)
		x = conv(blockCtx, upSample2x(x), base*mult, 3, 1)
		x = activations.Relu(channelNorm(blockCtx, x))
	}
	return conv(ctx.In("tail"), x, 3, 7, 1)
}

// residualBlock is conv-norm-relu-conv-norm plus the identity skip, keeping the
// channel count.
func residualBlock(ctx *context.Context, x *Node) *Node {
	channels := x.Shape().Dimensions[1]
	residual := conv(ctx.In("conv0"), x, channels, 3, 1)
	residual = activations.Relu(channelNorm(ctx.In("conv0"), residual))
	residual = conv(ctx.In("conv1"), residual, channels, 3, 1)
	residual = channelNorm(ctx.In("conv1"), residual)
	return Add(x, residual)
}
