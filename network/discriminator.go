// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package network

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
)

// Discriminator scores image patches as real or generated, conditioned on the
// quantized latents the image was (or would have been) coded with. It returns
// per-patch probabilities and the raw logits, both shaped
// (batch, 1, height/16, width/16).
//
// The conditioning latents are projected to a thin feature map and upsampled to
// the image resolution, then stacked onto the image channels.
func Discriminator(ctx *context.Context, image, latents *Node) (output, logits *Node) {
	if image.Rank() != 4 || latents.Rank() != 4 {
		exceptions.Panicf("network: discriminator wants 4D image and latents, got %s and %s",
			image.Shape(), latents.Shape())
	}
	ctx = ctx.In("discriminator")

	imageDims := image.Shape().Dimensions
	cond := activations.Relu(conv(ctx.In("condition"), latents, 12, 3, 1))
	cond = Interpolate(cond, imageDims[0], 12, imageDims[2], imageDims[3]).Nearest().Done()
	x := Concatenate([]*Node{image, cond}, 1)

	for ii, channels := range []int{64, 128, 256, 512} {
		x = conv(ctx.Inf("down_%d", ii), x, channels, 4, 2)
		x = activations.LeakyReluWithAlpha(x, 0.2)
	}
	logits = conv(ctx.In("logits"), x, 1, 1, 1)
	return Sigmoid(logits), logits
}
