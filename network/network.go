// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Package network holds the convolutional transforms of the codec: the Encoder
// mapping images to latents, the Generator mapping quantized latents back to
// images, and the Discriminator used for adversarial training of the Generator.
//
// All transforms work on (batch, channels, height, width) tensors with image
// values in [0, 1].
package network

import (
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
)

const (
	// ParamLatentChannels is the channel count of the encoder output.
	ParamLatentChannels   = "latent_channels"
	DefaultLatentChannels = 220

	// ParamBaseChannels scales the width of every transform; the deepest layers use
	// 16x this many channels.
	ParamBaseChannels   = "base_channels"
	DefaultBaseChannels = 60

	// ParamResidualBlocks is the number of residual blocks in the generator trunk.
	ParamResidualBlocks   = "residual_blocks"
	DefaultResidualBlocks = 9
)

// conv is the shared convolution idiom: channels-first, "same" padding.
func conv(ctx *context.Context, x *Node, channels, kernel, stride int) *Node {
	return layers.Convolution(ctx, x).
		Channels(channels).KernelSize(kernel).Strides(stride).PadSame().
		ChannelsAxis(images.ChannelsFirst).Done()
}

// channelNorm normalizes each spatial position across its channels, the
// normalization of choice here since it is independent of batch and image size.
func channelNorm(ctx *context.Context, x *Node) *Node {
	return layers.LayerNormalization(ctx.In("norm"), x, 1).Done()
}

// upSample2x doubles both spatial dimensions with nearest-neighbor interpolation.
func upSample2x(x *Node) *Node {
	return Interpolate(x, images.GetUpSampledSizes(x, images.ChannelsFirst, 2)...).
		Nearest().Done()
}
