// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package model

import (
	"image"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/zeta1999/high-fidelity-generative-compression/hyperprior"
	"github.com/zeta1999/high-fidelity-generative-compression/network"
)

// Compressor runs the codec end to end on single images: encode, quantize,
// estimate the rate, reconstruct. The context must hold trained variables, usually
// loaded from a checkpoint. A real deployment would follow the rate estimate with
// an arithmetic coder; the estimate already is the exact cost such a coder pays.
type Compressor struct {
	exec *context.Exec
}

// NewCompressor builds the inference executor on top of the trained context. The
// graph is JIT-compiled per image shape on first use.
func NewCompressor(backend backends.Backend, ctx *context.Context) *Compressor {
	return &Compressor{
		exec: context.MustNewExec(backend, ctx.Reuse(), compressGraph),
	}
}

// compressGraph is the inference variant of CompressionModelGraph: arbitrary image
// sizes are zero-padded up to the next multiple of 16 for the transforms, while the
// rate stays normalized by the true pixel count and the reconstruction is cropped
// back and clamped to [0, 1].
func compressGraph(ctx *context.Context, batch *Node) []*Node {
	dims := batch.Shape().Dimensions
	chw := TransposeAllDims(padSpatial(batch), 0, 3, 1, 2)

	latents := network.Encoder(ctx, chw)
	coded := hyperprior.Model(ctx, latents, dims[1], dims[2])
	reconstruction := ClipScalar(network.Generator(ctx, coded.Decoded), 0, 1)

	cropped := Slice(TransposeAllDims(reconstruction, 0, 2, 3, 1),
		AxisRange(), AxisRange(0, dims[1]), AxisRange(0, dims[2]), AxisRange())
	return []*Node{cropped, ReduceAllMean(coded.QuantBPP)}
}

// padSpatial appends zero rows and columns to a (batch, height, width, channels)
// tensor until both spatial extents are multiples of 16, the total stride of the
// encoder. Shapes are static at graph build time, so the pad amounts are plain
// Go arithmetic.
func padSpatial(batch *Node) *Node {
	g := batch.Graph()
	for _, axis := range []int{1, 2} {
		dims := batch.Shape().Dimensions
		pad := (16 - dims[axis]%16) % 16
		if pad == 0 {
			continue
		}
		padDims := append([]int{}, dims...)
		padDims[axis] = pad
		batch = Concatenate([]*Node{batch, Zeros(g, shapes.Make(batch.DType(), padDims...))}, axis)
	}
	return batch
}

// Compress reconstructs img through the codec and reports the estimated rate in
// bits per pixel.
func (c *Compressor) Compress(img image.Image) (reconstruction image.Image, bitsPerPixel float64, err error) {
	input := images.ToTensor(dtypes.Float32).Batch([]image.Image{img})
	var outputs []*tensors.Tensor
	err = exceptions.TryCatch[error](func() {
		outputs = c.exec.MustExec(input)
	})
	if err != nil {
		return nil, 0, err
	}
	reconstruction = images.ToImage().Single(outputs[0])
	bitsPerPixel = float64(tensors.ToScalar[float32](outputs[1]))
	return
}
