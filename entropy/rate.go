// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package entropy

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
)

// TotalBits reduces a per-element bit map to one total per batch entry, summing over
// every axis except the leading batch axis.
func TotalBits(bits *Node) *Node {
	if bits.Rank() < 2 {
		exceptions.Panicf("entropy: per-element bit map must have a batch axis plus at least one content axis, got shape %s",
			bits.Shape())
	}
	axes := make([]int, bits.Rank()-1)
	for ii := range axes {
		axes[ii] = ii + 1
	}
	return ReduceSum(bits, axes...)
}

// BitsPerPixel normalizes per-image total bits by the pixel count of the original
// image -- not by the number of latent elements, which are spatially downsampled.
func BitsPerPixel(totalBits *Node, imageHeight, imageWidth int) *Node {
	if imageHeight <= 0 || imageWidth <= 0 {
		exceptions.Panicf("entropy: bits-per-pixel normalization needs positive image dimensions, got %dx%d",
			imageHeight, imageWidth)
	}
	return DivScalar(totalBits, float64(imageHeight)*float64(imageWidth))
}
