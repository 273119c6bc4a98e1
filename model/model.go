// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Package model stitches the codec together: encoder, latent probability model,
// generator and the rate-distortion objective, in the shape the training loop
// expects. It also provides the inference-time Compressor.
package model

import (
	"fmt"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"

	"github.com/zeta1999/high-fidelity-generative-compression/hyperprior"
	"github.com/zeta1999/high-fidelity-generative-compression/network"
	"github.com/zeta1999/high-fidelity-generative-compression/rdloss"
)

// ParamDistortionWeight scales the distortion term relative to the rate term.
const ParamDistortionWeight = "distortion_weight"

// Prediction slots returned by CompressionModelGraph.
const (
	SlotReconstruction = iota
	SlotLoss
	SlotQuantBPP
	SlotNoiseBPP
	SlotDistortion
)

// CompressionModelGraph is the train.ModelFn of the codec. inputs[0] holds a batch
// of images shaped (batch, height, width, 3) with values in [0, 1], as produced by
// the dataset pipeline. It returns, in slot order: the reconstruction in the same
// layout, the scalar training loss, and the scalar quantized bits-per-pixel,
// noise bits-per-pixel and distortion diagnostics.
func CompressionModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec
	batch := inputs[0]
	dims := batch.Shape().Dimensions
	image := TransposeAllDims(batch, 0, 3, 1, 2)

	latents := network.Encoder(ctx, image)
	coded := hyperprior.Model(ctx, latents, dims[1], dims[2])
	reconstruction := network.Generator(ctx, coded.Decoded)

	rate := rdloss.WeightedRate(ctx, coded.NoiseBPP, coded.QuantBPP)
	distortion := rdloss.Distortion(image, reconstruction)
	weight := context.GetParamOr(ctx, ParamDistortionWeight, rdloss.DistortionWeight)
	loss := Add(rate, MulScalar(distortion, weight))

	return []*Node{
		TransposeAllDims(reconstruction, 0, 2, 3, 1),
		loss,
		ReduceAllMean(coded.QuantBPP),
		ReduceAllMean(coded.NoiseBPP),
		distortion,
	}
}

// LossFromPredictions satisfies the trainer's loss hook: the model graph already
// computed its own loss, so just pick it out.
func LossFromPredictions(labels, predictions []*Node) *Node {
	_ = labels
	return predictions[SlotLoss]
}

// slotMetricFn adapts one prediction slot into a metric graph function.
func slotMetricFn(slot int) metrics.BaseMetricGraph {
	return func(ctx *context.Context, labels, predictions []*Node) *Node {
		return predictions[slot]
	}
}

func prettyPrint(t *tensors.Tensor) string {
	return fmt.Sprintf("%.4f", t.Value())
}

// TrainMetrics returns the moving-average metrics reported during training.
func TrainMetrics() []metrics.Interface {
	return []metrics.Interface{
		metrics.NewExponentialMovingAverageMetric(
			"Moving Quantized BPP", "~q_bpp", "bpp", slotMetricFn(SlotQuantBPP), prettyPrint, 0.01),
		metrics.NewExponentialMovingAverageMetric(
			"Moving Distortion", "~mse", "distortion", slotMetricFn(SlotDistortion), prettyPrint, 0.01),
	}
}

// AdversarialLosses runs the conditional discriminator over the original and the
// reconstructed batch, both in (batch, 3, height, width) layout, and returns the
// two halves of the GAN objective. The discriminator loss sees a detached
// reconstruction, the generator loss a detached discriminator input condition;
// orchestrating the alternating updates is left to the caller.
func AdversarialLosses(ctx *context.Context, image, reconstruction, latents *Node) (generatorLoss, discriminatorLoss *Node) {
	condition := StopGradient(latents)
	_, realLogits := network.Discriminator(ctx, image, condition)
	_, detachedLogits := network.Discriminator(ctx, StopGradient(reconstruction), condition)
	_, generatedLogits := network.Discriminator(ctx, reconstruction, condition)
	return rdloss.GeneratorLoss(generatedLogits), rdloss.DiscriminatorLoss(realLogits, detachedLogits)
}

// EvalMetrics returns the exact means reported on evaluation datasets.
func EvalMetrics() []metrics.Interface {
	return []metrics.Interface{
		metrics.NewMeanMetric(
			"Quantized BPP", "q_bpp", "bpp", slotMetricFn(SlotQuantBPP), prettyPrint),
		metrics.NewMeanMetric(
			"Noise BPP", "n_bpp", "bpp", slotMetricFn(SlotNoiseBPP), prettyPrint),
		metrics.NewMeanMetric(
			"Distortion", "mse", "distortion", slotMetricFn(SlotDistortion), prettyPrint),
	}
}
