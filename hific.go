// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Package hific trains and runs a learned image codec with a generative decoder:
// a convolutional encoder maps images to quantized latents, a hierarchical prior
// estimates (and steers) their coding cost, and a generator network reconstructs
// images that stay perceptually close to the input at very low bitrates.
package hific

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"

	"github.com/zeta1999/high-fidelity-generative-compression/entropy"
	"github.com/zeta1999/high-fidelity-generative-compression/hyperprior"
	"github.com/zeta1999/high-fidelity-generative-compression/imagedata"
	"github.com/zeta1999/high-fidelity-generative-compression/model"
	"github.com/zeta1999/high-fidelity-generative-compression/network"
	"github.com/zeta1999/high-fidelity-generative-compression/rdloss"
)

// ParamsExcludedFromLoading are the hyperparameters that shouldn't be restored from
// checkpoints, so they can be overridden in later sessions.
var ParamsExcludedFromLoading = []string{
	"train_steps", "num_checkpoints", "batch_size", "eval_batch_size",
}

// CreateDefaultContext sets the context with the default hyperparameters used by
// TrainModel.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.ResetRNGState()
	ctx.SetParams(map[string]any{
		"train_steps":     100_000,
		"num_checkpoints": 3,
		"batch_size":      8,
		"eval_batch_size": 16,

		// Side of the square patches sampled for training; must be a multiple of 16.
		"patch_size": 256,

		// Transform sizes.
		network.ParamBaseChannels:   network.DefaultBaseChannels,
		network.ParamLatentChannels: network.DefaultLatentChannels,
		network.ParamResidualBlocks: network.DefaultResidualBlocks,

		// Latent probability model.
		hyperprior.ParamEntropyModel:      hyperprior.EntropyModelHyperprior,
		hyperprior.ParamHyperChannels:     hyperprior.DefaultHyperChannels,
		hyperprior.ParamPriorDistribution: entropy.DistLogistic.String(),
		hyperprior.ParamMixtureComponents: hyperprior.DefaultMixtureComponents,
		entropy.ParamScaleFloor:           entropy.DefaultScaleFloor,
		entropy.ParamLikelihoodFloor:      entropy.DefaultLikelihoodFloor,

		// Rate-distortion objective.
		rdloss.ParamTargetBPP:        rdloss.DefaultTargetBPP,
		rdloss.ParamLambdaA:          rdloss.DefaultLambdaA,
		rdloss.ParamLambdaB:          rdloss.DefaultLambdaB,
		rdloss.ParamRateWarmupSteps:  10_000,
		rdloss.ParamRateWarmupFactor: rdloss.DefaultRateWarmupFactor,
		model.ParamDistortionWeight:  rdloss.DistortionWeight,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 1e-4,
	})
	return ctx
}

// TrainModel trains the codec on the images under trainDir, with hyperparameters
// from ctx. evalDir is optional; when set, evaluation metrics run on its images.
// checkpointPath, also optional, is where checkpoints are saved and loaded from,
// relative to baseDir.
func TrainModel(ctx *context.Context, trainDir, evalDir, baseDir, checkpointPath string, paramsSet []string, verbosity int) {
	baseDir = fsutil.MustReplaceTildeInDir(baseDir)
	if !fsutil.MustFileExists(baseDir) {
		must.M(os.MkdirAll(baseDir, 0777))
	}

	backend := backends.MustNew()
	if verbosity >= 1 {
		fmt.Printf("Backend %q:\t%s\n", backend.Name(), backend.Description())
	}

	batchSize := context.GetParamOr(ctx, "batch_size", 0)
	if batchSize <= 0 {
		exceptions.Panicf("Batch size must be > 0 (maybe it was not set?): %d", batchSize)
	}
	evalBatchSize := context.GetParamOr(ctx, "eval_batch_size", 0)
	if evalBatchSize <= 0 {
		evalBatchSize = batchSize
	}
	patchSize := context.GetParamOr(ctx, "patch_size", 256)

	trainDS := must.M1(imagedata.New("train", trainDir, patchSize))
	trainDS.BatchSize(batchSize).Shuffle(42).Infinite()
	if verbosity >= 1 {
		fmt.Printf("Training on %s images from %s\n",
			humanize.Comma(int64(trainDS.NumImages())), trainDir)
	}
	var evalDatasets []train.Dataset
	if evalDir != "" {
		evalDS := must.M1(imagedata.New("eval", evalDir, patchSize))
		evalDS.BatchSize(evalBatchSize)
		evalDatasets = append(evalDatasets, datasets.Parallel(evalDS))
	}

	// Checkpoints saving.
	var checkpoint *checkpoints.Handler
	if checkpointPath != "" {
		numCheckpointsToKeep := context.GetParamOr(ctx, "num_checkpoints", 3)
		checkpoint = must.M1(checkpoints.Build(ctx).
			DirFromBase(checkpointPath, baseDir).
			Keep(numCheckpointsToKeep).
			ExcludeParams(append(paramsSet, ParamsExcludedFromLoading...)...).
			Done())
		fmt.Printf("Checkpoint: %q\n", checkpoint.Dir())
	}
	if verbosity >= 2 {
		fmt.Println(commandline.SprintContextSettings(ctx))
	}

	ctx = ctx.In("model") // Convention scope used for model creation.
	trainer := train.NewTrainer(backend, ctx,
		model.CompressionModelGraph,
		model.LossFromPredictions,
		optimizers.FromContext(ctx),
		model.TrainMetrics(),
		model.EvalMetrics())

	loop := train.NewLoop(trainer)
	if verbosity >= 0 {
		commandline.AttachProgressBar(loop)
	}

	// Checkpoint saving: every 3 minutes of training.
	if checkpoint != nil {
		train.PeriodicCallback(loop, time.Minute*3, true, "saving checkpoint", 100,
			func(loop *train.Loop, metrics []*tensors.Tensor) error {
				return checkpoint.Save()
			})
	}

	numTrainSteps := context.GetParamOr(ctx, "train_steps", 0)
	globalStep := int(optimizers.GetGlobalStep(ctx))
	if globalStep > 0 {
		trainer.SetContext(ctx.Reuse())
	}
	if globalStep < numTrainSteps {
		_ = must.M1(loop.RunSteps(datasets.Parallel(trainDS), numTrainSteps-globalStep))
		if verbosity >= 1 {
			fmt.Printf("\t[Step %d] median train step: %d microseconds\n",
				loop.LoopStep, loop.MedianTrainStepDuration().Microseconds())
		}
		if checkpoint != nil {
			must.M(checkpoint.Save())
		}
	} else {
		fmt.Printf("\t - target train_steps=%d already reached. To train further, set a number additional "+
			"to current global step.\n", numTrainSteps)
	}

	if len(evalDatasets) > 0 {
		if verbosity >= 1 {
			fmt.Println()
		}
		must.M(commandline.ReportEval(trainer, evalDatasets...))
	}
}
