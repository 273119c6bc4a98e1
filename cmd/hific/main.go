// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Command hific trains the codec and compresses images with a trained checkpoint.
//
// Training:
//
//	hific --train_images=~/data/openimages --checkpoint=hific_lo --set="target_bpp=0.14"
//
// Compression (reconstruction, since no bitstream is written):
//
//	hific --checkpoint=hific_lo --compress=in.png --output=out.png
package main

import (
	"flag"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"

	hific "github.com/zeta1999/high-fidelity-generative-compression"
	"github.com/zeta1999/high-fidelity-generative-compression/model"
)

var (
	flagTrainImages = flag.String("train_images", "", "Directory with training images. Enables training.")
	flagEvalImages  = flag.String("eval_images", "", "Directory with evaluation images, evaluated after training.")
	flagBaseDir     = flag.String("base_dir", "~/work/hific", "Base directory for checkpoints.")
	flagCheckpoint  = flag.String("checkpoint", "", "Directory to save and load checkpoints from, relative to --base_dir. If left empty, no checkpoints are created.")
	flagCompress    = flag.String("compress", "", "Image to run through the trained codec. Requires --checkpoint.")
	flagOutput      = flag.String("output", "reconstruction.png", "Where to write the reconstruction of the --compress image.")
	flagVerbosity   = flag.Int("verbosity", 1, "Level of verbosity, the higher the more verbose.")
)

func main() {
	ctx := hific.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()
	paramsSet := check1(commandline.ParseContextSettings(ctx, *settings))

	err := exceptions.TryCatch[error](func() {
		switch {
		case *flagTrainImages != "":
			hific.TrainModel(ctx, *flagTrainImages, *flagEvalImages, *flagBaseDir,
				*flagCheckpoint, paramsSet, *flagVerbosity)
		case *flagCompress != "":
			compress(ctx, *flagCompress, *flagOutput)
		default:
			exceptions.Panicf("nothing to do: set --train_images to train or --compress to run the codec (see --help)")
		}
	})
	if err != nil {
		klog.Fatalf("Failed with error: %+v", err)
	}
}

// compress loads the checkpointed model and writes the reconstruction of the image
// at inputPath, reporting the estimated rate.
func compress(ctx *context.Context, inputPath, outputPath string) {
	if *flagCheckpoint == "" {
		exceptions.Panicf("--compress requires --checkpoint with a trained model")
	}
	baseDir := fsutil.MustReplaceTildeInDir(*flagBaseDir)
	_ = check1(checkpoints.Build(ctx).
		DirFromBase(*flagCheckpoint, baseDir).
		Immediate().Done())

	backend := backends.MustNew()
	img := check1(imaging.Open(inputPath))
	compressor := model.NewCompressor(backend, ctx.In("model"))
	reconstruction, bpp, err := compressor.Compress(img)
	check(err)
	check(imaging.Save(reconstruction, outputPath))
	fmt.Printf("%s: %.4f bits/pixel, reconstruction written to %s\n", inputPath, bpp, outputPath)
}

// check reports and exits on error.
func check(err error) {
	if err == nil {
		return
	}
	klog.Fatalf("Fatal error: %+v", err)
}

// check1 reports and exits on error. Otherwise returns the value passed.
func check1[T any](v T, err error) T {
	check(err)
	return v
}
