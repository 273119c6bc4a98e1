// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

// Package imagedata feeds directories of images to the training loop as fixed-size
// patches, implementing train.Dataset.
package imagedata

import (
	"image"
	"io"
	"io/fs"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Dataset yields batches of float32 image patches shaped
// (batch, patchSize, patchSize, 3), values in [0, 1], with no labels. Training
// datasets sample random crops with random horizontal flips; evaluation datasets
// take deterministic center crops.
//
// Yield is safe for concurrent use; decoding happens in the calling goroutine, so
// wrap with data.Parallel (pkg/ml/datasets) to hide I/O latency.
type Dataset struct {
	name      string
	paths     []string
	patchSize int

	batchSize int
	augment   bool
	infinite  bool

	mu   sync.Mutex
	next int
	rng  *rand.Rand
}

// New scans dir recursively for images (.png, .jpg, .jpeg) and returns a dataset
// of patchSize x patchSize patches. Files are visited in a stable order until
// Shuffle is configured. patchSize must be a multiple of 16, the total spatial
// reduction of the codec.
func New(name, dir string, patchSize int) (*Dataset, error) {
	if patchSize <= 0 || patchSize%16 != 0 {
		return nil, errors.Errorf("imagedata: patch size must be a positive multiple of 16, got %d", patchSize)
	}
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "imagedata: scanning %q", dir)
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("imagedata: no images found under %q", dir)
	}
	return &Dataset{
		name:      name,
		paths:     paths,
		patchSize: patchSize,
		batchSize: 1,
	}, nil
}

// BatchSize sets the number of patches per yielded batch. It returns the dataset
// for chaining.
func (ds *Dataset) BatchSize(n int) *Dataset {
	ds.batchSize = n
	return ds
}

// Shuffle enables random file order and random crop/flip augmentation, seeded for
// reproducibility.
func (ds *Dataset) Shuffle(seed int64) *Dataset {
	ds.rng = rand.New(rand.NewSource(seed))
	ds.augment = true
	ds.shuffleLocked()
	return ds
}

// Infinite makes the dataset loop forever instead of returning io.EOF after one
// epoch, the usual configuration for training with a step-count based loop.
func (ds *Dataset) Infinite() *Dataset {
	ds.infinite = true
	return ds
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// NumImages returns the number of image files found.
func (ds *Dataset) NumImages() int { return len(ds.paths) }

// Reset implements train.Dataset, restarting the epoch.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.next = 0
	ds.shuffleLocked()
}

func (ds *Dataset) shuffleLocked() {
	if ds.rng == nil {
		return
	}
	ds.rng.Shuffle(len(ds.paths), func(i, j int) {
		ds.paths[i], ds.paths[j] = ds.paths[j], ds.paths[i]
	})
}

// Yield implements train.Dataset. It returns one batch of patches as the single
// inputs tensor and no labels. After the last full batch of an epoch it returns
// io.EOF, unless the dataset is Infinite.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	batchPaths, err := ds.take()
	if err != nil {
		return nil, nil, nil, err
	}
	patches := make([]image.Image, 0, len(batchPaths))
	for _, path := range batchPaths {
		img, err := imaging.Open(path)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "imagedata: decoding %q", path)
		}
		patches = append(patches, ds.patch(img))
	}
	batch := images.ToTensor(dtypes.Float32).Batch(patches)
	return nil, []*tensors.Tensor{batch}, nil, nil
}

// take reserves the next batch worth of file paths.
func (ds *Dataset) take() ([]string, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.batchSize > len(ds.paths) {
		return nil, errors.Errorf("imagedata: batch size %d larger than dataset (%d images)",
			ds.batchSize, len(ds.paths))
	}
	if ds.next+ds.batchSize > len(ds.paths) {
		if !ds.infinite {
			return nil, io.EOF
		}
		ds.next = 0
		ds.shuffleLocked()
	}
	// Copied, not aliased: shuffleLocked rearranges ds.paths in place on epoch
	// wrap, and the caller decodes the batch outside the lock.
	batch := append([]string(nil), ds.paths[ds.next:ds.next+ds.batchSize]...)
	ds.next += ds.batchSize
	return batch, nil
}

// patch cuts one patchSize x patchSize patch, upscaling images that are too small.
func (ds *Dataset) patch(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < ds.patchSize || h < ds.patchSize {
		// Scale the short side up to the patch size, preserving aspect ratio.
		if w < h {
			img = imaging.Resize(img, ds.patchSize, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, ds.patchSize, imaging.Lanczos)
		}
		bounds = img.Bounds()
		w, h = bounds.Dx(), bounds.Dy()
	}
	if !ds.augment {
		return imaging.CropCenter(img, ds.patchSize, ds.patchSize)
	}

	ds.mu.Lock()
	x := ds.rng.Intn(w - ds.patchSize + 1)
	y := ds.rng.Intn(h - ds.patchSize + 1)
	flip := ds.rng.Intn(2) == 1
	ds.mu.Unlock()
	patch := imaging.Crop(img, image.Rect(x, y, x+ds.patchSize, y+ds.patchSize))
	if flip {
		patch = imaging.FlipH(patch)
	}
	return patch
}
