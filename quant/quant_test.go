// Copyright 2026 The high-fidelity-generative-compression Authors. SPDX-License-Identifier: Apache-2.0

package quant

import (
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/ctxtest"
	"github.com/gomlx/gopjrt/dtypes"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestRoundIsIdempotent(t *testing.T) {
	graphtest.RunTestGraphFn(t, "Round(Round(x)) == Round(x)",
		func(g *graph.Graph) (inputs, outputs []*graph.Node) {
			x := graph.Const(g, []float32{-2.5, -1.2, -0.5, 0, 0.49, 0.5, 1.7, 3.5})
			once := Round(x)
			twice := Round(once)
			inputs = []*graph.Node{x}
			outputs = []*graph.Node{once, graph.Sub(twice, once)}
			return
		}, []any{
			// Halves round away from zero.
			[]float32{-3, -1, -1, 0, 0, 1, 2, 4},
			[]float32{0, 0, 0, 0, 0, 0, 0, 0},
		}, 0)
}

func TestSTEMatchesRoundForward(t *testing.T) {
	graphtest.RunTestGraphFn(t, "STE forward == Round",
		func(g *graph.Graph) (inputs, outputs []*graph.Node) {
			x := graph.Const(g, []float32{-1.9, -0.2, 0.3, 2.6})
			outputs = []*graph.Node{graph.Sub(STE(x), Round(x))}
			return
		}, []any{
			[]float32{0, 0, 0, 0},
		}, 0)
}

func TestNoiseStaysWithinHalf(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "|Noise(x)-x| <= 0.5",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			x := graph.IotaFull(g, shapes.Make(dtypes.Float32, 10_000))
			q := Noise(ctx, x)
			diff := graph.Sub(q, x)
			within := graph.LessOrEqual(graph.ReduceAllMax(graph.Abs(diff)), graph.ConstAs(x, 0.5))
			outputs = []*graph.Node{
				graph.ConvertDType(within, dtypes.Float32),
				// The noise is centered: its mean over many samples vanishes.
				graph.ReduceAllMean(diff),
			}
			return
		}, []any{
			float32(1),
			float32(0),
		}, 0.02)
}

func TestApplyModes(t *testing.T) {
	ctxtest.RunTestGraphFn(t, "Apply dispatches on mode",
		func(ctx *context.Context, g *graph.Graph) (inputs, outputs []*graph.Node) {
			x := graph.Const(g, []float32{0.6, -1.4})
			outputs = []*graph.Node{
				Apply(ctx, x, ModeRound),
				Apply(ctx, x, ModeSTE),
			}
			return
		}, []any{
			[]float32{1, -1},
			[]float32{1, -1},
		}, 0)
}
