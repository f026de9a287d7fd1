// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reference

import (
	"math"
	"slices"

	"github.com/gomlx/ethosu/backends/ethosu/tosa"
	"github.com/gomlx/exceptions"
)

func init() {
	executors[tosa.OpAdd] = binaryExecutor(func(a, b float32) float32 { return a + b })
	executors[tosa.OpSub] = binaryExecutor(func(a, b float32) float32 { return a - b })
	executors[tosa.OpMul] = binaryExecutor(func(a, b float32) float32 { return a * b })
	executors[tosa.OpReciprocal] = unaryExecutor(func(x float32) float32 { return 1 / x })
	executors[tosa.OpRsqrt] = unaryExecutor(func(x float32) float32 { return float32(1 / math.Sqrt(float64(x))) })
	executors[tosa.OpExp] = unaryExecutor(func(x float32) float32 { return float32(math.Exp(float64(x))) })
	executors[tosa.OpIdentity] = unaryExecutor(func(x float32) float32 { return x })
	executors[tosa.OpClamp] = execClamp
	executors[tosa.OpReduceMax] = reduceExecutor(float32(math.Inf(-1)), func(acc, x float32) float32 { return max(acc, x) })
	executors[tosa.OpReduceSum] = reduceExecutor(0, func(acc, x float32) float32 { return acc + x })
}

func unaryExecutor(fn func(x float32) float32) executor {
	return func(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
		x := inputs[0]
		out := zeros(x.Dims)
		for ii, v := range x.Data {
			out.Data[ii] = fn(v)
		}
		return out
	}
}

// binaryExecutor applies fn with TOSA broadcasting: operands have the same rank, and axes of
// dimension 1 are broadcast.
func binaryExecutor(fn func(a, b float32) float32) executor {
	return func(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
		a, b := inputs[0], inputs[1]
		if len(a.Dims) != len(b.Dims) {
			exceptions.Panicf("%s operands have different ranks: %v and %v", op.Op, a.Dims, b.Dims)
		}
		dims := make([]int, len(a.Dims))
		for axis := range dims {
			da, db := a.Dims[axis], b.Dims[axis]
			switch {
			case da == db, db == 1:
				dims[axis] = da
			case da == 1:
				dims[axis] = db
			default:
				exceptions.Panicf("%s operands can't be broadcast: %v and %v", op.Op, a.Dims, b.Dims)
			}
		}
		out := zeros(dims)
		aStrides, bStrides := a.Shape().BroadcastStrides(), b.Shape().BroadcastStrides()
		for ii, indices := range out.Shape().Iter() {
			ia, ib := 0, 0
			for axis, idx := range indices {
				ia += idx * aStrides[axis]
				ib += idx * bStrides[axis]
			}
			out.Data[ii] = fn(a.Data[ia], b.Data[ib])
		}
		return out
	}
}

func execClamp(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
	attr := op.Attribute.(*tosa.ClampAttribute)
	return unaryExecutor(func(x float32) float32 {
		return min(max(x, attr.MinFP), attr.MaxFP)
	})(op, inputs, outDims)
}

// reduceExecutor reduces along the axis of the AxisAttribute, keeping it with dimension 1.
func reduceExecutor(initial float32, fn func(acc, x float32) float32) executor {
	return func(op *tosa.Operator, inputs []*Value, outDims []int) *Value {
		x := inputs[0]
		axis := op.Attribute.(*tosa.AxisAttribute).Axis
		if axis < 0 || axis >= len(x.Dims) {
			exceptions.Panicf("%s axis %d out of range for %v", op.Op, axis, x.Dims)
		}
		dims := slices.Clone(x.Dims)
		dims[axis] = 1
		out := zeros(dims)
		for ii := range out.Data {
			out.Data[ii] = initial
		}
		outStrides := out.Shape().BroadcastStrides()
		for ii, indices := range x.Shape().Iter() {
			flat := 0
			for a, idx := range indices {
				flat += idx * outStrides[a]
			}
			out.Data[flat] = fn(out.Data[flat], x.Data[ii])
		}
		return out
	}
}
